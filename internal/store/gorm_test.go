package store

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Lllllllleong/documentpdfflow/internal/models"
)

func sqliteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	stmts := []string{
		`CREATE TABLE gl_invoices (id TEXT PRIMARY KEY, glide_row_id TEXT, invoice_uid TEXT, total_amount REAL, supabase_pdf_url TEXT)`,
		`CREATE TABLE gl_invoice_lines (id TEXT PRIMARY KEY, rowid_invoices TEXT, description TEXT, line_total REAL)`,
		`INSERT INTO gl_invoices VALUES ('a1', 'g1', 'INV-001', 100, NULL)`,
		`INSERT INTO gl_invoices VALUES ('a2', 'g2', 'INV-002', 250.5, 'https://cdn/x.pdf')`,
		`INSERT INTO gl_invoices VALUES ('a3', 'g3', NULL, 10, NULL)`,
		`INSERT INTO gl_invoice_lines VALUES ('l1', 'g1', 'Widget', 60)`,
		`INSERT INTO gl_invoice_lines VALUES ('l2', 'g1', 'Gadget', 40)`,
		`INSERT INTO gl_invoice_lines VALUES ('l3', 'g2', 'Other', 250.5)`,
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	return db
}

func TestGormRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGorm(sqliteDB(t), "gl_", nil)

	row, err := repo.FindOne(ctx, "invoices", models.ColID, "a1")
	if err != nil {
		t.Fatalf("FindOne by id: %v", err)
	}
	if row == nil || row.String("invoice_uid") != "INV-001" {
		t.Fatalf("FindOne by id: got=%v", row)
	}
	if got := row.Decimal("total_amount"); got.IntPart() != 100 {
		t.Fatalf("total_amount: want=100 got=%s", got)
	}

	row, err = repo.FindOne(ctx, "invoices", models.ColGlideRowID, "g2")
	if err != nil || row == nil || row.String(models.ColID) != "a2" {
		t.Fatalf("FindOne by glide_row_id: row=%v err=%v", row, err)
	}

	row, err = repo.FindOne(ctx, "invoices", models.ColID, "nope")
	if err != nil || row != nil {
		t.Fatalf("FindOne missing: want nil,nil got=%v,%v", row, err)
	}

	lines, err := repo.FindMany(ctx, "invoice_lines", "rowid_invoices", "g1")
	if err != nil || len(lines) != 2 {
		t.Fatalf("FindMany: len=%d err=%v", len(lines), err)
	}
	if lines[0].String("description") != "Widget" {
		t.Fatalf("FindMany order: want Widget first got=%q", lines[0].String("description"))
	}

	in, err := repo.FindIn(ctx, "invoices", models.ColGlideRowID, []string{"g1", "g3", "missing"})
	if err != nil || len(in) != 2 {
		t.Fatalf("FindIn: len=%d err=%v", len(in), err)
	}

	pending, err := repo.ListPending(ctx, "invoices", PendingQuery{Limit: 10})
	if err != nil || len(pending) != 2 {
		t.Fatalf("ListPending: len=%d err=%v", len(pending), err)
	}
	all, err := repo.ListPending(ctx, "invoices", PendingQuery{IncludeLinked: true, Limit: 2, Offset: 1})
	if err != nil || len(all) != 2 || all[0].String(models.ColID) != "a2" {
		t.Fatalf("ListPending(includeLinked, offset 1): %v err=%v", all, err)
	}
	rest, err := repo.ListPending(ctx, "invoices", PendingQuery{Exclude: []string{"a1"}, Limit: 10})
	if err != nil || len(rest) != 1 || rest[0].String(models.ColID) != "a3" {
		t.Fatalf("ListPending(exclude a1): %v err=%v", rest, err)
	}

	if err := repo.UpdateColumn(ctx, "invoices", "a1", models.ColPDFURL, "https://cdn/INV-001.pdf"); err != nil {
		t.Fatalf("UpdateColumn: %v", err)
	}
	row, _ = repo.FindOne(ctx, "invoices", models.ColID, "a1")
	if got := row.String(models.ColPDFURL); got != "https://cdn/INV-001.pdf" {
		t.Fatalf("UpdateColumn: want url got=%q", got)
	}
	if err := repo.UpdateColumn(ctx, "invoices", "nope", models.ColPDFURL, "x"); err == nil {
		t.Fatalf("UpdateColumn missing row: expected error")
	}

	if _, err := repo.FindMany(ctx, "no_such_table", "x", "y"); err == nil {
		t.Fatalf("FindMany on missing table: expected error")
	}
}

func TestMemoryListPendingPages(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Insert("estimates",
		models.Row{"id": "e3"},
		models.Row{"id": "e1"},
		models.Row{"id": "e2", models.ColPDFURL: "https://x"},
	)
	page, err := m.ListPending(ctx, "estimates", PendingQuery{Limit: 1})
	if err != nil || len(page) != 1 || page[0].String("id") != "e1" {
		t.Fatalf("page 1: %v err=%v", page, err)
	}
	page, _ = m.ListPending(ctx, "estimates", PendingQuery{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].String("id") != "e3" {
		t.Fatalf("page 2: %v", page)
	}
	page, _ = m.ListPending(ctx, "estimates", PendingQuery{Limit: 1, Offset: 2})
	if len(page) != 0 {
		t.Fatalf("page 3: want empty got=%v", page)
	}
}

func TestMemoryListPendingExcludesByKey(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Insert("invoices",
		models.Row{models.ColGlideRowID: "a1"},
		models.Row{models.ColGlideRowID: "a2"},
		models.Row{"id": "b1", models.ColGlideRowID: "gb1"},
	)
	page, err := m.ListPending(ctx, "invoices", PendingQuery{Exclude: []string{"a1", "a2"}, Limit: 2})
	if err != nil || len(page) != 1 || page[0].Key() != "b1" {
		t.Fatalf("ListPending(exclude a1 a2): %v err=%v", page, err)
	}
}
