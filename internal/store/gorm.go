package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Lllllllleong/documentpdfflow/internal/models"
)

// OpenPostgres connects to the backing Postgres. The simple protocol is used
// because hosted poolers (pgbouncer in transaction mode) reject prepared
// statements.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn must be provided")
	}
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql.DB: %w", err)
	}
	// One function instance serves one request at a time.
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

type Gorm struct {
	db     *gorm.DB
	prefix string
	log    *slog.Logger
}

func NewGorm(db *gorm.DB, tablePrefix string, log *slog.Logger) *Gorm {
	if log == nil {
		log = slog.Default()
	}
	return &Gorm{db: db, prefix: tablePrefix, log: log.With("repo", "store.Gorm")}
}

func (g *Gorm) table(ctx context.Context, name string) *gorm.DB {
	return g.db.WithContext(ctx).Table(g.prefix + name)
}

func eq(column string, value any) clause.Expression {
	return clause.Eq{Column: clause.Column{Name: column}, Value: value}
}

func (g *Gorm) FindOne(ctx context.Context, table, column, value string) (models.Row, error) {
	var rows []map[string]any
	if err := g.table(ctx, table).Where(eq(column, value)).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select %s where %s: %w", table, column, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return models.Row(rows[0]), nil
}

func (g *Gorm) FindMany(ctx context.Context, table, column, value string) ([]models.Row, error) {
	var rows []map[string]any
	if err := g.table(ctx, table).Where(eq(column, value)).Order(models.ColID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select %s where %s: %w", table, column, err)
	}
	return toRows(rows), nil
}

func (g *Gorm) FindIn(ctx context.Context, table, column string, values []string) ([]models.Row, error) {
	if len(values) == 0 {
		return nil, nil
	}
	in := make([]any, len(values))
	for i, v := range values {
		in[i] = v
	}
	var rows []map[string]any
	err := g.table(ctx, table).
		Where(clause.IN{Column: clause.Column{Name: column}, Values: in}).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select %s where %s in (%d values): %w", table, column, len(values), err)
	}
	return toRows(rows), nil
}

func (g *Gorm) UpdateColumn(ctx context.Context, table, id, column string, value any) error {
	res := g.table(ctx, table).Where(eq(models.ColID, id)).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update %s.%s for id %s: %w", table, column, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update %s.%s: no row with id %s", table, column, id)
	}
	return nil
}

func (g *Gorm) ListPending(ctx context.Context, table string, pq PendingQuery) ([]models.Row, error) {
	q := g.table(ctx, table)
	if !pq.IncludeLinked {
		q = q.Where(eq(models.ColPDFURL, nil))
	}
	if len(pq.Exclude) > 0 {
		// Same fallback as Row.Key; the cast keeps uuid ids comparable to
		// glide ids.
		q = q.Where("COALESCE(CAST(id AS TEXT), glide_row_id, '') NOT IN ?", pq.Exclude)
	}
	var rows []map[string]any
	if err := q.Order(models.ColID).Limit(pq.Limit).Offset(pq.Offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	return toRows(rows), nil
}

func toRows(in []map[string]any) []models.Row {
	out := make([]models.Row, len(in))
	for i, r := range in {
		out[i] = models.Row(r)
	}
	return out
}
