package failures

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Lllllllleong/documentpdfflow/internal/models"
)

func TestPolicyDelay(t *testing.T) {
	p := DefaultPolicy
	cases := []struct {
		n    int
		want time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 5 * time.Minute},
		{2, 10 * time.Minute},
		{3, 20 * time.Minute},
		{9, 21*time.Hour + 20*time.Minute},
		{10, 24 * time.Hour},
		{60, 24 * time.Hour},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.n); got != tc.want {
			t.Fatalf("Delay(%d): want=%s got=%s", tc.n, tc.want, got)
		}
	}
}

// exerciseTracker runs the same lifecycle against any Tracker whose clock is
// driven by *now.
func exerciseTracker(t *testing.T, tr Tracker, now *time.Time) {
	t.Helper()
	ctx := context.Background()

	rec, err := tr.RecordFailure(ctx, models.Invoice, "inv-1", Attempt{Message: "render failed", Force: true})
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if rec.RetryCount != 1 || rec.Resolved || rec.RequiresManualIntervention || !rec.ForceRegenerate {
		t.Fatalf("first failure: got=%+v", rec)
	}
	if want := now.Add(5 * time.Minute); !rec.NextAttempt.Equal(want) {
		t.Fatalf("next_attempt: want=%s got=%s", want, rec.NextAttempt)
	}

	rec, err = tr.RecordFailure(ctx, models.Invoice, "inv-1", Attempt{Message: "upload failed"})
	if err != nil {
		t.Fatalf("RecordFailure #2: %v", err)
	}
	if rec.RetryCount != 2 || rec.ErrorMessage != "upload failed" {
		t.Fatalf("second failure: got=%+v", rec)
	}
	if !rec.ForceRegenerate {
		t.Fatalf("force intent should survive a later unforced failure: got=%+v", rec)
	}

	if _, err := tr.RecordFailure(ctx, models.Estimate, "est-1", Attempt{Message: "boom"}); err != nil {
		t.Fatalf("RecordFailure est: %v", err)
	}

	due, err := tr.DueForRetry(ctx, 10)
	if err != nil {
		t.Fatalf("DueForRetry: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("nothing should be due yet, got=%d", len(due))
	}
	blocked, err := tr.Blocked(ctx, models.Invoice)
	if err != nil {
		t.Fatalf("Blocked: %v", err)
	}
	if len(blocked) != 1 || blocked[0] != "inv-1" {
		t.Fatalf("Blocked before due: want=[inv-1] got=%v", blocked)
	}

	*now = now.Add(time.Hour)
	due, err = tr.DueForRetry(ctx, 10)
	if err != nil {
		t.Fatalf("DueForRetry: %v", err)
	}
	if len(due) != 2 || due[0].DocumentID != "est-1" || due[1].DocumentID != "inv-1" {
		t.Fatalf("due order: want [est-1 inv-1] got=%v", due)
	}
	if due, _ = tr.DueForRetry(ctx, 1); len(due) != 1 {
		t.Fatalf("batch cap: want=1 got=%d", len(due))
	}
	if blocked, _ = tr.Blocked(ctx, models.Invoice); len(blocked) != 0 {
		t.Fatalf("Blocked once due: want none got=%v", blocked)
	}

	if err := tr.Escalate(ctx, models.Estimate, "est-1"); err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if err := tr.RecordSuccess(ctx, models.Invoice, "inv-1"); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}
	if due, _ = tr.DueForRetry(ctx, 10); len(due) != 0 {
		t.Fatalf("after success and escalation: want none due got=%v", due)
	}
	if blocked, _ = tr.Blocked(ctx, models.Estimate); len(blocked) != 1 || blocked[0] != "est-1" {
		t.Fatalf("Blocked escalated: want=[est-1] got=%v", blocked)
	}

	rec, err = tr.RecordFailure(ctx, models.Invoice, "inv-1", Attempt{Message: "again"})
	if err != nil {
		t.Fatalf("RecordFailure after success: %v", err)
	}
	if rec.RetryCount != 1 || rec.Resolved || rec.ForceRegenerate {
		t.Fatalf("failure after success should start a fresh record, got=%+v", rec)
	}

	if err := tr.RecordSuccess(ctx, models.PurchaseOrder, "never-failed"); err != nil {
		t.Fatalf("RecordSuccess without record: %v", err)
	}
}

func TestMemoryTracker(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(DefaultPolicy)
	m.Now = func() time.Time { return now }
	exerciseTracker(t, m, &now)

	rec, ok := m.Get(models.Estimate, "est-1")
	if !ok || !rec.RequiresManualIntervention {
		t.Fatalf("escalated record: got=%+v ok=%v", rec, ok)
	}
}

func TestGormTracker(t *testing.T) {
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
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	g := NewGorm(db, "pdf_generation_failures", DefaultPolicy)
	g.now = func() time.Time { return now }
	if err := g.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	exerciseTracker(t, g, &now)

	if err := g.Escalate(context.Background(), models.Invoice, "missing"); err == nil {
		t.Fatalf("Escalate missing: expected error")
	}
}
