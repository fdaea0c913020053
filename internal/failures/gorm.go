package failures

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Lllllllleong/documentpdfflow/internal/models"
)

// Gorm keeps failure records in a Postgres table next to the business tables.
type Gorm struct {
	db     *gorm.DB
	table  string
	policy Policy
	now    func() time.Time
}

func NewGorm(db *gorm.DB, table string, policy Policy) *Gorm {
	return &Gorm{db: db, table: table, policy: policy, now: nowUTC}
}

// Migrate creates the failures table and its indexes when missing.
func (g *Gorm) Migrate(ctx context.Context) error {
	if err := g.db.WithContext(ctx).Table(g.table).AutoMigrate(&models.FailureRecord{}); err != nil {
		return fmt.Errorf("migrate %s: %w", g.table, err)
	}
	return nil
}

func (g *Gorm) scoped(tx *gorm.DB, docType models.DocumentType, docID string) *gorm.DB {
	return tx.Table(g.table).Where("document_type = ? AND document_id = ?", string(docType), docID)
}

func (g *Gorm) RecordFailure(ctx context.Context, docType models.DocumentType, docID string, attempt Attempt) (models.FailureRecord, error) {
	var out models.FailureRecord
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.FailureRecord
		err := g.scoped(tx, docType, docID).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&cur).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			out = next(models.FailureRecord{}, docType, docID, attempt, g.now(), g.policy)
			return tx.Table(g.table).Create(&out).Error
		case err != nil:
			return err
		}
		out = next(cur, docType, docID, attempt, g.now(), g.policy)
		return tx.Table(g.table).Where("id = ?", cur.ID).Updates(map[string]any{
			"error_message":                out.ErrorMessage,
			"retry_count":                  out.RetryCount,
			"last_attempt":                 out.LastAttempt,
			"next_attempt":                 out.NextAttempt,
			"resolved":                     out.Resolved,
			"requires_manual_intervention": out.RequiresManualIntervention,
			"force_regenerate":             out.ForceRegenerate,
		}).Error
	})
	if err != nil {
		return models.FailureRecord{}, fmt.Errorf("record failure for %s %s: %w", docType, docID, err)
	}
	return out, nil
}

func (g *Gorm) RecordSuccess(ctx context.Context, docType models.DocumentType, docID string) error {
	err := g.scoped(g.db.WithContext(ctx), docType, docID).
		Where("resolved = ?", false).
		Updates(map[string]any{
			"resolved":                     true,
			"retry_count":                  0,
			"error_message":                "",
			"requires_manual_intervention": false,
			"force_regenerate":             false,
			"last_attempt":                 g.now(),
		}).Error
	if err != nil {
		return fmt.Errorf("reset failure for %s %s: %w", docType, docID, err)
	}
	return nil
}

func (g *Gorm) DueForRetry(ctx context.Context, batchSize int) ([]models.FailureRecord, error) {
	var out []models.FailureRecord
	err := g.db.WithContext(ctx).Table(g.table).
		Where("resolved = ? AND requires_manual_intervention = ? AND next_attempt <= ?", false, false, g.now()).
		Order("retry_count ASC").Order("next_attempt ASC").
		Limit(batchSize).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("select due failures: %w", err)
	}
	return out, nil
}

func (g *Gorm) Escalate(ctx context.Context, docType models.DocumentType, docID string) error {
	res := g.scoped(g.db.WithContext(ctx), docType, docID).
		Update("requires_manual_intervention", true)
	if res.Error != nil {
		return fmt.Errorf("escalate %s %s: %w", docType, docID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("escalate %s %s: no failure record", docType, docID)
	}
	return nil
}

func (g *Gorm) Blocked(ctx context.Context, docType models.DocumentType) ([]string, error) {
	var ids []string
	err := g.db.WithContext(ctx).Table(g.table).
		Where("document_type = ? AND resolved = ?", string(docType), false).
		Where("(requires_manual_intervention = ? OR next_attempt > ?)", true, g.now()).
		Order("document_id").
		Pluck("document_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("select blocked %s failures: %w", docType, err)
	}
	return ids, nil
}
