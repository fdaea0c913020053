// Package failures persists per-document generation failures and decides when
// each one is next due for an automatic retry.
package failures

import (
	"context"
	"time"

	"github.com/Lllllllleong/documentpdfflow/internal/models"
)

// Attempt describes one failed generation.
type Attempt struct {
	Message string
	// Force marks a forced regeneration. It sticks to the record until the
	// document succeeds.
	Force bool
}

// Tracker records generation outcomes. RecordFailure creates the record on
// first failure and increments retry_count on every later one; RecordSuccess
// clears it.
type Tracker interface {
	RecordFailure(ctx context.Context, docType models.DocumentType, docID string, attempt Attempt) (models.FailureRecord, error)
	RecordSuccess(ctx context.Context, docType models.DocumentType, docID string) error
	// DueForRetry returns unresolved, non-escalated records whose next_attempt
	// has passed, fewest retries first.
	DueForRetry(ctx context.Context, batchSize int) ([]models.FailureRecord, error)
	// Escalate flags the record for manual intervention; it is never selected
	// by DueForRetry again.
	Escalate(ctx context.Context, docType models.DocumentType, docID string) error
	// Blocked returns the ids of docType whose records scans must leave
	// alone: escalated, or not yet due again.
	Blocked(ctx context.Context, docType models.DocumentType) ([]string, error)
}

// Policy is the backoff schedule: Base after the first failure, doubling per
// retry, never more than Max.
type Policy struct {
	Base time.Duration
	Max  time.Duration
}

var DefaultPolicy = Policy{Base: 5 * time.Minute, Max: 24 * time.Hour}

func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	d := p.Base
	for i := 1; i < retryCount; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

func (p Policy) NextAttempt(now time.Time, retryCount int) time.Time {
	return now.Add(p.Delay(retryCount))
}

// next applies one failure to rec (zero value for a new record).
func next(rec models.FailureRecord, docType models.DocumentType, docID string, a Attempt, now time.Time, p Policy) models.FailureRecord {
	if rec.Resolved {
		rec.RetryCount = 0
		rec.Resolved = false
		rec.RequiresManualIntervention = false
		rec.ForceRegenerate = false
	}
	rec.DocumentType = docType
	rec.DocumentID = docID
	rec.ErrorMessage = a.Message
	rec.ForceRegenerate = rec.ForceRegenerate || a.Force
	rec.RetryCount++
	rec.LastAttempt = now
	rec.NextAttempt = p.NextAttempt(now, rec.RetryCount)
	return rec
}

// blocked reports whether scans should skip rec at now.
func blocked(rec models.FailureRecord, now time.Time) bool {
	if rec.Resolved {
		return false
	}
	return rec.RequiresManualIntervention || rec.NextAttempt.After(now)
}

func nowUTC() time.Time { return time.Now().UTC() }
