package failures

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/documentpdfflow/internal/models"
)

// dueScanLimit bounds how many due records are read before ordering by
// retry_count; Firestore cannot order by a field other than the one carrying
// the inequality without a composite index.
const dueScanLimit = 500

// Firestore keeps one document per (type, id) in a collection.
type Firestore struct {
	client     *firestore.Client
	collection string
	policy     Policy
	now        func() time.Time
}

func NewFirestore(client *firestore.Client, collection string, policy Policy) *Firestore {
	return &Firestore{client: client, collection: collection, policy: policy, now: nowUTC}
}

func docKey(docType models.DocumentType, docID string) string {
	return fmt.Sprintf("%s_%s", docType, docID)
}

func (f *Firestore) ref(docType models.DocumentType, docID string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(docKey(docType, docID))
}

func (f *Firestore) RecordFailure(ctx context.Context, docType models.DocumentType, docID string, attempt Attempt) (models.FailureRecord, error) {
	ref := f.ref(docType, docID)
	var out models.FailureRecord
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var cur models.FailureRecord
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&cur); err != nil {
				return err
			}
		}
		out = next(cur, docType, docID, attempt, f.now(), f.policy)
		return tx.Set(ref, out)
	})
	if err != nil {
		return models.FailureRecord{}, fmt.Errorf("record failure for %s %s: %w", docType, docID, err)
	}
	return out, nil
}

func (f *Firestore) RecordSuccess(ctx context.Context, docType models.DocumentType, docID string) error {
	_, err := f.ref(docType, docID).Update(ctx, []firestore.Update{
		{Path: "resolved", Value: true},
		{Path: "retry_count", Value: 0},
		{Path: "error_message", Value: ""},
		{Path: "requires_manual_intervention", Value: false},
		{Path: "force_regenerate", Value: false},
		{Path: "last_attempt", Value: f.now()},
	})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reset failure for %s %s: %w", docType, docID, err)
	}
	return nil
}

func (f *Firestore) DueForRetry(ctx context.Context, batchSize int) ([]models.FailureRecord, error) {
	iter := f.client.Collection(f.collection).
		Where("resolved", "==", false).
		Where("requires_manual_intervention", "==", false).
		Where("next_attempt", "<=", f.now()).
		OrderBy("next_attempt", firestore.Asc).
		Limit(dueScanLimit).
		Documents(ctx)
	defer iter.Stop()

	var out []models.FailureRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("select due failures: %w", err)
		}
		var rec models.FailureRecord
		if err := snap.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("decode failure %s: %w", snap.Ref.ID, err)
		}
		out = append(out, rec)
	}
	sortDue(out)
	if batchSize > 0 && len(out) > batchSize {
		out = out[:batchSize]
	}
	return out, nil
}

func (f *Firestore) Escalate(ctx context.Context, docType models.DocumentType, docID string) error {
	_, err := f.ref(docType, docID).Update(ctx, []firestore.Update{
		{Path: "requires_manual_intervention", Value: true},
	})
	if err != nil {
		return fmt.Errorf("escalate %s %s: %w", docType, docID, err)
	}
	return nil
}

// Blocked reads the unresolved records of docType and keeps the ones a scan
// must skip. Firestore has no OR across fields, so the filter runs here.
func (f *Firestore) Blocked(ctx context.Context, docType models.DocumentType) ([]string, error) {
	iter := f.client.Collection(f.collection).
		Where("document_type", "==", string(docType)).
		Where("resolved", "==", false).
		Documents(ctx)
	defer iter.Stop()

	now := f.now()
	var out []string
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("select blocked %s failures: %w", docType, err)
		}
		var rec models.FailureRecord
		if err := snap.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("decode failure %s: %w", snap.Ref.ID, err)
		}
		if blocked(rec, now) {
			out = append(out, rec.DocumentID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func sortDue(recs []models.FailureRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].RetryCount != recs[j].RetryCount {
			return recs[i].RetryCount < recs[j].RetryCount
		}
		if !recs[i].NextAttempt.Equal(recs[j].NextAttempt) {
			return recs[i].NextAttempt.Before(recs[j].NextAttempt)
		}
		return recs[i].DocumentID < recs[j].DocumentID
	})
}
