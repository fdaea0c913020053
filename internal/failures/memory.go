package failures

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Lllllllleong/documentpdfflow/internal/models"
)

// Memory is an in-process Tracker. Now may be replaced to move time.
type Memory struct {
	mu      sync.Mutex
	records map[string]*models.FailureRecord
	policy  Policy
	Now     func() time.Time
}

func NewMemory(policy Policy) *Memory {
	return &Memory{records: map[string]*models.FailureRecord{}, policy: policy, Now: nowUTC}
}

// Put stores rec as is.
func (m *Memory) Put(rec models.FailureRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[docKey(rec.DocumentType, rec.DocumentID)] = &rec
}

// Get returns the stored record for (docType, docID).
func (m *Memory) Get(docType models.DocumentType, docID string) (models.FailureRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[docKey(docType, docID)]
	if !ok {
		return models.FailureRecord{}, false
	}
	return *rec, true
}

func (m *Memory) RecordFailure(_ context.Context, docType models.DocumentType, docID string, attempt Attempt) (models.FailureRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cur models.FailureRecord
	if rec, ok := m.records[docKey(docType, docID)]; ok {
		cur = *rec
	}
	out := next(cur, docType, docID, attempt, m.Now(), m.policy)
	m.records[docKey(docType, docID)] = &out
	return out, nil
}

func (m *Memory) RecordSuccess(_ context.Context, docType models.DocumentType, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[docKey(docType, docID)]
	if !ok {
		return nil
	}
	rec.Resolved = true
	rec.RetryCount = 0
	rec.ErrorMessage = ""
	rec.RequiresManualIntervention = false
	rec.ForceRegenerate = false
	rec.LastAttempt = m.Now()
	return nil
}

func (m *Memory) DueForRetry(_ context.Context, batchSize int) ([]models.FailureRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	var out []models.FailureRecord
	for _, rec := range m.records {
		if rec.Resolved || rec.RequiresManualIntervention || rec.NextAttempt.After(now) {
			continue
		}
		out = append(out, *rec)
	}
	sortDue(out)
	if batchSize > 0 && len(out) > batchSize {
		out = out[:batchSize]
	}
	return out, nil
}

func (m *Memory) Escalate(_ context.Context, docType models.DocumentType, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[docKey(docType, docID)]
	if !ok {
		return fmt.Errorf("escalate %s %s: no failure record", docType, docID)
	}
	rec.RequiresManualIntervention = true
	return nil
}

func (m *Memory) Blocked(_ context.Context, docType models.DocumentType) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	var out []string
	for _, rec := range m.records {
		if rec.DocumentType == docType && blocked(*rec, now) {
			out = append(out, rec.DocumentID)
		}
	}
	sort.Strings(out)
	return out, nil
}
