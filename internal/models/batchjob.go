package models

import (
	"fmt"
	"time"
)

type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// BatchJob tracks a client-submitted batch. Status only moves forward:
// pending -> processing -> completed | failed.
type BatchJob struct {
	ID           string
	DocumentType DocumentType
	Items        []BatchItem
	Status       BatchStatus
	Progress     int
	Total        int
	Results      []ItemResult
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchPending:    {BatchProcessing},
	BatchProcessing: {BatchCompleted, BatchFailed},
}

// Advance moves the job to next, rejecting any transition that is not forward.
func (j *BatchJob) Advance(next BatchStatus, now time.Time) error {
	for _, allowed := range batchTransitions[j.Status] {
		if allowed == next {
			j.Status = next
			j.UpdatedAt = now
			return nil
		}
	}
	return fmt.Errorf("batch job %s: illegal transition %s -> %s", j.ID, j.Status, next)
}

func (j *BatchJob) View() *BatchJobView {
	return &BatchJobView{
		ID:        j.ID,
		Status:    j.Status,
		Progress:  j.Progress,
		Total:     j.Total,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}
