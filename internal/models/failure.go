package models

import "time"

// FailureRecord is the persisted retry state of one document's PDF generation.
type FailureRecord struct {
	ID                         uint         `gorm:"primaryKey" firestore:"-" json:"-"`
	DocumentType               DocumentType `gorm:"column:document_type;uniqueIndex:idx_pdf_failure_document" firestore:"document_type" json:"document_type"`
	DocumentID                 string       `gorm:"column:document_id;uniqueIndex:idx_pdf_failure_document" firestore:"document_id" json:"document_id"`
	ErrorMessage               string       `gorm:"column:error_message" firestore:"error_message" json:"error_message"`
	RetryCount                 int          `gorm:"column:retry_count" firestore:"retry_count" json:"retry_count"`
	LastAttempt                time.Time    `gorm:"column:last_attempt" firestore:"last_attempt" json:"last_attempt"`
	NextAttempt                time.Time    `gorm:"column:next_attempt;index" firestore:"next_attempt" json:"next_attempt"`
	Resolved                   bool         `gorm:"column:resolved" firestore:"resolved" json:"resolved"`
	RequiresManualIntervention bool         `gorm:"column:requires_manual_intervention" firestore:"requires_manual_intervention" json:"requires_manual_intervention"`
	// ForceRegenerate is set when any failed attempt was a forced
	// regeneration; retries then replace the linked PDF instead of keeping it.
	ForceRegenerate bool `gorm:"column:force_regenerate" firestore:"force_regenerate" json:"force_regenerate"`
}
