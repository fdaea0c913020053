package models

import (
	"time"

	"github.com/Lllllllleong/documentpdfflow/internal/apperr"
)

// These structs define the JSON payloads of the HTTP functions.

// GeneratePDFRequest is the input of the generate-pdf function.
type GeneratePDFRequest struct {
	ID              string `json:"id" validate:"required"`
	Type            string `json:"type" validate:"required"`
	ForceRegenerate bool   `json:"forceRegenerate"`
	// Download streams the rendered bytes back instead of storing them.
	Download bool `json:"download"`
}

// BatchItem names one document in a batch.
type BatchItem struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// BackendRequest is the input of the multi-action pdf-backend function. Which
// fields are read depends on Action.
type BackendRequest struct {
	Action string `json:"action" validate:"required,oneof=generate batch scan trigger retry"`

	DocumentType      string      `json:"documentType"`
	DocumentID        string      `json:"documentId"`
	DocumentIDs       []string    `json:"documentIds"`
	Items             []BatchItem `json:"items"`
	ForceRegenerate   bool        `json:"forceRegenerate"`
	OverwriteExisting bool        `json:"overwriteExisting"`

	BatchSize  int `json:"batchSize" validate:"gte=0,lte=500"`
	Offset     int `json:"offset" validate:"gte=0"`
	MaxPages   int `json:"maxPages" validate:"gte=0,lte=20"`
	MaxRetries int `json:"maxRetries" validate:"gte=0,lte=100"`
	// DocumentTypes limits a scan to these types; Offsets carries per-type
	// positions between continued scan invocations.
	DocumentTypes []string       `json:"documentTypes,omitempty"`
	Offsets       map[string]int `json:"offsets,omitempty"`

	// Webhook-shaped trigger fields.
	Type      string `json:"type"`
	Table     string `json:"table"`
	Schema    string `json:"schema"`
	Record    Row    `json:"record"`
	OldRecord Row    `json:"old_record"`
}

// BatchRequest is the input of batch-generate-and-store-pdfs.
type BatchRequest struct {
	Items           []BatchItem `json:"items" validate:"required,min=1"`
	ForceRegenerate bool        `json:"forceRegenerate"`
}

// WebhookEvent mirrors a database change notification.
type WebhookEvent struct {
	Type      string `json:"type"`
	Table     string `json:"table"`
	Schema    string `json:"schema"`
	Record    Row    `json:"record"`
	OldRecord Row    `json:"old_record"`
}

// AutoGenerateRequest is accepted by auto-generate-pdf: either a single
// webhook event (top-level fields) or a list of them.
type AutoGenerateRequest struct {
	WebhookEvent
	Events []WebhookEvent `json:"events"`
}

// ItemResult is the outcome of generating one document.
type ItemResult struct {
	ID        string       `json:"id"`
	Type      DocumentType `json:"type"`
	Success   bool         `json:"success"`
	URL       string       `json:"url,omitempty"`
	Skipped   bool         `json:"skipped,omitempty"`
	Error     string       `json:"error,omitempty"`
	ErrorType apperr.Kind  `json:"errorType,omitempty"`
}

type GenerateResponse struct {
	Success      bool         `json:"success"`
	DocumentID   string       `json:"documentId,omitempty"`
	DocumentType DocumentType `json:"documentType,omitempty"`
	URL          string       `json:"url,omitempty"`
	Skipped      bool         `json:"skipped,omitempty"`
	Error        *apperr.Body `json:"error,omitempty"`
}

type Summary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

type BatchResponse struct {
	Success bool          `json:"success"`
	Results []ItemResult  `json:"results"`
	Summary Summary       `json:"summary"`
	Job     *BatchJobView `json:"job,omitempty"`
}

type ScanResults struct {
	TotalProcessed int          `json:"totalProcessed"`
	Successful     int          `json:"successful"`
	Failed         int          `json:"failed"`
	Details        []ItemResult `json:"details"`
	// Continued reports that a follow-up invocation was scheduled for the next page.
	Continued bool `json:"continued,omitempty"`
}

type ScanResponse struct {
	Success bool        `json:"success"`
	Results ScanResults `json:"results"`
}

type RetryResults struct {
	Processed int          `json:"processed"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Escalated int          `json:"escalated"`
	Details   []ItemResult `json:"details"`
}

type RetryResponse struct {
	Success bool         `json:"success"`
	Results RetryResults `json:"results"`
}

type TriggerResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Result  *ItemResult `json:"result,omitempty"`
}

// BatchJobView is the client-facing snapshot of a BatchJob.
type BatchJobView struct {
	ID        string      `json:"id"`
	Status    BatchStatus `json:"status"`
	Progress  int         `json:"progress"`
	Total     int         `json:"total"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// AutoGenerateResponse answers a list of webhook events.
type AutoGenerateResponse struct {
	Success bool              `json:"success"`
	Results []TriggerResponse `json:"results"`
}
