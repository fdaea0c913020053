package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/documentpdfflow/internal/apperr"
	"github.com/Lllllllleong/documentpdfflow/internal/failures"
	"github.com/Lllllllleong/documentpdfflow/internal/models"
	"github.com/Lllllllleong/documentpdfflow/internal/store"
)

const (
	defaultMaxRetries     = 10
	defaultScanBatchSize  = 50
	defaultRetryBatchSize = 20
)

// Continuer hands the next scan page to a fresh invocation.
type Continuer interface {
	Trigger(ctx context.Context, payload any) (string, error)
}

// Progress is called after every batch item.
type Progress func(job *models.BatchJob, last models.ItemResult)

type OrchestratorConfig struct {
	TablePrefix    string
	MaxRetries     int
	ScanBatchSize  int
	RetryBatchSize int
}

// Orchestrator runs many single-document generations. Items are processed
// one after another and a failing item never stops the run.
type Orchestrator struct {
	gen       *Generator
	repo      store.Repository
	tracker   failures.Tracker
	continuer Continuer
	cfg       OrchestratorConfig
	log       *slog.Logger
	now       func() time.Time
}

// NewOrchestrator wires an orchestrator. tracker and continuer may be nil:
// without a tracker failures are not persisted and retry is unavailable,
// without a continuer a scan processes a single page.
func NewOrchestrator(gen *Generator, repo store.Repository, tracker failures.Tracker, continuer Continuer, cfg OrchestratorConfig, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.ScanBatchSize <= 0 {
		cfg.ScanBatchSize = defaultScanBatchSize
	}
	if cfg.RetryBatchSize <= 0 {
		cfg.RetryBatchSize = defaultRetryBatchSize
	}
	return &Orchestrator{
		gen:       gen,
		repo:      repo,
		tracker:   tracker,
		continuer: continuer,
		cfg:       cfg,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Generate runs one document and keeps its failure record in step with the
// outcome. The record is kept under the document key, not the id the caller
// happened to use.
func (o *Orchestrator) Generate(ctx context.Context, docType models.DocumentType, docID string, opts GenerateOptions) (*Outcome, error) {
	key, out, err := o.gen.generate(ctx, docType, docID, opts)
	if err != nil {
		o.recordFailure(ctx, docType, key, err, opts.regenerate(), o.cfg.MaxRetries)
		return nil, err
	}
	o.recordSuccess(ctx, docType, key)
	return out, nil
}

// recordFailure persists err and escalates the record once its count passes
// maxRetries. It reports whether it escalated. Bad requests and lock
// contention are not failures of the document itself and are not recorded.
func (o *Orchestrator) recordFailure(ctx context.Context, docType models.DocumentType, docID string, err error, force bool, maxRetries int) bool {
	if o.tracker == nil {
		return false
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindConflict:
		return false
	}
	logCtx := o.log.With("documentType", docType, "documentId", docID)
	rec, terr := o.tracker.RecordFailure(ctx, docType, docID, failures.Attempt{Message: err.Error(), Force: force})
	if terr != nil {
		logCtx.Error("Failed to record generation failure.", "error", terr)
		return false
	}
	if rec.RetryCount > maxRetries && !rec.RequiresManualIntervention {
		return o.escalate(ctx, logCtx.With("retryCount", rec.RetryCount), rec)
	}
	return false
}

func (o *Orchestrator) recordSuccess(ctx context.Context, docType models.DocumentType, docID string) {
	if o.tracker == nil {
		return
	}
	if err := o.tracker.RecordSuccess(ctx, docType, docID); err != nil {
		o.log.Error("Failed to clear failure record.", "documentType", docType, "documentId", docID, "error", err)
	}
}

func itemResult(id string, docType models.DocumentType, out *Outcome, err error) models.ItemResult {
	res := models.ItemResult{ID: id, Type: docType}
	if err != nil {
		res.Error = err.Error()
		res.ErrorType = apperr.KindOf(err)
		return res
	}
	res.Success = true
	res.URL = out.URL
	res.Skipped = out.Skipped
	return res
}

// item never returns an error: malformed items become failed results.
func (o *Orchestrator) item(ctx context.Context, it models.BatchItem, opts GenerateOptions) models.ItemResult {
	if strings.TrimSpace(it.ID) == "" || strings.TrimSpace(it.Type) == "" {
		return itemResult(it.ID, models.DocumentType(it.Type), nil, apperr.Validation("item requires both id and type"))
	}
	docType, err := models.ParseDocumentType(it.Type)
	if err != nil {
		return itemResult(it.ID, models.DocumentType(it.Type), nil, apperr.Validation("%v", err))
	}
	out, err := o.Generate(ctx, docType, it.ID, opts)
	return itemResult(it.ID, docType, out, err)
}

// Summarize counts results.
func Summarize(results []models.ItemResult) models.Summary {
	s := models.Summary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			s.Success++
		} else {
			s.Failed++
		}
	}
	return s
}

// Batch generates items in order. The job ends failed only when every item
// failed.
func (o *Orchestrator) Batch(ctx context.Context, items []models.BatchItem, opts GenerateOptions, progress Progress) *models.BatchJob {
	now := o.now()
	job := &models.BatchJob{
		ID:        uuid.NewString(),
		Items:     items,
		Status:    models.BatchPending,
		Total:     len(items),
		Results:   make([]models.ItemResult, 0, len(items)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if t, ok := singleType(items); ok {
		job.DocumentType = t
	}
	logCtx := o.log.With("batchId", job.ID, "total", job.Total)
	if err := job.Advance(models.BatchProcessing, o.now()); err != nil {
		logCtx.Error("Batch job did not start.", "error", err)
	}

	for _, it := range items {
		r := o.item(ctx, it, opts)
		job.Results = append(job.Results, r)
		job.Progress++
		job.UpdatedAt = o.now()
		if progress != nil {
			progress(job, r)
		}
	}

	final := models.BatchCompleted
	if sum := Summarize(job.Results); sum.Total > 0 && sum.Success == 0 {
		final = models.BatchFailed
	}
	if err := job.Advance(final, o.now()); err != nil {
		logCtx.Error("Batch job did not finish cleanly.", "error", err)
	}
	logCtx.Info("Batch finished.", "status", job.Status, "summary", Summarize(job.Results))
	return job
}

// LogProgress is a Progress that logs each item.
func (o *Orchestrator) LogProgress(job *models.BatchJob, last models.ItemResult) {
	o.log.Info("Batch progress.", "batchId", job.ID, "progress", job.Progress, "total", job.Total,
		"documentType", last.Type, "documentId", last.ID, "success", last.Success)
}

func singleType(items []models.BatchItem) (models.DocumentType, bool) {
	var first models.DocumentType
	for i, it := range items {
		t, err := models.ParseDocumentType(it.Type)
		if err != nil {
			return "", false
		}
		if i == 0 {
			first = t
		} else if t != first {
			return "", false
		}
	}
	return first, first != ""
}

// ItemsFromRequest accepts either items or documentType with documentIds.
func ItemsFromRequest(req models.BackendRequest) ([]models.BatchItem, error) {
	if len(req.Items) > 0 {
		return req.Items, nil
	}
	if len(req.DocumentIDs) == 0 {
		return nil, apperr.Validation("batch requires items or documentType with documentIds")
	}
	if strings.TrimSpace(req.DocumentType) == "" {
		return nil, apperr.Validation("documentType is required with documentIds")
	}
	items := make([]models.BatchItem, len(req.DocumentIDs))
	for i, id := range req.DocumentIDs {
		items[i] = models.BatchItem{ID: id, Type: req.DocumentType}
	}
	return items, nil
}

// ScanOptions selects one page per document type.
type ScanOptions struct {
	GenerateOptions
	BatchSize int
	// Types defaults to every document type.
	Types []models.DocumentType
	// Offset applies to types without an entry in Offsets.
	Offset  int
	Offsets map[models.DocumentType]int
	// MaxPages bounds continuation: 0 is unbounded, 1 stops after this page.
	MaxPages int
}

func (s ScanOptions) offset(t models.DocumentType) int {
	if off, ok := s.Offsets[t]; ok {
		return off
	}
	return s.Offset
}

// Scan generates PDFs for rows without one (every row when regenerating),
// one page of BatchSize rows per type. Rows whose failure record is escalated
// or not yet due are left out, so a fresh scan always reaches rows behind
// ones that keep failing. When a page comes back full and a continuer is
// configured, the next page is handed to a new invocation.
func (o *Orchestrator) Scan(ctx context.Context, opts ScanOptions) (models.ScanResults, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = o.cfg.ScanBatchSize
	}
	types := opts.Types
	if len(types) == 0 {
		types = models.DocumentTypes
	}
	includeLinked := opts.regenerate()
	results := models.ScanResults{Details: []models.ItemResult{}}
	nextOffsets := map[models.DocumentType]int{}
	listFailures := 0

	for _, docType := range types {
		cfg, err := models.ConfigFor(docType)
		if err != nil {
			return results, apperr.Validation("%v", err)
		}
		offset := opts.offset(docType)
		logCtx := o.log.With("documentType", docType, "offset", offset, "batchSize", opts.BatchSize)

		exclude := o.blocked(ctx, logCtx, docType)
		rows, err := o.repo.ListPending(ctx, cfg.Table, store.PendingQuery{
			IncludeLinked: includeLinked,
			Exclude:       exclude,
			Limit:         opts.BatchSize,
			Offset:        offset,
		})
		if err != nil {
			listFailures++
			logCtx.Error("Failed to list documents for scan.", "error", err)
			continue
		}
		logCtx.Info("Scanning documents.", "found", len(rows))

		var kept []string
		for _, row := range rows {
			id := row.Key()
			out, err := o.Generate(ctx, docType, id, opts.GenerateOptions)
			r := itemResult(id, docType, out, err)
			results.Details = append(results.Details, r)
			results.TotalProcessed++
			if r.Success {
				results.Successful++
			} else {
				results.Failed++
			}
			// Linked rows leave the pending set unless everything is listed.
			if includeLinked || !r.Success {
				kept = append(kept, id)
			}
		}

		if len(rows) == opts.BatchSize {
			// Rows still listed next time are stepped over; rows that just
			// got a failure record drop out through the exclusion instead.
			nowBlocked := map[string]bool{}
			for _, id := range o.blocked(ctx, logCtx, docType) {
				nowBlocked[id] = true
			}
			next := offset
			for _, id := range kept {
				if !nowBlocked[id] {
					next++
				}
			}
			nextOffsets[docType] = next
		}
	}

	if listFailures == len(types) {
		return results, apperr.Database("failed to list documents for scan", nil)
	}
	if len(nextOffsets) > 0 {
		results.Continued = o.continueScan(ctx, opts, nextOffsets)
	}
	return results, nil
}

// blocked lists the keys scans skip. Without a tracker, or when it cannot be
// read, nothing is skipped.
func (o *Orchestrator) blocked(ctx context.Context, logCtx *slog.Logger, docType models.DocumentType) []string {
	if o.tracker == nil {
		return nil
	}
	ids, err := o.tracker.Blocked(ctx, docType)
	if err != nil {
		logCtx.Warn("Failed to read blocked documents; scanning without exclusions.", "error", err)
		return nil
	}
	return ids
}

func (o *Orchestrator) continueScan(ctx context.Context, opts ScanOptions, offsets map[models.DocumentType]int) bool {
	if o.continuer == nil || opts.MaxPages == 1 {
		return false
	}
	req := models.BackendRequest{
		Action:            "scan",
		ForceRegenerate:   opts.ForceRegenerate,
		OverwriteExisting: opts.OverwriteExisting,
		BatchSize:         opts.BatchSize,
		Offsets:           map[string]int{},
	}
	if opts.MaxPages > 1 {
		req.MaxPages = opts.MaxPages - 1
	}
	for _, t := range models.DocumentTypes {
		if off, ok := offsets[t]; ok {
			req.DocumentTypes = append(req.DocumentTypes, string(t))
			req.Offsets[string(t)] = off
		}
	}
	name, err := o.continuer.Trigger(ctx, req)
	if err != nil {
		o.log.Error("Failed to continue scan; the next scheduled scan picks up the rest.", "error", err)
		return false
	}
	o.log.Info("Scan continued in a new execution.", "execution", name, "offsets", req.Offsets)
	return true
}

// ScanOptionsFromRequest reads a scan action.
func ScanOptionsFromRequest(req models.BackendRequest) (ScanOptions, error) {
	opts := ScanOptions{
		GenerateOptions: GenerateOptions{ForceRegenerate: req.ForceRegenerate, OverwriteExisting: req.OverwriteExisting},
		BatchSize:       req.BatchSize,
		Offset:          req.Offset,
		MaxPages:        req.MaxPages,
	}
	for _, s := range req.DocumentTypes {
		t, err := models.ParseDocumentType(s)
		if err != nil {
			return opts, apperr.Validation("%v", err)
		}
		opts.Types = append(opts.Types, t)
	}
	if len(req.Offsets) > 0 {
		opts.Offsets = map[models.DocumentType]int{}
		for s, off := range req.Offsets {
			t, err := models.ParseDocumentType(s)
			if err != nil {
				return opts, apperr.Validation("%v", err)
			}
			if off < 0 {
				return opts, apperr.Validation("offset for %s must not be negative", s)
			}
			opts.Offsets[t] = off
		}
	}
	return opts, nil
}

type RetryOptions struct {
	BatchSize  int
	MaxRetries int
}

// Retry regenerates documents whose failure records are due. Records that
// already reached MaxRetries are escalated instead of retried.
func (o *Orchestrator) Retry(ctx context.Context, opts RetryOptions) (models.RetryResults, error) {
	results := models.RetryResults{Details: []models.ItemResult{}}
	if o.tracker == nil {
		return results, apperr.Validation("retry requires failure tracking")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = o.cfg.RetryBatchSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = o.cfg.MaxRetries
	}

	due, err := o.tracker.DueForRetry(ctx, opts.BatchSize)
	if err != nil {
		return results, apperr.Database("failed to load failures due for retry", err)
	}
	o.log.Info("Retrying failed documents.", "due", len(due), "maxRetries", opts.MaxRetries)

	for _, rec := range due {
		logCtx := o.log.With("documentType", rec.DocumentType, "documentId", rec.DocumentID, "retryCount", rec.RetryCount)
		results.Processed++

		if rec.RetryCount >= opts.MaxRetries {
			if o.escalate(ctx, logCtx, rec) {
				results.Escalated++
			}
			results.Failed++
			results.Details = append(results.Details, models.ItemResult{
				ID: rec.DocumentID, Type: rec.DocumentType,
				Error: fmt.Sprintf("retry limit of %d reached; requires manual intervention", opts.MaxRetries),
			})
			continue
		}

		// A forced regeneration that failed must not be satisfied by the PDF
		// that was linked before it.
		key, out, err := o.gen.generate(ctx, rec.DocumentType, rec.DocumentID, GenerateOptions{ForceRegenerate: rec.ForceRegenerate})
		results.Details = append(results.Details, itemResult(rec.DocumentID, rec.DocumentType, out, err))
		if err == nil {
			results.Succeeded++
			o.recordSuccess(ctx, rec.DocumentType, rec.DocumentID)
			if key != rec.DocumentID {
				o.recordSuccess(ctx, rec.DocumentType, key)
			}
			continue
		}

		results.Failed++
		if o.recordFailure(ctx, rec.DocumentType, rec.DocumentID, err, rec.ForceRegenerate, opts.MaxRetries) {
			results.Escalated++
		}
	}
	return results, nil
}

func (o *Orchestrator) escalate(ctx context.Context, logCtx *slog.Logger, rec models.FailureRecord) bool {
	if err := o.tracker.Escalate(ctx, rec.DocumentType, rec.DocumentID); err != nil {
		logCtx.Error("Failed to escalate failure record.", "error", err)
		return false
	}
	logCtx.Warn("Failure escalated to manual intervention.", "lastError", rec.ErrorMessage)
	return true
}

// Columns that change without changing what a PDF shows.
var unrenderedColumns = map[string]bool{
	models.ColPDFURL: true,
	"updated_at":     true,
	"created_at":     true,
}

func renderedFieldChanged(record, old models.Row) bool {
	for k := range record {
		if !unrenderedColumns[k] && record.String(k) != old.String(k) {
			return true
		}
	}
	for k := range old {
		if _, ok := record[k]; !ok && !unrenderedColumns[k] && old.String(k) != "" {
			return true
		}
	}
	return false
}

func ack(message string) models.TriggerResponse {
	return models.TriggerResponse{Success: true, Message: message}
}

// Trigger reacts to one database change. Document inserts generate, updates
// regenerate when a rendered field changed or no PDF exists yet, and a line
// change regenerates its parent document. Everything else is acknowledged
// without work.
func (o *Orchestrator) Trigger(ctx context.Context, ev models.WebhookEvent) (models.TriggerResponse, error) {
	op := strings.ToUpper(strings.TrimSpace(ev.Type))
	table := strings.TrimPrefix(strings.TrimSpace(ev.Table), o.cfg.TablePrefix)
	logCtx := o.log.With("event", op, "table", table)

	switch op {
	case "INSERT", "UPDATE":
	case "DELETE":
		return ack("Delete events do not generate PDFs."), nil
	default:
		return models.TriggerResponse{}, apperr.Validation("unsupported event type %q", ev.Type)
	}
	if table == "" {
		return models.TriggerResponse{}, apperr.Validation("table is required")
	}
	if ev.Record == nil {
		return models.TriggerResponse{}, apperr.Validation("record is required")
	}

	var (
		docType models.DocumentType
		docID   string
		opts    GenerateOptions
	)
	if t, ok := models.DocumentTableType(table); ok {
		if strings.EqualFold(ev.Record.String("status"), "draft") {
			return ack("Draft documents do not generate PDFs."), nil
		}
		hasPDF := ev.Record.String(models.ColPDFURL) != ""
		if op == "UPDATE" && ev.OldRecord != nil && hasPDF && !renderedFieldChanged(ev.Record, ev.OldRecord) {
			return ack("No rendered field changed."), nil
		}
		docType = t
		docID = ev.Record.String(models.ColID, models.ColGlideRowID)
		opts.ForceRegenerate = op == "UPDATE"
	} else if t, ok := models.LineTableParent(table); ok {
		cfg, _ := models.ConfigFor(t)
		docType = t
		docID = ev.Record.String(cfg.LineRefFields...)
		if docID == "" {
			return ack("Line has no parent reference."), nil
		}
		opts.ForceRegenerate = true
	} else {
		return ack("Table is not watched."), nil
	}
	if docID == "" {
		return models.TriggerResponse{}, apperr.Validation("record has neither id nor glide_row_id")
	}

	logCtx.Info("Change triggers PDF generation.", "documentType", docType, "documentId", docID)
	out, err := o.Generate(ctx, docType, docID, opts)
	r := itemResult(docID, docType, out, err)
	if err != nil {
		return models.TriggerResponse{Success: false, Message: "PDF generation failed.", Result: &r}, err
	}
	return models.TriggerResponse{Success: true, Message: "PDF generated.", Result: &r}, nil
}
