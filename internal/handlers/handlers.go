// Package handlers adapts the HTTP and CloudEvent entry points to the
// services layer. Every JSON response carries a success flag.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/go-playground/validator/v10"

	"github.com/Lllllllleong/documentpdfflow/internal/apperr"
	"github.com/Lllllllleong/documentpdfflow/internal/blob"
	"github.com/Lllllllleong/documentpdfflow/internal/models"
	"github.com/Lllllllleong/documentpdfflow/internal/services"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	svc      *services.Service
	validate *validator.Validate
	log      *slog.Logger
}

func New(svc *services.Service) *Handlers {
	log := svc.Log
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{svc: svc, validate: validator.New(), log: log}
}

// --- CORS and response helpers ---

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "authorization, x-client-info, apikey, content-type",
	"Access-Control-Allow-Methods": "POST, OPTIONS",
	"Access-Control-Max-Age":       "86400",
}

// CORS answers preflight requests and adds the permissive header set to
// every response. Only POST reaches next.
func CORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for k, v := range corsHeaders {
			w.Header().Set(k, v)
		}
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, "ok")
			return
		case http.MethodPost:
			next(w, r)
		default:
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
				"success": false,
				"error":   apperr.Body{Type: apperr.KindValidation, Message: "method " + r.Method + " not allowed"},
			})
		}
	}
}

// Unavailable answers every request with 500 after a failed cold start.
func Unavailable(initErr error) http.HandlerFunc {
	return CORS(func(w http.ResponseWriter, r *http.Request) {
		slog.Error("Service unavailable after failed initialisation.", "error", initErr)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   apperr.Body{Type: apperr.KindDatabase, Message: "service failed to initialise"},
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed.", "errorType", apperr.KindOf(err), "error", err)
	} else {
		h.log.Warn("Request rejected.", "errorType", apperr.KindOf(err), "error", err)
	}
	writeJSON(w, status, map[string]any{"success": false, "error": apperr.ToBody(err)})
}

// decode reads and validates a JSON body into dst.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return apperr.Validation("could not parse JSON body: %v", err)
	}
	return h.check(dst)
}

func (h *Handlers) check(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("%v", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	sort.Strings(fields)
	return apperr.Validation("invalid request: %s", strings.Join(fields, ", "))
}

func parseType(s string) (models.DocumentType, error) {
	t, err := models.ParseDocumentType(s)
	if err != nil {
		return "", apperr.Validation("%v", err)
	}
	return t, nil
}

// --- generate-pdf ---

// GeneratePDF generates one document. With "download": true the PDF is
// streamed back instead of stored.
func (h *Handlers) GeneratePDF(w http.ResponseWriter, r *http.Request) {
	var req models.GeneratePDFRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	docType, err := parseType(req.Type)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if req.Download {
		h.download(w, r, docType, req.ID)
		return
	}

	out, err := h.svc.Orchestrator.Generate(r.Context(), docType, req.ID, services.GenerateOptions{ForceRegenerate: req.ForceRegenerate})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse(req.ID, docType, out))
}

func (h *Handlers) download(w http.ResponseWriter, r *http.Request, docType models.DocumentType, id string) {
	agg, filename, err := h.svc.Generator.Prepare(r.Context(), docType, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", blob.ContentTypePDF)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := h.svc.Generator.RenderTo(r.Context(), w, agg); err != nil {
		// Headers may already be on the wire.
		h.log.Error("Failed to stream PDF.", "documentType", docType, "documentId", id, "error", err)
	}
}

func generateResponse(id string, docType models.DocumentType, out *services.Outcome) models.GenerateResponse {
	return models.GenerateResponse{
		Success:      true,
		DocumentID:   id,
		DocumentType: docType,
		URL:          out.URL,
		Skipped:      out.Skipped,
	}
}

// --- pdf-backend ---

// PDFBackend dispatches on the request's action.
func (h *Handlers) PDFBackend(w http.ResponseWriter, r *http.Request) {
	var req models.BackendRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	ctx := r.Context()
	opts := services.GenerateOptions{ForceRegenerate: req.ForceRegenerate, OverwriteExisting: req.OverwriteExisting}
	h.log.Info("Backend action received.", "action", req.Action)

	switch req.Action {
	case "generate":
		docType, err := parseType(req.DocumentType)
		if err != nil {
			h.writeError(w, err)
			return
		}
		out, err := h.svc.Orchestrator.Generate(ctx, docType, req.DocumentID, opts)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, generateResponse(req.DocumentID, docType, out))

	case "batch":
		items, err := services.ItemsFromRequest(req)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h.batch(ctx, items, opts))

	case "scan":
		scanOpts, err := services.ScanOptionsFromRequest(req)
		if err != nil {
			h.writeError(w, err)
			return
		}
		res, err := h.svc.Orchestrator.Scan(ctx, scanOpts)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.ScanResponse{Success: true, Results: res})

	case "trigger":
		resp, err := h.svc.Orchestrator.Trigger(ctx, models.WebhookEvent{
			Type: req.Type, Table: req.Table, Schema: req.Schema, Record: req.Record, OldRecord: req.OldRecord,
		})
		h.writeTrigger(w, resp, err)

	case "retry":
		res, err := h.svc.Orchestrator.Retry(ctx, services.RetryOptions{BatchSize: req.BatchSize, MaxRetries: req.MaxRetries})
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, models.RetryResponse{Success: true, Results: res})

	default:
		h.writeError(w, apperr.Validation("unknown action %q", req.Action))
	}
}

func (h *Handlers) batch(ctx context.Context, items []models.BatchItem, opts services.GenerateOptions) models.BatchResponse {
	job := h.svc.Orchestrator.Batch(ctx, items, opts, h.svc.Orchestrator.LogProgress)
	return models.BatchResponse{
		Success: true,
		Results: job.Results,
		Summary: services.Summarize(job.Results),
		Job:     job.View(),
	}
}

func (h *Handlers) writeTrigger(w http.ResponseWriter, resp models.TriggerResponse, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if resp.Result == nil {
		h.writeError(w, err)
		return
	}
	h.log.Error("Triggered generation failed.", "documentType", resp.Result.Type, "documentId", resp.Result.ID, "error", err)
	writeJSON(w, apperr.HTTPStatus(err), map[string]any{
		"success": false,
		"message": resp.Message,
		"result":  resp.Result,
		"error":   apperr.ToBody(err),
	})
}

// --- batch-generate-and-store-pdfs ---

// BatchGenerateAndStorePDFs always answers 200; per-item outcomes are in
// the results.
func (h *Handlers) BatchGenerateAndStorePDFs(w http.ResponseWriter, r *http.Request) {
	var req models.BatchRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.batch(r.Context(), req.Items, services.GenerateOptions{ForceRegenerate: req.ForceRegenerate}))
}

// --- auto-generate-pdf ---

// AutoGeneratePDF accepts one database change event or {"events": [...]}.
func (h *Handlers) AutoGeneratePDF(w http.ResponseWriter, r *http.Request) {
	var req models.AutoGenerateRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if len(req.Events) == 0 {
		resp, err := h.svc.Orchestrator.Trigger(r.Context(), req.WebhookEvent)
		h.writeTrigger(w, resp, err)
		return
	}
	resps, _ := h.dispatch(r.Context(), req.Events)
	out := models.AutoGenerateResponse{Success: true, Results: resps}
	for _, resp := range resps {
		if !resp.Success {
			out.Success = false
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// dispatch runs events in order and returns the first error that is not a
// bad request.
func (h *Handlers) dispatch(ctx context.Context, events []models.WebhookEvent) ([]models.TriggerResponse, error) {
	var firstErr error
	out := make([]models.TriggerResponse, 0, len(events))
	for _, ev := range events {
		resp, err := h.svc.Orchestrator.Trigger(ctx, ev)
		if err != nil {
			h.log.Warn("Change event not processed.", "table", ev.Table, "event", ev.Type, "error", err)
			if resp.Message == "" {
				resp = models.TriggerResponse{Success: false, Message: err.Error()}
			}
			if firstErr == nil && apperr.KindOf(err) != apperr.KindValidation {
				firstErr = err
			}
		}
		out = append(out, resp)
	}
	return out, firstErr
}

// AutoGeneratePDFEvent is the CloudEvent form of AutoGeneratePDF. Returning
// an error lets the platform redeliver; malformed events are dropped.
func (h *Handlers) AutoGeneratePDFEvent(ctx context.Context, e cloudevents.Event) error {
	var req models.AutoGenerateRequest
	if err := json.Unmarshal(e.Data(), &req); err != nil {
		h.log.Error("Failed to unmarshal event data; dropping event.", "eventId", e.ID(), "error", err)
		return nil
	}
	events := req.Events
	if len(events) == 0 {
		events = []models.WebhookEvent{req.WebhookEvent}
	}
	resps, err := h.dispatch(ctx, events)
	h.log.Info("Processed change event.", "eventId", e.ID(), "events", len(resps))
	if err != nil {
		return fmt.Errorf("auto-generate event %s: %w", e.ID(), err)
	}
	return nil
}
