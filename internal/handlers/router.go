package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Routes maps each function name to its handler, CORS included.
func (h *Handlers) Routes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"generate-pdf":                  CORS(h.GeneratePDF),
		"pdf-backend":                   CORS(h.PDFBackend),
		"batch-generate-and-store-pdfs": CORS(h.BatchGenerateAndStorePDFs),
		"auto-generate-pdf":             CORS(h.AutoGeneratePDF),
	}
}

// NewRouter mounts every function under /{name} for local and all-in-one
// deployments.
func NewRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	for name, fn := range h.Routes() {
		r.HandleFunc("/"+name, fn).Methods(http.MethodPost, http.MethodOptions)
	}
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}).Methods(http.MethodGet)
	return r
}
