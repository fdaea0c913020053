package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/documentpdfflow/internal/handlers"
	"github.com/Lllllllleong/documentpdfflow/internal/services"
)

var (
	h       *handlers.Handlers
	once    sync.Once
	initErr error
)

func init() {
	// --- Set up structured logging ---
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// "PDFBackend" is the entry point name configured in GCP.
	functions.HTTP("PDFBackend", pdfBackend)
}

// main is required by the Go Functions Framework.
func main() {}

// pdfBackend serves the generate, batch, scan, trigger and retry actions.
func pdfBackend(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		var svc *services.Service
		svc, initErr = services.NewFromEnv(context.Background())
		if initErr == nil {
			h = handlers.New(svc)
		}
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		handlers.Unavailable(initErr)(w, r)
		return
	}
	handlers.CORS(h.PDFBackend)(w, r)
}
