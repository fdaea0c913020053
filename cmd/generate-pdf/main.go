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

	// "GeneratePDF" is the entry point name configured in GCP.
	functions.HTTP("GeneratePDF", generatePDF)
}

// main is required by the Go Functions Framework.
func main() {}

// generatePDF generates, stores and links one document's PDF, or streams it back when asked to download.
func generatePDF(w http.ResponseWriter, r *http.Request) {
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
	handlers.CORS(h.GeneratePDF)(w, r)
}
