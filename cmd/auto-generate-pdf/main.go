package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

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

	// Database webhooks call the HTTP entry point; change streams routed
	// through Eventarc arrive as CloudEvents.
	functions.HTTP("AutoGeneratePDF", autoGeneratePDF)
	functions.CloudEvent("AutoGeneratePDFEvent", autoGeneratePDFEvent)
}

// main is required by the Go Functions Framework.
func main() {}

func setup() error {
	once.Do(func() {
		var svc *services.Service
		svc, initErr = services.NewFromEnv(context.Background())
		if initErr == nil {
			h = handlers.New(svc)
		}
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
	}
	return initErr
}

func autoGeneratePDF(w http.ResponseWriter, r *http.Request) {
	if err := setup(); err != nil {
		handlers.Unavailable(err)(w, r)
		return
	}
	handlers.CORS(h.AutoGeneratePDF)(w, r)
}

func autoGeneratePDFEvent(ctx context.Context, e cloudevents.Event) error {
	if err := setup(); err != nil {
		return err
	}
	return h.AutoGeneratePDFEvent(ctx, e)
}
