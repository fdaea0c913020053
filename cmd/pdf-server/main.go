// Command pdf-server serves every PDF function from one process, for local
// development and single-container deployments.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lllllllleong/documentpdfflow/internal/handlers"
	"github.com/Lllllllleong/documentpdfflow/internal/services"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := services.NewFromEnv(ctx)
	if err != nil {
		slog.Error("Critical error during initialization", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + svc.Config.Port,
		Handler:           handlers.NewRouter(handlers.New(svc)),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}

	go func() {
		slog.Info("PDF server listening.", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server stopped unexpectedly.", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed.", "error", err)
	}
}
