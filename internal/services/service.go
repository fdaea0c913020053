package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Lllllllleong/documentpdfflow/internal/blob"
	"github.com/Lllllllleong/documentpdfflow/internal/config"
	"github.com/Lllllllleong/documentpdfflow/internal/failures"
	"github.com/Lllllllleong/documentpdfflow/internal/gcp"
	"github.com/Lllllllleong/documentpdfflow/internal/lock"
	"github.com/Lllllllleong/documentpdfflow/internal/store"
)

// Service is what every entry point is built on.
type Service struct {
	Config       *config.Config
	Generator    *Generator
	Orchestrator *Orchestrator
	Log          *slog.Logger
}

// Deps are the injected clients. Tracker, Locker and Continuer are optional.
type Deps struct {
	Repo      store.Repository
	Objects   blob.ObjectStore
	Tracker   failures.Tracker
	Locker    lock.Locker
	Continuer Continuer
	Log       *slog.Logger
}

func New(cfg *config.Config, deps Deps) *Service {
	if cfg == nil {
		cfg = &config.Config{}
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	gen := NewGenerator(deps.Repo, deps.Objects, deps.Locker, log)
	orch := NewOrchestrator(gen, deps.Repo, deps.Tracker, deps.Continuer, OrchestratorConfig{
		TablePrefix:    cfg.TablePrefix,
		MaxRetries:     cfg.MaxRetries,
		ScanBatchSize:  cfg.ScanBatchSize,
		RetryBatchSize: cfg.RetryBatchSize,
	}, log)
	return &Service{Config: cfg, Generator: gen, Orchestrator: orch, Log: log}
}

// NewFromEnv loads the configuration and connects every client. It is
// called once per cold start.
func NewFromEnv(ctx context.Context) (*Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	// --- 1. Backing store ---
	db, err := store.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	repo := store.NewGorm(db, cfg.TablePrefix, logger)

	// --- 2. Object storage ---
	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		return nil, err
	}
	objects, err := gcp.NewGCSStore(storageClient, gcp.StorageConfig{
		Bucket:         cfg.Bucket,
		PublicBaseURL:  cfg.PublicBaseURL,
		AttemptTimeout: cfg.UploadTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}

	// --- 3. Failure tracking ---
	var tracker failures.Tracker
	switch cfg.FailureStore {
	case "firestore":
		t, err := gcp.NewFirestoreTracker(ctx, gcp.FirestoreTrackerConfig{
			ProjectID:  cfg.ProjectID,
			Collection: cfg.FailuresTable,
			Policy:     failures.DefaultPolicy,
		})
		if err != nil {
			return nil, err
		}
		tracker = t
	default:
		t := failures.NewGorm(db, cfg.FailuresTable, failures.DefaultPolicy)
		if err := t.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare failures table: %w", err)
		}
		tracker = t
	}

	// --- 4. Per-document lock ---
	var locker lock.Locker = lock.Noop{}
	if cfg.RedisAddress != "" {
		locker = lock.NewRedis(lock.NewRedisClient(cfg.RedisAddress), cfg.LockTTL, logger)
	}

	// --- 5. Scan continuation ---
	var continuer Continuer
	wf, err := gcp.NewWorkflowTrigger(ctx, cfg.ProjectID, cfg.WorkflowLocation, cfg.ScanWorkflowID, logger)
	if err != nil {
		return nil, err
	}
	if wf != nil {
		continuer = wf
	}

	logger.Info("PDF service initialised.",
		"bucket", cfg.Bucket, "failureStore", cfg.FailureStore, "locking", cfg.RedisAddress != "", "scanContinuation", wf != nil)
	return New(cfg, Deps{
		Repo:      repo,
		Objects:   objects,
		Tracker:   tracker,
		Locker:    locker,
		Continuer: continuer,
		Log:       logger,
	}), nil
}
