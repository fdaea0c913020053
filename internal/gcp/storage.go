package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

const defaultPublicHost = "https://storage.googleapis.com"

// StorageConfig configures GCSStore.
type StorageConfig struct {
	Bucket string
	// PublicBaseURL replaces https://storage.googleapis.com/<bucket> in
	// public links when set (CDN or custom domain).
	PublicBaseURL string
	// AttemptTimeout bounds each upload attempt.
	AttemptTimeout time.Duration
	MaxAttempts    int
	// Backoff is the delay before the second attempt; it doubles after that.
	Backoff time.Duration
}

// GCSStore writes generated PDFs to a bucket, overwriting existing objects.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	cfg    StorageConfig
	log    *slog.Logger
}

// NewStorageClient creates a Cloud Storage client.
func NewStorageClient(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return client, nil
}

func NewGCSStore(client *storage.Client, cfg StorageConfig, log *slog.Logger) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket must be provided")
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 15 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &GCSStore{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		cfg:    cfg,
		log:    log.With("bucket", cfg.Bucket),
	}, nil
}

// Upload replaces the object at key. Transient failures (timeouts, 429, 5xx)
// are retried with exponential backoff; anything else fails immediately.
func (s *GCSStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	delay := s.cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		lastErr = s.uploadOnce(ctx, key, data, contentType)
		if lastErr == nil {
			s.log.Info("Uploaded object.", "object", key, "bytes", len(data), "attempt", attempt)
			return nil
		}
		if !retryable(lastErr) || attempt == s.cfg.MaxAttempts {
			break
		}
		s.log.Warn("Upload attempt failed, retrying.", "object", key, "attempt", attempt, "error", lastErr)
		select {
		case <-ctx.Done():
			return fmt.Errorf("upload %s: %w", key, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	s.log.Error("Failed to upload object.", "object", key, "error", lastErr)
	return fmt.Errorf("upload %s: %w", key, lastErr)
}

func (s *GCSStore) uploadOnce(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
	defer cancel()

	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache, max-age=0"
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	return true
}

func (s *GCSStore) PublicURL(key string) string {
	return PublicURL(s.cfg.PublicBaseURL, s.cfg.Bucket, key)
}

// PublicURL builds the link stored on a document row. Path segments of key are
// escaped so a UID containing spaces still yields a valid URL.
func PublicURL(baseURL, bucket, key string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultPublicHost + "/" + bucket
	}
	segments := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return base + "/" + strings.Join(segments, "/")
}
