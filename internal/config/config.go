package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds everything the PDF functions read from the environment at cold start.
type Config struct {
	// DatabaseURL is the privileged (service role) Postgres DSN; it carries
	// both the store's address and its credential.
	DatabaseURL string `validate:"required"`

	Bucket        string `validate:"required"`
	PublicBaseURL string `validate:"omitempty,url"`
	TablePrefix   string

	FailureStore  string `validate:"oneof=postgres firestore"`
	FailuresTable string `validate:"required"`
	ProjectID     string `validate:"required_if=FailureStore firestore"`

	MaxRetries     int           `validate:"min=1"`
	ScanBatchSize  int           `validate:"min=1"`
	RetryBatchSize int           `validate:"min=1"`
	UploadTimeout  time.Duration `validate:"min=1s"`

	RedisAddress string
	LockTTL      time.Duration

	ScanWorkflowID   string
	WorkflowLocation string

	LogLevel slog.Level
	Port     string
}

// GetEnv reads an environment variable or returns a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := GetEnv(key, "")
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := GetEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads the configuration. A .env file in the working directory is
// honoured for local runs; real environment variables take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:      GetEnv("DATABASE_URL", ""),
		Bucket:           GetEnv("PDF_BUCKET", "pdfs"),
		PublicBaseURL:    strings.TrimRight(GetEnv("PDF_PUBLIC_BASE_URL", ""), "/"),
		TablePrefix:      GetEnv("TABLE_PREFIX", ""),
		FailureStore:     strings.ToLower(GetEnv("FAILURE_STORE", "postgres")),
		FailuresTable:    GetEnv("FAILURES_TABLE", "pdf_generation_failures"),
		ProjectID:        GetEnv("PROJECT_ID", ""),
		MaxRetries:       getInt("MAX_RETRIES", 10),
		ScanBatchSize:    getInt("SCAN_BATCH_SIZE", 50),
		RetryBatchSize:   getInt("RETRY_BATCH_SIZE", 20),
		UploadTimeout:    getDuration("UPLOAD_TIMEOUT", 15*time.Second),
		RedisAddress:     GetEnv("REDIS_ADDRESS", ""),
		LockTTL:          getDuration("LOCK_TTL", 60*time.Second),
		ScanWorkflowID:   GetEnv("SCAN_WORKFLOW_ID", ""),
		WorkflowLocation: GetEnv("WORKFLOW_LOCATION", "us-central1"),
		LogLevel:         parseLevel(GetEnv("LOG_LEVEL", "info")),
		Port:             GetEnv("PORT", "8080"),
	}
	if cfg.ScanWorkflowID != "" && cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set when SCAN_WORKFLOW_ID is set")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", describe(err))
	}
	return cfg, nil
}

var envNames = map[string]string{
	"DatabaseURL":    "DATABASE_URL",
	"Bucket":         "PDF_BUCKET",
	"PublicBaseURL":  "PDF_PUBLIC_BASE_URL",
	"FailureStore":   "FAILURE_STORE",
	"FailuresTable":  "FAILURES_TABLE",
	"ProjectID":      "PROJECT_ID",
	"MaxRetries":     "MAX_RETRIES",
	"ScanBatchSize":  "SCAN_BATCH_SIZE",
	"RetryBatchSize": "RETRY_BATCH_SIZE",
	"UploadTimeout":  "UPLOAD_TIMEOUT",
}

// describe turns validator field errors into environment variable names so the
// startup log says what to set.
func describe(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := envNames[fe.Field()]
		if name == "" {
			name = fe.Field()
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, fe.Tag()))
	}
	return fmt.Errorf("%s", strings.Join(parts, ", "))
}
