package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	defaultHTTPPort          = "8080"
	defaultTemporalAddress   = "localhost:7233"
	defaultTemporalNS        = "default"
	defaultTaskQueue         = "casegate-task-queue"
	defaultMinioEndpoint     = "localhost:9000"
	defaultSignedBucket      = "signed-documents"
	defaultEventBucket       = "signature-events"
	defaultSigningBaseURL    = "http://localhost:8080/v1"
	defaultSigningURLTTL     = 24 * time.Hour
	defaultEnvelopeExpiry    = 30 * 24 * time.Hour
	defaultReconcileSchedule = "*/15 * * * *"
)

const (
	EnvelopeStoreMemory   = "memory"
	EnvelopeStorePostgres = "postgres"
)

type Config struct {
	HTTPPort          string
	WorkerMetricsPort string
	PostgresDSN       string
	TemporalAddress   string
	TemporalNamespace string
	TemporalTaskQueue string
	MinioEndpoint     string
	MinioAccessKey    string
	MinioSecretKey    string
	MinioUseSSL       bool
	SignedBucket      string
	EventBucket       string
	EnvelopeStore     string
	SigningBaseURL    string
	SigningURLSecret  string
	SigningURLTTL     time.Duration
	EnvelopeExpiry    time.Duration
	WebhookSecret     string
	LogLevel          string
	LogFormat         string
	ReconcileSchedule string
	WorkflowIDPrefix  string
	MetricsNamespace  string
}

func Load() (Config, error) {
	cfg := Config{
		HTTPPort:          getenv("HTTP_PORT", defaultHTTPPort),
		WorkerMetricsPort: getenv("WORKER_METRICS_PORT", "9091"),
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		TemporalAddress:   getenv("TEMPORAL_ADDRESS", defaultTemporalAddress),
		TemporalNamespace: getenv("TEMPORAL_NAMESPACE", defaultTemporalNS),
		TemporalTaskQueue: getenv("TEMPORAL_TASK_QUEUE", defaultTaskQueue),
		MinioEndpoint:     getenv("MINIO_ENDPOINT", defaultMinioEndpoint),
		MinioAccessKey:    os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:    os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:       getenvBool("MINIO_USE_SSL", false),
		SignedBucket:      getenv("MINIO_SIGNED_BUCKET", defaultSignedBucket),
		EventBucket:       getenv("EVENT_ARCHIVE_BUCKET", defaultEventBucket),
		EnvelopeStore:     getenv("ENVELOPE_STORE", EnvelopeStorePostgres),
		SigningBaseURL:    getenv("SIGNING_BASE_URL", defaultSigningBaseURL),
		SigningURLSecret:  os.Getenv("SIGNING_URL_SECRET"),
		SigningURLTTL:     getenvDuration("SIGNING_URL_TTL", defaultSigningURLTTL),
		EnvelopeExpiry:    getenvDuration("ENVELOPE_EXPIRY", defaultEnvelopeExpiry),
		WebhookSecret:     os.Getenv("WEBHOOK_SECRET"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogFormat:         getenv("LOG_FORMAT", "json"),
		ReconcileSchedule: getenv("RECONCILE_SCHEDULE", defaultReconcileSchedule),
		WorkflowIDPrefix:  getenv("WORKFLOW_ID_PREFIX", "casegate"),
		MetricsNamespace:  getenv("METRICS_NAMESPACE", "casegate"),
	}

	if cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.EnvelopeStore != EnvelopeStoreMemory && cfg.EnvelopeStore != EnvelopeStorePostgres {
		return Config{}, fmt.Errorf("ENVELOPE_STORE must be %q or %q, got %q", EnvelopeStoreMemory, EnvelopeStorePostgres, cfg.EnvelopeStore)
	}
	if cfg.SigningURLSecret == "" {
		cfg.SigningURLSecret = cfg.WebhookSecret
	}

	return cfg, nil
}

func getenv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getenvDuration accepts Go durations ("36h") or a bare number of seconds.
func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n := getenvInt(key, 0); n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
