package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Job store drivers selectable via JOB_STORE.
const (
	JobStorePostgres = "postgres"
	JobStoreMemory   = "memory"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	JWTSecret   string
	JobStore    string
	DatabaseURL string
	DefaultPlan string

	VeoAPIKeys []string
	VeoBaseURL string
	VeoModel   string

	PollInterval    time.Duration
	PollMaxAttempts int

	StorageEndpoint      string
	StorageBucket        string
	StorageAccessKey     string
	StorageSecretKey     string
	StorageUseSSL        bool
	StoragePublicBaseURL string
	StorageMediaBaseURL  string
	TempDir              string

	SweepInterval        time.Duration
	RetentionAge         time.Duration
	OrchestratorPoolSize int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JobStore:    getEnv("JOB_STORE", JobStorePostgres),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DefaultPlan: getEnv("DEFAULT_PLAN", "free"),

		VeoAPIKeys: splitList(os.Getenv("VEO_API_KEYS")),
		VeoBaseURL: getEnv("VEO_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		VeoModel:   getEnv("VEO_MODEL", "veo-3.1-generate-preview"),

		PollInterval:    time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 10)),
		PollMaxAttempts: getEnvInt("POLL_MAX_ATTEMPTS", 60),

		StorageEndpoint:      os.Getenv("STORAGE_ENDPOINT"),
		StorageBucket:        getEnv("STORAGE_BUCKET", "generations"),
		StorageAccessKey:     os.Getenv("STORAGE_ACCESS_KEY"),
		StorageSecretKey:     os.Getenv("STORAGE_SECRET_KEY"),
		StorageUseSSL:        getEnvBool("STORAGE_USE_SSL", false),
		StoragePublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", "http://localhost:9000/generations"),
		StorageMediaBaseURL:  os.Getenv("STORAGE_MEDIA_BASE_URL"),
		TempDir:              getEnv("TEMP_DIR", os.TempDir()),

		SweepInterval:        time.Second * time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 3600)),
		RetentionAge:         time.Hour * time.Duration(getEnvInt("RETENTION_HOURS", 24)),
		OrchestratorPoolSize: getEnvInt("ORCHESTRATOR_POOL_SIZE", 16),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.JobStore {
	case JobStorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when JOB_STORE=%s", JobStorePostgres)
		}
	case JobStoreMemory:
	default:
		return nil, fmt.Errorf("unsupported JOB_STORE %q", cfg.JobStore)
	}

	if len(cfg.VeoAPIKeys) == 0 {
		return nil, fmt.Errorf("VEO_API_KEYS is required")
	}

	if cfg.PollMaxAttempts <= 0 {
		return nil, fmt.Errorf("POLL_MAX_ATTEMPTS must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
