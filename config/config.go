// Package config loads the pipeline's runtime configuration from
// environment variables, following the teacher's DefaultConfig/Validate
// shape (originally config/config.go's YAML loader) but sourced from env
// rather than a file, since spec.md §6 specifies a flat env-var surface
// grounded on core/config.py's pydantic-settings env binding.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is every externally-configurable knob named in spec.md §6.
type Config struct {
	Database  DatabaseConfig
	Storage   StorageConfig
	LLM       LLMConfig
	TaskQueue TaskQueueConfig
	Auth      AuthConfig
	HTTPAddr  string

	// GenerateConcurrency is GENERATE_WORKER_CONCURRENCY: the bounded
	// goroutine pool size for guideforge.generate_cells handlers.
	GenerateConcurrency int
	// LogLevel is LOG_LEVEL, parsed into a slog.Level by cmd/worker and
	// cmd/apiserver.
	LogLevel string
	// PDFMaxBytes is PDF_MAX_BYTES: the upload size boundary apiserver's
	// handleCreateGuide validates against.
	PDFMaxBytes int64
}

type DatabaseConfig struct {
	URL string
}

type StorageConfig struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
	Region         string
}

type LLMConfig struct {
	Provider        string
	APIKey          string
	Model           string
	TimeoutSeconds  int
	MaxRetries      int
	MaxOutputTokens int
	Temperature     float64
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type TaskQueueConfig struct {
	NATSURL string
}

type AuthConfig struct {
	JWTSecretKey  string
	JWTAlgorithm  string
	AdminUsername string
	AdminPassword string
}

// DefaultConfig returns the defaults spec.md §6 documents for every
// optional setting; required settings (DATABASE_URL, SUPABASE_*,
// GEMINI_API_KEY) are left empty and must come from the environment.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Region: "us-east-1",
		},
		LLM: LLMConfig{
			Provider:        "gemini",
			Model:           "gemini-1.5-flash",
			TimeoutSeconds:  30,
			MaxRetries:      2,
			MaxOutputTokens: 800,
			Temperature:     0.4,
		},
		TaskQueue: TaskQueueConfig{
			NATSURL: "nats://127.0.0.1:4222",
		},
		Auth: AuthConfig{
			JWTAlgorithm: "HS256",
		},
		HTTPAddr:            ":8080",
		GenerateConcurrency: 4,
		LogLevel:            "info",
		PDFMaxBytes:         25 * 1024 * 1024,
	}
}

// Load builds a Config from defaults overlaid with environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)

	cfg.Storage.URL = getEnv("SUPABASE_URL", cfg.Storage.URL)
	cfg.Storage.ServiceRoleKey = getEnv("SUPABASE_SERVICE_ROLE_KEY", cfg.Storage.ServiceRoleKey)
	cfg.Storage.Bucket = getEnv("SUPABASE_STORAGE_BUCKET", cfg.Storage.Bucket)

	cfg.LLM.Provider = getEnv("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.APIKey = getEnv("GEMINI_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = getEnv("GEMINI_MODEL", cfg.LLM.Model)

	var err error
	if cfg.LLM.TimeoutSeconds, err = getEnvInt("LLM_TIMEOUT_SECONDS", cfg.LLM.TimeoutSeconds); err != nil {
		return nil, err
	}
	if cfg.LLM.MaxRetries, err = getEnvInt("LLM_MAX_RETRIES", cfg.LLM.MaxRetries); err != nil {
		return nil, err
	}
	if cfg.LLM.MaxOutputTokens, err = getEnvInt("LLM_MAX_OUTPUT_TOKENS", cfg.LLM.MaxOutputTokens); err != nil {
		return nil, err
	}
	if cfg.LLM.Temperature, err = getEnvFloat("LLM_TEMPERATURE", cfg.LLM.Temperature); err != nil {
		return nil, err
	}

	cfg.TaskQueue.NATSURL = getEnv("NATS_URL", cfg.TaskQueue.NATSURL)

	cfg.Auth.JWTSecretKey = getEnv("JWT_SECRET_KEY", cfg.Auth.JWTSecretKey)
	cfg.Auth.JWTAlgorithm = getEnv("JWT_ALGORITHM", cfg.Auth.JWTAlgorithm)
	cfg.Auth.AdminUsername = getEnv("ADMIN_USERNAME", cfg.Auth.AdminUsername)
	cfg.Auth.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.Auth.AdminPassword)

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if cfg.GenerateConcurrency, err = getEnvInt("GENERATE_WORKER_CONCURRENCY", cfg.GenerateConcurrency); err != nil {
		return nil, err
	}
	if cfg.PDFMaxBytes, err = getEnvInt64("PDF_MAX_BYTES", cfg.PDFMaxBytes); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every setting required to run the service (as
// opposed to merely having a sensible default) is present.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Storage.URL == "" || c.Storage.ServiceRoleKey == "" || c.Storage.Bucket == "" {
		return fmt.Errorf("SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY, and SUPABASE_STORAGE_BUCKET are required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 1")
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("LLM_MAX_RETRIES must be non-negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}
