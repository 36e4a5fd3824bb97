package config

import (
	"os"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LLM.Provider != "gemini" {
		t.Errorf("expected default provider gemini, got %s", cfg.LLM.Provider)
	}
	if cfg.LLM.TimeoutSeconds != 30 {
		t.Errorf("expected default timeout 30, got %d", cfg.LLM.TimeoutSeconds)
	}
	if cfg.LLM.Temperature != 0.4 {
		t.Errorf("expected default temperature 0.4, got %f", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxRetries != 2 {
		t.Errorf("expected default max retries 2, got %d", cfg.LLM.MaxRetries)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.GenerateConcurrency != 4 {
		t.Errorf("expected default generate concurrency 4, got %d", cfg.GenerateConcurrency)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.PDFMaxBytes != 25*1024*1024 {
		t.Errorf("expected default PDF max bytes 25MB, got %d", cfg.PDFMaxBytes)
	}
}

func requiredConfig() *Config {
	cfg := DefaultConfig()
	cfg.Database.URL = "postgres://localhost/guideforge"
	cfg.Storage.URL = "https://project.supabase.co"
	cfg.Storage.ServiceRoleKey = "service-role-key"
	cfg.Storage.Bucket = "guides"
	cfg.LLM.APIKey = "test-key"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid config", modify: func(c *Config) {}, wantErr: false},
		{name: "missing database url", modify: func(c *Config) { c.Database.URL = "" }, wantErr: true},
		{name: "missing storage bucket", modify: func(c *Config) { c.Storage.Bucket = "" }, wantErr: true},
		{name: "missing llm api key", modify: func(c *Config) { c.LLM.APIKey = "" }, wantErr: true},
		{name: "temperature too low", modify: func(c *Config) { c.LLM.Temperature = -0.1 }, wantErr: true},
		{name: "temperature too high", modify: func(c *Config) { c.LLM.Temperature = 1.1 }, wantErr: true},
		{name: "negative retries", modify: func(c *Config) { c.LLM.MaxRetries = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := requiredConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL":              "postgres://localhost/guideforge",
		"SUPABASE_URL":              "https://project.supabase.co",
		"SUPABASE_SERVICE_ROLE_KEY": "service-role-key",
		"SUPABASE_STORAGE_BUCKET":   "guides",
		"GEMINI_API_KEY":            "test-key",
		"LLM_TIMEOUT_SECONDS":       "45",
		"LLM_TEMPERATURE":           "0.7",
		"PDF_MAX_BYTES":             "52428800",
		"GENERATE_WORKER_CONCURRENCY": "8",
		"LOG_LEVEL":                 "debug",
	}
	for k, v := range env {
		t.Setenv(k, v)
		_ = os.Getenv(k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.TimeoutSeconds != 45 {
		t.Errorf("expected timeout 45, got %d", cfg.LLM.TimeoutSeconds)
	}
	if cfg.LLM.Temperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %f", cfg.LLM.Temperature)
	}
	if cfg.Database.URL != env["DATABASE_URL"] {
		t.Errorf("expected database url override, got %s", cfg.Database.URL)
	}
	if cfg.PDFMaxBytes != 52428800 {
		t.Errorf("expected PDF max bytes override, got %d", cfg.PDFMaxBytes)
	}
	if cfg.GenerateConcurrency != 8 {
		t.Errorf("expected generate concurrency override, got %d", cfg.GenerateConcurrency)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level override, got %s", cfg.LogLevel)
	}
}

func TestLoadFailsWithoutRequiredSettings(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Error("expected Load() to fail when DATABASE_URL is unset")
	}
}
