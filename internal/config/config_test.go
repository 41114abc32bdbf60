package config

import (
	"log/slog"
	"strings"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LOG_LEVEL", "DATABASE_URL", "KAFKA_BROKERS", "AUTOSAVE_MAX_RETRIES", "RATE_LIMIT_RPS"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if cfg.AutosaveMaxRetries != 3 {
		t.Errorf("AutosaveMaxRetries = %d, want 3", cfg.AutosaveMaxRetries)
	}
	if len(cfg.Events.KafkaBrokers) != 0 {
		t.Errorf("KafkaBrokers = %v, want none", cfg.Events.KafkaBrokers)
	}
	if !strings.Contains(cfg.DSN(), "dbname=") {
		t.Errorf("DSN() = %q, want key/value form", cfg.DSN())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/engine")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("AUTOSAVE_MAX_RETRIES", "5")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Port != "9000" || cfg.LogLevel != slog.LevelDebug || cfg.AutosaveMaxRetries != 5 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.DSN() != "postgres://u:p@db:5432/engine" {
		t.Errorf("DSN() = %q", cfg.DSN())
	}
	if got := cfg.Events.KafkaBrokers; len(got) != 2 || got[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", got)
	}
	if cfg.RateLimit.RPS != 2.5 {
		t.Errorf("RateLimit.RPS = %v", cfg.RateLimit.RPS)
	}
}

func TestLoadConfigRejectsInvalidNumbers(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"AUTOSAVE_MAX_RETRIES", "three"},
		{"AUTOSAVE_MAX_RETRIES", "-1"},
		{"RATE_LIMIT_BURST", "1.5"},
		{"RATE_LIMIT_RPS", "fast"},
		{"LOG_LEVEL", "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("LoadConfig() accepted %s=%q", tt.key, tt.value)
			}
		})
	}
}
