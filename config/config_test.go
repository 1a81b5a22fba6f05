package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/drummonds/docpreview/engine/preview"
)

func TestSetupServerDefaults(t *testing.T) {
	t.Setenv("LOG_OUTPUT", "stdout")
	for _, key := range []string{"DATABASE_TYPE", "PREVIEW_ENGINE", "PREVIEW_SCALE", "PREVIEW_RETRY_DELAY", "SESSION_TTL"} {
		t.Setenv(key, "")
	}

	cfg, logger := SetupServer()
	if logger == nil || Logger != logger {
		t.Fatal("Expected the package logger to be set")
	}
	if cfg.DatabaseType != "sqlite" {
		t.Errorf("Expected sqlite by default, got %s", cfg.DatabaseType)
	}
	if cfg.PreviewEngine != "pdfium" {
		t.Errorf("Expected pdfium by default, got %s", cfg.PreviewEngine)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("Expected 30m session TTL, got %v", cfg.SessionTTL)
	}

	pc := cfg.PreviewConfig()
	if pc.Scale != preview.DefaultScale || pc.JPEGQuality != preview.DefaultJPEGQuality {
		t.Errorf("Unexpected preview config %+v", pc)
	}
	if pc.MaxRetries != 2 || pc.RetryDelay != time.Second {
		t.Errorf("Expected 2 retries one second apart, got %d / %v", pc.MaxRetries, pc.RetryDelay)
	}
	if cfg.MaxUploadBytes() != 32<<20 {
		t.Errorf("Expected 32MB upload limit, got %d", cfg.MaxUploadBytes())
	}
}

func TestSetupServerOverrides(t *testing.T) {
	t.Setenv("LOG_OUTPUT", "stdout")
	t.Setenv("DATABASE_TYPE", "Postgres")
	t.Setenv("PREVIEW_ENGINE", "fitz")
	t.Setenv("PREVIEW_PIXEL_RATIO", "2")
	t.Setenv("PREVIEW_RETRY_DELAY", "250ms")
	t.Setenv("PREVIEW_TIMEOUT", "5")
	t.Setenv("PREVIEW_CONCURRENCY", "0")

	cfg, _ := SetupServer()
	if cfg.DatabaseType != "postgres" {
		t.Errorf("Expected database type to be lower cased, got %s", cfg.DatabaseType)
	}
	if cfg.PreviewEngine != "fitz" {
		t.Errorf("Expected fitz, got %s", cfg.PreviewEngine)
	}
	if cfg.PreviewPixelRatio != 2 {
		t.Errorf("Expected pixel ratio 2, got %v", cfg.PreviewPixelRatio)
	}
	if cfg.PreviewRetryDelay != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", cfg.PreviewRetryDelay)
	}
	if cfg.PreviewTimeout != 5*time.Second {
		t.Errorf("Expected bare integers to be seconds, got %v", cfg.PreviewTimeout)
	}
	if cfg.PreviewConcurrency != 1 {
		t.Errorf("Expected concurrency to be at least 1, got %d", cfg.PreviewConcurrency)
	}
}

func TestEnvHelpersFallBack(t *testing.T) {
	t.Setenv("TEST_FLOAT", "-3")
	t.Setenv("TEST_DURATION", "soon")
	t.Setenv("TEST_INT", "many")
	t.Setenv("TEST_BOOL", "maybe")

	if got := getEnvFloat("TEST_FLOAT", 1.5); got != 1.5 {
		t.Errorf("Expected fallback for non-positive float, got %v", got)
	}
	if got := getEnvDuration("TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("Expected fallback for bad duration, got %v", got)
	}
	if got := getEnvInt("TEST_INT", 7); got != 7 {
		t.Errorf("Expected fallback for bad int, got %v", got)
	}
	if got := getEnvBool("TEST_BOOL", true); !got {
		t.Errorf("Expected fallback for bad bool")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for value, want := range tests {
		if got := parseLevel(value); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", value, got, want)
		}
	}
}
