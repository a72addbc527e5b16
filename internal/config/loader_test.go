package config

import (
	"os"
	"testing"
	"time"
)

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		unset := []string{
			"ROOMBOOK_HTTP_PORT",
			"ROOMBOOK_SQLITE_DSN",
			"ROOMBOOK_SHUTDOWN_TIMEOUT",
		}
		for _, key := range unset {
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("failed to unset %s: %v", key, err)
			}
		}

		const secret = "super-secret"
		t.Setenv("ROOMBOOK_TOKEN_SECRET", secret)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.SQLiteDSN != "file:roombook.db" {
			t.Fatalf("unexpected default DSN: %q", cfg.SQLiteDSN)
		}
		if cfg.TokenSecret != secret {
			t.Fatalf("expected token secret %q, got %q", secret, cfg.TokenSecret)
		}
		if cfg.ShutdownTimeout != 10*time.Second {
			t.Fatalf("expected default shutdown timeout, got %v", cfg.ShutdownTimeout)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		for _, key := range []string{
			"ROOMBOOK_TOKEN_SECRET",
			"ROOMBOOK_HTTP_PORT",
			"ROOMBOOK_SQLITE_DSN",
		} {
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("failed to unset %s: %v", key, err)
			}
		}

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "required environment variables are not set: ROOMBOOK_TOKEN_SECRET"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("reports invalid values", func(t *testing.T) {
		t.Setenv("ROOMBOOK_TOKEN_SECRET", "secret")
		t.Setenv("ROOMBOOK_HTTP_PORT", "not-a-port")
		t.Setenv("ROOMBOOK_SHUTDOWN_TIMEOUT", "-5s")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		expected := "environment variables have invalid values: ROOMBOOK_HTTP_PORT, ROOMBOOK_SHUTDOWN_TIMEOUT"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("accepts explicit overrides", func(t *testing.T) {
		t.Setenv("ROOMBOOK_TOKEN_SECRET", "secret")
		t.Setenv("ROOMBOOK_HTTP_PORT", "9090")
		t.Setenv("ROOMBOOK_SQLITE_DSN", "file:custom.db")
		t.Setenv("ROOMBOOK_SHUTDOWN_TIMEOUT", "30s")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTPPort != 9090 {
			t.Fatalf("expected port 9090, got %d", cfg.HTTPPort)
		}
		if cfg.SQLiteDSN != "file:custom.db" {
			t.Fatalf("expected custom DSN, got %q", cfg.SQLiteDSN)
		}
		if cfg.ShutdownTimeout != 30*time.Second {
			t.Fatalf("expected 30s timeout, got %v", cfg.ShutdownTimeout)
		}
	})
}
