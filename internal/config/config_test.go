package config

import (
	"flag"
	"os"
	"strings"
	"testing"
	"time"
)

// resetFlagSet создаёт новый FlagSet перед каждым вызовом NewConfig,
// чтобы избежать повторной регистрации одних и тех же флагов между тестами.
func resetFlagSet(t *testing.T) {
	t.Helper()
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	// подавляем вывод парсера флагов в тестах
	flag.CommandLine.SetOutput(os.Stderr)
}

func TestNewConfig_DefaultsWhenEnvEmpty(t *testing.T) {
	t.Setenv("RUN_ADDRESS", "")
	t.Setenv("DATABASE_URI", "")
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MASTER_SECRET", "")
	t.Setenv("BASE_URL", "")
	t.Setenv("ENABLE_HTTPS", "")
	t.Setenv("BLOB_BACKEND", "")
	t.Setenv("CLIENT_DB_PATH", "")

	resetFlagSet(t)
	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	if cfg.RunAddress != "localhost:8081" {
		t.Fatalf("RunAddress default expected 'localhost:8081', got %q", cfg.RunAddress)
	}
	if cfg.AuthSecret != "dev-secret-key" {
		t.Fatalf("AuthSecret default expected 'dev-secret-key', got %q", cfg.AuthSecret)
	}
	if cfg.ObjectTokenTTL != time.Hour {
		t.Fatalf("ObjectTokenTTL default expected 1h, got %v", cfg.ObjectTokenTTL)
	}
	if cfg.KeyTokenTTL != 60*time.Second {
		t.Fatalf("KeyTokenTTL default expected 60s, got %v", cfg.KeyTokenTTL)
	}
	if cfg.BlobBackend != "fs" {
		t.Fatalf("BlobBackend default expected 'fs', got %q", cfg.BlobBackend)
	}
	if cfg.BanThreshold != 20 || cfg.BanWindow != 15*time.Minute || cfg.BanDuration != time.Hour {
		t.Fatalf("ban defaults mismatch: %d / %v / %v", cfg.BanThreshold, cfg.BanWindow, cfg.BanDuration)
	}
	if cfg.ObjectMaxSizeMB != 32 {
		t.Fatalf("ObjectMaxSizeMB default expected 32, got %d", cfg.ObjectMaxSizeMB)
	}
	if cfg.ServerURL != "http://localhost:8081" {
		t.Fatalf("ServerURL default expected 'http://localhost:8081', got %q", cfg.ServerURL)
	}
	if cfg.BlobDir == "" || cfg.ClientDBPath == "" {
		t.Fatalf("path defaults must be non-empty: BlobDir=%q, ClientDBPath=%q", cfg.BlobDir, cfg.ClientDBPath)
	}
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BASE_URL", "example.com:443")
	t.Setenv("ENABLE_HTTPS", "true")
	t.Setenv("AUTH_SECRET", "top")
	t.Setenv("KEY_TOKEN_TTL", "90s")
	t.Setenv("BLOB_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "vault-bucket")

	resetFlagSet(t)
	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	if cfg.ServerURL != "https://example.com:443" {
		t.Fatalf("ServerURL expected 'https://example.com:443', got %q", cfg.ServerURL)
	}
	if cfg.AuthSecret != "top" {
		t.Fatalf("AuthSecret expected from env 'top', got %q", cfg.AuthSecret)
	}
	if cfg.KeyTokenTTL != 90*time.Second {
		t.Fatalf("KeyTokenTTL expected 90s, got %v", cfg.KeyTokenTTL)
	}
	if cfg.BlobBackend != "s3" || cfg.S3Bucket != "vault-bucket" {
		t.Fatalf("s3 settings mismatch: %q / %q", cfg.BlobBackend, cfg.S3Bucket)
	}
}

func TestNewConfig_InvalidBaseURLFallback(t *testing.T) {
	// Невалидный BASE_URL (со схемой) должен откатиться на RUN_ADDRESS
	t.Setenv("RUN_ADDRESS", "")
	t.Setenv("BASE_URL", "http://bad:8080")
	t.Setenv("ENABLE_HTTPS", "false")

	resetFlagSet(t)
	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig failed: %v", err)
	}

	if cfg.BaseURL != "localhost:8081" {
		t.Fatalf("invalid BASE_URL must fallback to 'localhost:8081', got %q", cfg.BaseURL)
	}
	if !strings.HasPrefix(cfg.ServerURL, "http://localhost:8081") {
		t.Fatalf("ServerURL must reflect fallback base, got %q", cfg.ServerURL)
	}
}

func TestValidateMasterSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   error
	}{
		{"empty", "", ErrMasterSecretMissing},
		{"whitespace", "   ", ErrMasterSecretMissing},
		{"too short", "abcdef0123456789", ErrMasterSecretShort},
		{"weak password", "password-password-password-password", ErrMasterSecretWeak},
		{"weak default", "default-default-default-default-kkkk", ErrMasterSecretWeak},
		{"weak digits", "q1w2e3r4t5y6u7i8o9p0-123456789012345678", ErrMasterSecretWeak},
		{"weak case insensitive", "MASTERKEY-aaaaaaaaaaaaaaaaaaaaaaaaaaaa", ErrMasterSecretWeak},
		{"good", "vXq9eT2rL8mZ4nW6bK0cY3hJ7dF1gS5a", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateMasterSecret(tt.secret)
			if got != tt.want {
				t.Fatalf("ValidateMasterSecret(%q) = %v, want %v", tt.secret, got, tt.want)
			}
		})
	}
}
