package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("AUTHORITY_DETAILS_TIMEOUT", "")
	t.Setenv("AUTHORITY_INSECURE_SKIP_VERIFY", "")
	t.Setenv("BATCH_ITEM_DELAY", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("LOCK_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AuthorityDetailsTimeout != 15*time.Second || cfg.AuthorityDocumentTimeout != 30*time.Second {
		t.Fatalf("unexpected timeouts %v / %v", cfg.AuthorityDetailsTimeout, cfg.AuthorityDocumentTimeout)
	}
	if !cfg.AuthorityInsecureSkipVerify {
		t.Fatalf("expected certificate relaxation on by default")
	}
	if cfg.BatchItemDelay != time.Second {
		t.Fatalf("expected 1s pacing, got %v", cfg.BatchItemDelay)
	}
	if cfg.StorageBackend != StorageLocal {
		t.Fatalf("expected local storage, got %q", cfg.StorageBackend)
	}
	if cfg.LockPath != filepath.Join(os.TempDir(), "prn-reconciler.lock") {
		t.Fatalf("expected a host lock by default, got %q", cfg.LockPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("AUTHORITY_DETAILS_TIMEOUT", "5")
	t.Setenv("AUTHORITY_DOCUMENT_TIMEOUT", "1m")
	t.Setenv("AUTHORITY_INSECURE_SKIP_VERIFY", "false")
	t.Setenv("AUTHORITY_RATE_LIMIT_RPS", "0.5")
	t.Setenv("BATCH_ITEM_DELAY", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AuthorityDetailsTimeout != 5*time.Second || cfg.AuthorityDocumentTimeout != time.Minute {
		t.Fatalf("unexpected timeouts %v / %v", cfg.AuthorityDetailsTimeout, cfg.AuthorityDocumentTimeout)
	}
	if cfg.AuthorityInsecureSkipVerify {
		t.Fatalf("expected operator opt-out to disable the relaxation")
	}
	if cfg.AuthorityRateLimitRPS != 0.5 || cfg.BatchItemDelay != 250*time.Millisecond {
		t.Fatalf("unexpected rate/pacing %v / %v", cfg.AuthorityRateLimitRPS, cfg.BatchItemDelay)
	}
}

func TestLoadAppliesYAMLOverlayBelowEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prn.yaml")
	overlay := "AUTHORITY_BASE_URL: https://staging.example\nBATCH_ITEM_DELAY: 2s\nAPI_PORT: 9000\n"
	if err := os.WriteFile(path, []byte(overlay), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("AUTHORITY_BASE_URL", "")
	t.Setenv("BATCH_ITEM_DELAY", "")
	t.Setenv("API_PORT", "8081")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AuthorityBaseURL != "https://staging.example" || cfg.BatchItemDelay != 2*time.Second {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	if cfg.APIPort != "8081" {
		t.Fatalf("environment must win over the overlay, got %q", cfg.APIPort)
	}
}

func TestLoadRejectsUnreadableOverlay(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Config{StorageBackend: "s3", AuthorityDocumentTimeout: time.Second}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	if !strings.Contains(err.Error(), "AUTHORITY_DETAILS_TIMEOUT") || !strings.Contains(err.Error(), "STORAGE_BACKEND") {
		t.Fatalf("unexpected validation error: %v", err)
	}

	gcs := Config{StorageBackend: StorageGCS, AuthorityDetailsTimeout: time.Second, AuthorityDocumentTimeout: time.Second}
	if err := gcs.Validate(); err == nil || !strings.Contains(err.Error(), "GCS_BUCKET") {
		t.Fatalf("expected bucket requirement, got %v", err)
	}
}

func TestLoadRejectsUnparsableInsecureFlag(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	for _, value := range []string{"no", "off", "disabled"} {
		t.Setenv("AUTHORITY_INSECURE_SKIP_VERIFY", value)
		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "AUTHORITY_INSECURE_SKIP_VERIFY") {
			t.Fatalf("value %q: expected a parse error, got %v", value, err)
		}
	}

	t.Setenv("AUTHORITY_INSECURE_SKIP_VERIFY", "0")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AuthorityInsecureSkipVerify {
		t.Fatalf("expected 0 to disable the relaxation")
	}
}

func TestLoadKeepsFallbackForHarmlessKnobs(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("AUTHORITY_INSECURE_SKIP_VERIFY", "")
	t.Setenv("AUTHORITY_BREAKER_ENABLED", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AuthorityBreakerEnabled {
		t.Fatalf("expected the breaker default to survive a bad value")
	}
}

func TestValidateRequiresShorterDetailsTimeout(t *testing.T) {
	for _, tc := range []struct {
		details, document time.Duration
		wantErr           bool
	}{
		{details: 15 * time.Second, document: 30 * time.Second},
		{details: time.Minute, document: 5 * time.Second, wantErr: true},
		{details: 10 * time.Second, document: 10 * time.Second, wantErr: true},
	} {
		cfg := Config{
			StorageBackend:           StorageLocal,
			AuthorityDetailsTimeout:  tc.details,
			AuthorityDocumentTimeout: tc.document,
		}
		err := cfg.Validate()
		if tc.wantErr != (err != nil) {
			t.Fatalf("details=%s document=%s: Validate() = %v, wantErr %v", tc.details, tc.document, err, tc.wantErr)
		}
		if err != nil && !strings.Contains(err.Error(), "must be shorter than") {
			t.Fatalf("unexpected validation error: %v", err)
		}
	}
}
