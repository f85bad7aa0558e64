package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

type Config struct {
	APIPort     string
	MetricsPort string
	LogLevel    string

	AuthorityBaseURL            string
	AuthorityDetailsTimeout     time.Duration
	AuthorityDocumentTimeout    time.Duration
	AuthorityInsecureSkipVerify bool
	AuthorityUserAgent          string
	AuthorityRateLimitRPS       float64
	AuthorityRateLimitBurst     int
	AuthorityBreakerEnabled     bool

	BatchItemDelay time.Duration

	StorageBackend string
	StoragePath    string
	GCSBucket      string
	GCSPrefix      string

	NATSURL             string
	NATSEventsSubject   string
	NATSRequestsSubject string

	APIRateLimitRPS     float64
	APIRateLimitBurst   int
	APIMaxInFlight      int
	APIBackpressureWait time.Duration

	LockPath string
}

// Load reads the environment. When CONFIG_FILE names a YAML file of
// KEY: value pairs, those values sit between the environment and the
// defaults.
func Load() (Config, error) {
	src := source{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		file, err := readOverlay(path)
		if err != nil {
			return Config{}, err
		}
		src.file = file
	}

	insecure, err := src.envBool("AUTHORITY_INSECURE_SKIP_VERIFY", true)
	if err != nil {
		return Config{}, err
	}

	return Config{
		APIPort:     src.mustEnv("API_PORT", "8080"),
		MetricsPort: src.mustEnv("METRICS_PORT", "9090"),
		LogLevel:    src.mustEnv("LOG_LEVEL", "info"),

		AuthorityBaseURL:            src.mustEnv("AUTHORITY_BASE_URL", "https://portal-customs.zra.org.zm"),
		AuthorityDetailsTimeout:     src.mustEnvDuration("AUTHORITY_DETAILS_TIMEOUT", 15*time.Second),
		AuthorityDocumentTimeout:    src.mustEnvDuration("AUTHORITY_DOCUMENT_TIMEOUT", 30*time.Second),
		AuthorityInsecureSkipVerify: insecure,
		AuthorityUserAgent:          src.mustEnv("AUTHORITY_USER_AGENT", ""),
		AuthorityRateLimitRPS:       src.mustEnvFloat("AUTHORITY_RATE_LIMIT_RPS", 2),
		AuthorityRateLimitBurst:     src.mustEnvInt("AUTHORITY_RATE_LIMIT_BURST", 1),
		AuthorityBreakerEnabled:     src.mustEnvBool("AUTHORITY_BREAKER_ENABLED", false),

		BatchItemDelay: src.mustEnvDuration("BATCH_ITEM_DELAY", time.Second),

		StorageBackend: strings.ToLower(src.mustEnv("STORAGE_BACKEND", StorageLocal)),
		StoragePath:    src.mustEnv("STORAGE_PATH", "./data/exports"),
		GCSBucket:      src.mustEnv("GCS_BUCKET", ""),
		GCSPrefix:      src.mustEnv("GCS_PREFIX", "prn-exports"),

		NATSURL:             src.mustEnv("NATS_URL", ""),
		NATSEventsSubject:   src.mustEnv("NATS_EVENTS_SUBJECT", "prn.batch.events"),
		NATSRequestsSubject: src.mustEnv("NATS_REQUESTS_SUBJECT", "prn.batch.requests"),

		APIRateLimitRPS:     src.mustEnvFloat("API_RATE_LIMIT_RPS", 10),
		APIRateLimitBurst:   src.mustEnvInt("API_RATE_LIMIT_BURST", 20),
		APIMaxInFlight:      src.mustEnvInt("API_MAX_INFLIGHT", 64),
		APIBackpressureWait: src.mustEnvDuration("API_BACKPRESSURE_WAIT", 250*time.Millisecond),

		LockPath: src.mustEnv("LOCK_PATH", filepath.Join(os.TempDir(), "prn-reconciler.lock")),
	}, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.AuthorityDetailsTimeout <= 0 {
		errs = append(errs, errors.New("AUTHORITY_DETAILS_TIMEOUT must be positive"))
	}
	if c.AuthorityDocumentTimeout <= 0 {
		errs = append(errs, errors.New("AUTHORITY_DOCUMENT_TIMEOUT must be positive"))
	}
	if c.AuthorityDetailsTimeout > 0 && c.AuthorityDetailsTimeout >= c.AuthorityDocumentTimeout {
		errs = append(errs, fmt.Errorf("AUTHORITY_DETAILS_TIMEOUT (%s) must be shorter than AUTHORITY_DOCUMENT_TIMEOUT (%s)",
			c.AuthorityDetailsTimeout, c.AuthorityDocumentTimeout))
	}
	if c.BatchItemDelay < 0 {
		errs = append(errs, errors.New("BATCH_ITEM_DELAY must not be negative"))
	}
	if c.AuthorityRateLimitRPS < 0 || c.APIRateLimitRPS < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	switch c.StorageBackend {
	case StorageLocal:
	case StorageGCS:
		if strings.TrimSpace(c.GCSBucket) == "" {
			errs = append(errs, errors.New("GCS_BUCKET is required when STORAGE_BACKEND=gcs"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	return errors.Join(errs...)
}

type source struct {
	file map[string]string
}

func readOverlay(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		if v == nil {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = fmt.Sprint(v)
	}
	return out, nil
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) mustEnv(key, fallback string) string {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	return v
}

func (s source) mustEnvInt(key string, fallback int) int {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvFloat(key string, fallback float64) float64 {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func (s source) mustEnvBool(key string, fallback bool) bool {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// envBool is mustEnvBool without the silent fallback, for flags that relax
// security.
func (s source) envBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(s.lookup(key))
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean (use true or false)", key, v)
	}
	return parsed, nil
}

// mustEnvDuration accepts Go durations ("1500ms") and bare seconds ("15").
func (s source) mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return fallback
}
