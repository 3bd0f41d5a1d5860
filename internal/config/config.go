package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	JWTMaxTTL          time.Duration
	CORSAllowedOrigins []string
	DefaultLocale      string
	MigrateOnStart     bool

	LogFormat string
	LogLevel  string
	Tracing   TracingConfig

	CatalogCacheTTL time.Duration

	MarketPriceBaseURL  string
	MarketPriceCacheTTL time.Duration
	MarketPriceTimeout  time.Duration

	SubmissionBaseURL string
	QueueConcurrency  int
	IdempotencyTTL    time.Duration
	LockTTL           time.Duration

	Retry RetryConfig
	// Circuits holds the breaker settings of each outbound target.
	Circuits map[string]CircuitConfig

	RateLimitPerIP         string
	RateLimitSubmitPerUser int
	RateLimitSubmitWindow  time.Duration

	MaxBodyBytes int
	HSTSMaxAge   int
	TrustProxy   bool

	PprofEnabled bool
	PprofUser    string
	PprofPass    string
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Exporter      string
	Endpoint      string
	SamplingRatio float64
}

// RetryConfig configures outbound HTTP retries.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Outbound targets guarded by their own circuit breaker.
const (
	TargetMarketPrice       = "market-price"
	TargetSubmissionForward = "submission-forward"
)

// circuitEnvPrefixes maps each target to the prefix of its override
// variables, e.g. MARKET_PRICE_CIRCUIT_FAILURE_RATE.
var circuitEnvPrefixes = map[string]string{
	TargetMarketPrice:       "MARKET_PRICE_CIRCUIT_",
	TargetSubmissionForward: "SUBMISSION_CIRCUIT_",
}

// CircuitConfig configures one outbound circuit breaker.
type CircuitConfig struct {
	Window          time.Duration
	FailureRate     float64
	MinSamples      int
	HalfOpenTrials  int
	CooldownTimeout time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:        strings.TrimSpace(k.String("JWT_AUDIENCE")),
		JWTMaxTTL:          parseDuration(k.String("JWT_MAX_TTL"), "12h"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		DefaultLocale:      strings.ToLower(valueOrDefault(k.String("DEFAULT_LOCALE"), "vi")),
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START")),

		LogFormat: valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:  valueOrDefault(k.String("LOG_LEVEL"), "info"),
		Tracing: TracingConfig{
			Exporter:      strings.ToLower(valueOrDefault(k.String("OTEL_EXPORTER"), "none")),
			Endpoint:      strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
			SamplingRatio: parseFloat(k.String("OTEL_SAMPLING_RATIO"), 1),
		},

		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),

		MarketPriceBaseURL:  strings.TrimRight(strings.TrimSpace(k.String("MARKET_PRICE_BASE_URL")), "/"),
		MarketPriceCacheTTL: parseDuration(k.String("MARKET_PRICE_CACHE_TTL"), "1m"),
		MarketPriceTimeout:  parseDuration(k.String("MARKET_PRICE_TIMEOUT"), "3s"),

		SubmissionBaseURL: strings.TrimRight(strings.TrimSpace(k.String("SUBMISSION_BASE_URL")), "/"),
		QueueConcurrency:  parseInt(k.String("QUEUE_CONCURRENCY"), 10),
		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		LockTTL:           parseDuration(k.String("LOCK_TTL"), "10s"),

		Retry: RetryConfig{
			MaxAttempts: parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
			BaseBackoff: parseDuration(k.String("RETRY_BASE_BACKOFF"), "100ms"),
			MaxBackoff:  parseDuration(k.String("RETRY_MAX_BACKOFF"), "2s"),
		},
		Circuits: loadCircuits(k),

		RateLimitPerIP:         valueOrDefault(k.String("RATE_LIMIT_PER_IP"), "100-M"),
		RateLimitSubmitPerUser: parseInt(k.String("RATE_LIMIT_SUBMIT_PER_USER"), 30),
		RateLimitSubmitWindow:  parseDuration(k.String("RATE_LIMIT_SUBMIT_WINDOW"), "1m"),

		MaxBodyBytes: parseInt(k.String("MAX_BODY_BYTES"), 1<<20),
		HSTSMaxAge:   parseInt(k.String("HSTS_MAX_AGE"), 31536000),
		TrustProxy:   parseBool(valueOrDefault(k.String("TRUST_PROXY"), "true")),

		PprofEnabled: parseBool(k.String("PPROF_ENABLED")),
		PprofUser:    strings.TrimSpace(k.String("PPROF_BASIC_AUTH_USER")),
		PprofPass:    strings.TrimSpace(k.String("PPROF_BASIC_AUTH_PASS")),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.MarketPriceBaseURL == "" {
		return nil, errors.New("MARKET_PRICE_BASE_URL is required")
	}
	if cfg.SubmissionBaseURL == "" {
		return nil, errors.New("SUBMISSION_BASE_URL is required")
	}

	return cfg, nil
}

// CircuitFor returns the breaker settings of target, falling back to the
// global CIRCUIT_* values for unknown targets.
func (c *Config) CircuitFor(target string) CircuitConfig {
	if cc, ok := c.Circuits[target]; ok {
		return cc
	}
	return c.Circuits[""]
}

// loadCircuits reads CIRCUIT_* as the shared baseline, stored under the
// empty key, and applies <TARGET>_CIRCUIT_* overrides per target.
func loadCircuits(k *koanf.Koanf) map[string]CircuitConfig {
	base := CircuitConfig{
		Window:          parseDuration(k.String("CIRCUIT_WINDOW"), "30s"),
		FailureRate:     parseFloat(k.String("CIRCUIT_FAILURE_RATE"), 0.5),
		MinSamples:      parseInt(k.String("CIRCUIT_MIN_SAMPLES"), 10),
		HalfOpenTrials:  parseInt(k.String("CIRCUIT_HALF_OPEN_TRIALS"), 3),
		CooldownTimeout: parseDuration(k.String("CIRCUIT_COOLDOWN"), "15s"),
	}
	circuits := map[string]CircuitConfig{"": base}
	for target, prefix := range circuitEnvPrefixes {
		circuits[target] = CircuitConfig{
			Window:          parseDuration(k.String(prefix+"WINDOW"), base.Window.String()),
			FailureRate:     parseFloat(k.String(prefix+"FAILURE_RATE"), base.FailureRate),
			MinSamples:      parseInt(k.String(prefix+"MIN_SAMPLES"), base.MinSamples),
			HalfOpenTrials:  parseInt(k.String(prefix+"HALF_OPEN_TRIALS"), base.HalfOpenTrials),
			CooldownTimeout: parseDuration(k.String(prefix+"COOLDOWN"), base.CooldownTimeout.String()),
		}
	}
	return circuits
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
