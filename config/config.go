package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

var defaultExchangeRateEndpoints = []string{
	"https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@latest/v1/currencies/eur.json",
	"https://latest.currency-api.pages.dev/v1/currencies/eur.json",
}

type Config struct {
	Port        string
	LogLevel    string
	AppEnv      string
	FrontendURL string
	// Storage
	StoreDriver string
	DBUrl       string
	// Photos
	PhotosDir           string
	PhotoMaxDimension   int
	PhotoMaxUploadBytes int64
	PhotoMirrorBucket   string
	// S3-compatible mirror (AWS or Wasabi)
	S3Provider        string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	WasabiEndpoint    string
	// Exchange rate
	ExchangeRateEndpoints      []string
	ExchangeRateConnectTimeout time.Duration
	ExchangeRateReadTimeout    time.Duration
	ExchangeRateUserAgent      string
	// Redis/Upstash Configuration
	UpstashRedisURL      string
	UpstashRedisPassword string
	// Rate Limiting Configuration
	RateLimitWindowSeconds   int
	RateLimitGlobalThreshold int
	RateLimitUploadThreshold int
	// Drafts and audit
	DraftIdleTimeout time.Duration
	AuditServiceName string
}

func LoadConfig() (*Config, error) {
	// .env is only present locally; missing file is fine
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "debug"),
		AppEnv:      getEnv("APP_ENV", "development"),
		FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DBUrl:       getEnv("DATABASE_URL", ""),

		PhotosDir:           getEnv("PHOTOS_DIR", "./data/photos"),
		PhotoMaxDimension:   getEnvInt("PHOTO_MAX_DIMENSION", 0),
		PhotoMaxUploadBytes: int64(getEnvInt("PHOTO_MAX_UPLOAD_BYTES", 10<<20)),
		PhotoMirrorBucket:   getEnv("PHOTO_MIRROR_BUCKET", ""),

		S3Provider:        getEnv("S3_PROVIDER", "aws"),
		S3Region:          getEnv("S3_REGION", ""),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		WasabiEndpoint:    getEnv("WASABI_ENDPOINT", ""),

		ExchangeRateEndpoints:      getEnvList("EXCHANGE_RATE_ENDPOINTS", defaultExchangeRateEndpoints),
		ExchangeRateConnectTimeout: getEnvDuration("EXCHANGE_RATE_CONNECT_TIMEOUT", 10*time.Second),
		ExchangeRateReadTimeout:    getEnvDuration("EXCHANGE_RATE_READ_TIMEOUT", 10*time.Second),
		ExchangeRateUserAgent:      getEnv("EXCHANGE_RATE_USER_AGENT", "vitesse/1.0 (Go)"),

		UpstashRedisURL:      getEnv("UPSTASH_REDIS_URL", ""),
		UpstashRedisPassword: getEnv("UPSTASH_REDIS_PASSWORD", ""),

		RateLimitWindowSeconds:   getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitGlobalThreshold: getEnvInt("RATE_LIMIT_GLOBAL_THRESHOLD", 100),
		RateLimitUploadThreshold: getEnvInt("RATE_LIMIT_UPLOAD_THRESHOLD", 10),

		DraftIdleTimeout: getEnvDuration("DRAFT_IDLE_TIMEOUT", 30*time.Minute),
		AuditServiceName: getEnv("AUDIT_SERVICE_NAME", "candidate-tracker"),
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DBUrl == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q (want %s or %s)", cfg.StoreDriver, StoreDriverPostgres, StoreDriverMemory)
	}

	if cfg.UpstashRedisURL == "" {
		slog.Warn("UPSTASH_REDIS_URL not configured. Rate limiting will use in-memory fallback.")
	}
	if cfg.PhotoMirrorBucket != "" && (cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "") {
		slog.Warn("PHOTO_MIRROR_BUCKET set without S3 credentials; falling back to the default AWS credential chain")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt returns an integer environment variable or fallback if not set/invalid
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("10s", "30m") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// getEnvList splits a comma-separated variable, dropping blank entries.
func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
