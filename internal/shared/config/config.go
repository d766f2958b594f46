package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"fridgechef/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port              string
	Env               string
	CORSAllowOrigin   []string
	ChefAPIBaseURL    string
	ChefAPITimeout    time.Duration
	ChefAPIMode       string
	ObjectStoreType   string
	LocalStoreDir     string
	AWSRegion         string
	S3Bucket          string
	S3Prefix          string
	SSEKMSKeyID       string
	DatabaseURL       string
	FlowTTL           time.Duration
	FlowSweepInterval time.Duration
	MaxUploadBytes    int64
	OTLPEndpoint      string
	UpstreamRate      float64
	UpstreamBurst     int
	DefaultRate       float64
	DefaultBurst      int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path); err != nil {
			telemetry.Warn("config.file_failed", map[string]any{"path": path, "error": err.Error()})
		}
	}

	env := normalizeEnv(getEnv("ENV", "dev"))

	return Config{
		Port:              getEnv("PORT", "8080"),
		Env:               env,
		CORSAllowOrigin:   splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		ChefAPIBaseURL:    strings.TrimRight(getEnv("CHEF_API_BASE_URL", "http://localhost:8000"), "/"),
		ChefAPITimeout:    getDuration("CHEF_API_TIMEOUT", 90*time.Second),
		ChefAPIMode:       normalizeChefMode(getEnv("CHEF_API_MODE", "http")),
		ObjectStoreType:   normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:     getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:         getEnv("AWS_REGION", ""),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Prefix:          getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:       getEnv("SSE_KMS_KEY_ID", ""),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		FlowTTL:           getDuration("FLOW_TTL", 30*time.Minute),
		FlowSweepInterval: getDuration("FLOW_SWEEP_INTERVAL", time.Minute),
		MaxUploadBytes:    getInt64("MAX_UPLOAD_BYTES", 10<<20),
		OTLPEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		UpstreamRate:      getFloat("RATE_LIMIT_UPSTREAM_RATE", 0.5),
		UpstreamBurst:     int(getInt64("RATE_LIMIT_UPSTREAM_BURST", 5)),
		DefaultRate:       getFloat("RATE_LIMIT_DEFAULT_RATE", 10),
		DefaultBurst:      int(getInt64("RATE_LIMIT_DEFAULT_BURST", 40)),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val <= 0 {
		telemetry.Warn("config.invalid_duration", map[string]any{"key": key, "value": raw, "default": def.String()})
		return def
	}
	return val
}

func getInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || val <= 0 {
		telemetry.Warn("config.invalid_int", map[string]any{"key": key, "value": raw, "default": def})
		return def
	}
	return val
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil || val < 0 {
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func joinComma(values []string) string {
	return strings.Join(values, ",")
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeChefMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "fake":
		return "fake"
	default:
		return "http"
	}
}

// IsDevLike reports whether the environment tolerates in-memory fallbacks.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}
