package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// loadEnvFiles loads KEY=VALUE pairs from the given files if they exist.
// Variables already present in the environment win.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = godotenv.Load(path)
	}
}

// fileConfig mirrors the optional YAML config file. Empty values are ignored.
type fileConfig struct {
	Port            string   `yaml:"port"`
	Env             string   `yaml:"env"`
	CORSAllowOrigin []string `yaml:"cors_allow_origins"`
	ChefAPI         struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
		Mode    string `yaml:"mode"`
	} `yaml:"chef_api"`
	ObjectStore struct {
		Type     string `yaml:"type"`
		LocalDir string `yaml:"local_dir"`
		Region   string `yaml:"region"`
		Bucket   string `yaml:"bucket"`
		Prefix   string `yaml:"prefix"`
		KMSKeyID string `yaml:"kms_key_id"`
	} `yaml:"object_store"`
	DatabaseURL string `yaml:"database_url"`
	Flows       struct {
		TTL           string `yaml:"ttl"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"flows"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
}

// loadFile reads a YAML config file and exports its values as environment
// defaults, so explicit environment variables still take precedence.
func loadFile(path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return err
	}

	setDefault("PORT", fc.Port)
	setDefault("ENV", fc.Env)
	if len(fc.CORSAllowOrigin) > 0 {
		setDefault("CORS_ALLOW_ORIGINS", joinComma(fc.CORSAllowOrigin))
	}
	setDefault("CHEF_API_BASE_URL", fc.ChefAPI.BaseURL)
	setDefault("CHEF_API_TIMEOUT", fc.ChefAPI.Timeout)
	setDefault("CHEF_API_MODE", fc.ChefAPI.Mode)
	setDefault("OBJECT_STORE", fc.ObjectStore.Type)
	setDefault("LOCAL_STORE_DIR", fc.ObjectStore.LocalDir)
	setDefault("AWS_REGION", fc.ObjectStore.Region)
	setDefault("S3_BUCKET", fc.ObjectStore.Bucket)
	setDefault("S3_PREFIX", fc.ObjectStore.Prefix)
	setDefault("SSE_KMS_KEY_ID", fc.ObjectStore.KMSKeyID)
	setDefault("DATABASE_URL", fc.DatabaseURL)
	setDefault("FLOW_TTL", fc.Flows.TTL)
	setDefault("FLOW_SWEEP_INTERVAL", fc.Flows.SweepInterval)
	if fc.MaxUploadBytes > 0 {
		setDefault("MAX_UPLOAD_BYTES", formatInt(fc.MaxUploadBytes))
	}
	setDefault("OTEL_EXPORTER_OTLP_ENDPOINT", fc.OTLPEndpoint)
	return nil
}

func setDefault(key, val string) {
	if val == "" {
		return
	}
	if _, ok := os.LookupEnv(key); ok {
		return
	}
	os.Setenv(key, val)
}
