package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load assembles a Config from defaults, an optional YAML file (CENTROID_CONFIG_FILE
// or the explicit yamlPath argument), and environment variables, in that order of
// increasing precedence — following the teacher's loader.go idiom of layering
// env on top of file on top of code defaults.
func Load(yamlPath string) (Config, error) {
	_ = godotenv.Overload()

	cfg := Defaults()

	path := firstNonEmpty(yamlPath, os.Getenv("CENTROID_CONFIG_FILE"))
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CENTROID_POSTGRES_DSN")); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("CENTROID_POSTGRES_ADMIN_SCHEMA")); v != "" {
		cfg.Postgres.AdminSchema = v
	}
	if v := strings.TrimSpace(os.Getenv("CENTROID_VECTOR_DSN")); v != "" {
		cfg.Vector.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("CENTROID_VECTOR_DIMENSIONS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vector.Dimensions = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CENTROID_VECTOR_METRIC")); v != "" {
		cfg.Vector.Metric = v
	}
	if v := strings.TrimSpace(os.Getenv("CENTROID_REDIS_ADDR")); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("CENTROID_REDIS_PASSWORD")); v != "" {
		cfg.Redis.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("CENTROID_EMBEDDING_DEFAULT")); v != "" {
		cfg.Embedding.Default = v
	}
	if v := strings.TrimSpace(os.Getenv("CENTROID_COI_SHIFT_FACTOR")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CoI.ShiftFactor = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("CENTROID_COI_THRESHOLD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CoI.Threshold = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("CENTROID_COI_MIN_COIS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CoI.MinCoIs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CENTROID_COI_HORIZON")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CoI.Horizon = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("CENTROID_TENANTS_ENABLE_LEGACY")); v != "" {
		cfg.Tenants.EnableLegacyTenant = isTrue(v)
	}
	if v := strings.TrimSpace(os.Getenv("CENTROID_TENANTS_ENABLE_DEV")); v != "" {
		cfg.Tenants.EnableDev = isTrue(v)
	}
	cfg.LogPath = firstNonEmpty(strings.TrimSpace(os.Getenv("CENTROID_LOG_PATH")), cfg.LogPath)
	cfg.LogLevel = firstNonEmpty(strings.TrimSpace(os.Getenv("CENTROID_LOG_LEVEL")), cfg.LogLevel)
	cfg.Observability.OTLP = firstNonEmpty(strings.TrimSpace(os.Getenv("CENTROID_OTLP_ENDPOINT")), cfg.Observability.OTLP)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}
