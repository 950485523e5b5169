// Package config builds the Sentinel configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
// SENTINEL_TIER=pro starts from the Pro tier defaults.
func Load() (*domain.Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := domain.DefaultConfig()
	if getEnv("SENTINEL_TIER", "") == string(domain.TierPro) {
		cfg = domain.ProConfig()
	}

	// Server
	cfg.Server.Host = getEnv("SENTINEL_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SENTINEL_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvInt("SENTINEL_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvInt("SENTINEL_WRITE_TIMEOUT", cfg.Server.WriteTimeout)

	// Decision engine
	cfg.Model.Path = getEnv("SENTINEL_MODEL_PATH", cfg.Model.Path)
	cfg.Scoring.Threshold = getEnvFloat("SENTINEL_THRESHOLD", cfg.Scoring.Threshold)
	cfg.Scoring.ReplayTTL = getEnvDuration("SENTINEL_REPLAY_TTL", cfg.Scoring.ReplayTTL)
	cfg.Scoring.AsyncWorkers = getEnvBool("SENTINEL_ASYNC_WORKER", cfg.Scoring.AsyncWorkers)
	cfg.Scoring.WorkerTenants = getEnvList("SENTINEL_TENANTS", cfg.Scoring.WorkerTenants)
	cfg.Scoring.WorkerCount = getEnvInt("SENTINEL_WORKER_COUNT", cfg.Scoring.WorkerCount)
	cfg.Costs.FalseNegative = getEnvFloat("SENTINEL_COST_FN", cfg.Costs.FalseNegative)
	cfg.Costs.FalsePositive = getEnvFloat("SENTINEL_COST_FP", cfg.Costs.FalsePositive)

	// Monitoring
	cfg.Monitoring.Features = getEnvList("SENTINEL_DRIFT_FEATURES", cfg.Monitoring.Features)
	cfg.Monitoring.SignificanceLevel = getEnvFloat("SENTINEL_DRIFT_SIGNIFICANCE", cfg.Monitoring.SignificanceLevel)
	cfg.Monitoring.CriticalRatio = getEnvFloat("SENTINEL_DRIFT_CRITICAL_RATIO", cfg.Monitoring.CriticalRatio)
	cfg.Monitoring.SampleFraction = getEnvFloat("SENTINEL_DRIFT_SAMPLE_FRACTION", cfg.Monitoring.SampleFraction)
	cfg.Monitoring.MaxSamples = getEnvInt("SENTINEL_DRIFT_MAX_SAMPLES", cfg.Monitoring.MaxSamples)
	cfg.Monitoring.Seed = int64(getEnvInt("SENTINEL_DRIFT_SEED", int(cfg.Monitoring.Seed)))

	// Repository
	cfg.Repository.SQLitePath = getEnv("SENTINEL_SQLITE_PATH", cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = getEnv("SENTINEL_POSTGRES_HOST", cfg.Repository.PostgresHost)
	cfg.Repository.PostgresPort = getEnvInt("SENTINEL_POSTGRES_PORT", cfg.Repository.PostgresPort)
	cfg.Repository.PostgresUser = getEnv("SENTINEL_POSTGRES_USER", cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = getEnv("SENTINEL_POSTGRES_PASSWORD", cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = getEnv("SENTINEL_POSTGRES_DB", cfg.Repository.PostgresDB)
	cfg.Repository.PostgresSSLMode = getEnv("SENTINEL_POSTGRES_SSLMODE", cfg.Repository.PostgresSSLMode)

	// Cache
	cfg.Cache.RedisAddr = getEnv("SENTINEL_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("SENTINEL_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = getEnvInt("SENTINEL_REDIS_DB", cfg.Cache.RedisDB)

	// Event bus
	cfg.EventBus.NATSUrl = getEnv("SENTINEL_NATS_URL", cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = getEnv("SENTINEL_NATS_TOKEN", cfg.EventBus.NATSToken)
	cfg.EventBus.NATSQueueGroup = getEnv("SENTINEL_NATS_QUEUE_GROUP", cfg.EventBus.NATSQueueGroup)

	// Observability
	cfg.Logging.Level = getEnv("SENTINEL_LOG_LEVEL", cfg.Logging.Level)
	if getEnvBool("SENTINEL_DEBUG", false) {
		cfg.Logging.Level = "debug"
	}
	cfg.Tracing.Enabled = getEnvBool("SENTINEL_TRACING", cfg.Tracing.Enabled)
	cfg.Metrics.Enabled = getEnvBool("SENTINEL_METRICS", cfg.Metrics.Enabled)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values a misconfigured environment can break.
func Validate(cfg *domain.Config) error {
	if cfg.Scoring.Threshold < 0 || cfg.Scoring.Threshold > 1 {
		return fmt.Errorf("%w: SENTINEL_THRESHOLD %v outside [0,1]", domain.ErrValidation, cfg.Scoring.Threshold)
	}
	if err := cfg.Costs.Validate(); err != nil {
		return err
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: SENTINEL_PORT %d out of range", domain.ErrValidation, cfg.Server.Port)
	}
	m := cfg.Monitoring
	if len(m.Features) == 0 {
		return fmt.Errorf("%w: SENTINEL_DRIFT_FEATURES is empty", domain.ErrValidation)
	}
	if m.SignificanceLevel <= 0 || m.SignificanceLevel >= 1 {
		return fmt.Errorf("%w: SENTINEL_DRIFT_SIGNIFICANCE %v outside (0,1)", domain.ErrValidation, m.SignificanceLevel)
	}
	if m.CriticalRatio < 0 || m.CriticalRatio > 1 {
		return fmt.Errorf("%w: SENTINEL_DRIFT_CRITICAL_RATIO %v outside [0,1]", domain.ErrValidation, m.CriticalRatio)
	}
	if m.SampleFraction <= 0 || m.SampleFraction > 1 {
		return fmt.Errorf("%w: SENTINEL_DRIFT_SAMPLE_FRACTION %v outside (0,1]", domain.ErrValidation, m.SampleFraction)
	}
	return nil
}

// LogLevel maps a configured level name to a slog level.
func LogLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
