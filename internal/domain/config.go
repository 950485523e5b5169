package domain

import "time"

// Config holds the complete Sentinel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which infrastructure backs the engine
	Tier Tier `json:"tier"`

	// Decision engine settings
	Model      ModelConfig      `json:"model"`
	Scoring    ScoringConfig    `json:"scoring"`
	Costs      CostTable        `json:"costs"`
	Monitoring MonitoringConfig `json:"monitoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
	Metrics MetricsConfig `json:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ModelConfig locates the model artifact loaded at startup.
type ModelConfig struct {
	// Path to the JSON model artifact. Empty starts the server degraded.
	Path string `json:"path"`
}

// ScoringConfig holds online scoring settings.
type ScoringConfig struct {
	// Threshold is the initial decision cutoff in [0,1].
	Threshold float64 `json:"threshold"`

	// ReplayTTL bounds how long a scored request can be replayed by request ID.
	ReplayTTL time.Duration `json:"replayTtl"`

	// AsyncWorkers enables bus-driven scoring of ingested transactions.
	AsyncWorkers bool `json:"asyncWorkers"`

	// WorkerTenants limits the async worker to these tenants; empty means all.
	WorkerTenants []string `json:"workerTenants,omitempty"`
	WorkerCount   int      `json:"workerCount"`
}

// MonitoringConfig holds drift detection settings.
type MonitoringConfig struct {
	Features          []string `json:"features"`
	SignificanceLevel float64  `json:"significanceLevel"`
	CriticalRatio     float64  `json:"criticalRatio"`

	// SampleFraction of the current dataset compared against the reference.
	SampleFraction float64 `json:"sampleFraction"`

	// MaxSamples caps each side after sampling (0 = no cap).
	MaxSamples int   `json:"maxSamples"`
	Seed       int64 `json:"seed"`
	Workers    int   `json:"workers"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-process cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultThreshold is the operator threshold used until an optimized one is applied.
const DefaultThreshold = 0.20

// DefaultMonitoringConfig returns the reference drift monitoring settings.
func DefaultMonitoringConfig() MonitoringConfig {
	features := make([]string, len(DefaultMonitoredFeatures))
	copy(features, DefaultMonitoredFeatures)
	return MonitoringConfig{
		Features:          features,
		SignificanceLevel: 0.05,
		CriticalRatio:     0.3,
		SampleFraction:    0.5,
		Seed:              42,
		Workers:           4,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Model: ModelConfig{
			Path: "./models/model.json",
		},
		Scoring: ScoringConfig{
			Threshold:   DefaultThreshold,
			ReplayTTL:   10 * time.Minute,
			WorkerCount: 8,
		},
		Costs:      DefaultCostTable(),
		Monitoring: DefaultMonitoringConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./sentinel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "sentinel",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "sentinel",
		PostgresSSLMode: "disable",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Scoring.AsyncWorkers = true
	cfg.Tracing.Enabled = true
	return cfg
}
