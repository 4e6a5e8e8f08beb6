package domain

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete Kestrel server configuration.
type Config struct {
	Server ServerConfig `json:"server"`

	// Tier selects the backing infrastructure.
	Tier Tier `json:"tier"`

	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
	Worker  WorkerConfig  `json:"worker"`

	// AuditHistoryTTL is how long audit listings stay cached.
	AuditHistoryTTL time.Duration `json:"auditHistoryTtl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
	// MaxBodyBytes bounds uploaded run requests.
	MaxBodyBytes int64 `json:"maxBodyBytes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// WorkerConfig controls the async run worker.
type WorkerConfig struct {
	Enabled bool `json:"enabled"`
	// TenantIDs limits the worker to these tenants; empty listens globally.
	TenantIDs []string `json:"tenantIds,omitempty"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, the in-process cache and channels.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, Redis and NATS.
	TierPro Tier = "pro"
)

// DefaultConfig returns the community tier configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  60,
			WriteTimeout: 120,
			MaxBodyBytes: 256 << 20,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 1000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			ServiceName: "kestrel",
		},
		AuditHistoryTTL: 5 * time.Minute,
	}
}

// ProConfig returns the pro tier configuration.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "kestrel",
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
	cfg.Tracing.Enabled = true
	cfg.Worker.Enabled = true
	return cfg
}

// LoadConfig picks the tier from KESTREL_TIER and applies environment overrides.
func LoadConfig() *Config {
	var cfg *Config
	if Tier(os.Getenv("KESTREL_TIER")) == TierPro {
		cfg = ProConfig()
	} else {
		cfg = DefaultConfig()
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg
}

// ApplyEnv overrides fields from KESTREL_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	num("KESTREL_PORT", &c.Server.Port)
	str("KESTREL_SQLITE_PATH", &c.Repository.SQLitePath)
	str("KESTREL_POSTGRES_HOST", &c.Repository.PostgresHost)
	num("KESTREL_POSTGRES_PORT", &c.Repository.PostgresPort)
	str("KESTREL_POSTGRES_USER", &c.Repository.PostgresUser)
	str("KESTREL_POSTGRES_PASSWORD", &c.Repository.PostgresPassword)
	str("KESTREL_POSTGRES_DB", &c.Repository.PostgresDB)
	str("KESTREL_POSTGRES_SSLMODE", &c.Repository.PostgresSSLMode)
	str("KESTREL_REDIS_ADDR", &c.Cache.RedisAddr)
	str("KESTREL_REDIS_PASSWORD", &c.Cache.RedisPassword)
	str("KESTREL_NATS_URL", &c.EventBus.NATSUrl)
	str("KESTREL_NATS_TOKEN", &c.EventBus.NATSToken)
	str("KESTREL_LOG_LEVEL", &c.Logging.Level)

	str("KESTREL_LOG_FORMAT", &c.Logging.Format)

	if v := getenv("KESTREL_DEBUG"); v == "1" || v == "true" {
		c.Logging.Level = "debug"
	}
	if v := getenv("KESTREL_ASYNC_WORKER"); v != "" {
		c.Worker.Enabled = v == "1" || v == "true"
	}
	if v := getenv("KESTREL_TENANTS"); v != "" {
		c.Worker.TenantIDs = nil
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				c.Worker.TenantIDs = append(c.Worker.TenantIDs, id)
			}
		}
	}
	if v := getenv("KESTREL_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Server.MaxBodyBytes = n
		}
	}
}
