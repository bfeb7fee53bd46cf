package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// DefaultDSNTemplate is used when DB_DSN_TEMPLATE is not provided. {tenant} and {token}
// are substituted per tenant.
const DefaultDSNTemplate = "postgres://storefront:{token}@{tenant}-storefront.db.internal:5432/storefront?sslmode=disable"

// HTTP holds HTTP server configuration.
type HTTP struct {
	Host        string
	Port        int
	CSRFEnabled bool
	AdminToken  string
}

// GRPC holds gRPC server configuration.
type GRPC struct {
	Host string
	Port int
}

// Cache configures the query cache backend.
type Cache struct {
	Enabled    bool
	Driver     string
	DefaultTTL time.Duration
	KeyPrefix  string
	Redis      Redis
}

// Redis contains redis-specific connection settings.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Messaging configures the message bus used by the application.
type Messaging struct {
	Driver        string
	Enabled       bool
	Kafka         Kafka
	ConsumerGroup string
	Workers       Worker
}

// Kafka holds Kafka connection details.
type Kafka struct {
	Brokers        []string
	ClientID       string
	Topic          string
	CommitInterval time.Duration
	MinBytes       int
	MaxBytes       int
	ConnectTimeout time.Duration
}

// Worker configures background worker concurrency and polling.
type Worker struct {
	Enabled      bool
	PollInterval time.Duration
	Concurrency  int
}

// Database describes how per-tenant database handles are opened.
type Database struct {
	Driver          string
	DSNTemplate     string
	AuthToken       string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
	Debug           bool
}

// Checkout tunes the order creation flow.
type Checkout struct {
	MaxIdentifierAttempts int
}

// Observability contains logging, tracing, and metrics configuration.
type Observability struct {
	ServiceName   string
	Environment   string
	LogLevel      string
	LogEncoding   string
	EnableTracing bool
	TraceExporter string
	TraceEndpoint string
	TraceInsecure bool
	// TraceSampleRatio is the fraction of new traces recorded, 0..1.
	TraceSampleRatio float64
	EnableMetrics    bool
	MetricsExporter  string
	PrometheusPath   string
}

// Config wraps all application configuration knobs.
type Config struct {
	HTTP          HTTP
	GRPC          GRPC
	Cache         Cache
	Messaging     Messaging
	Database      Database
	Checkout      Checkout
	Observability Observability
}

// Module wires the configuration loader into the Fx graph.
var Module = fx.Provide(New)

var loadEnvOnce sync.Once

// New builds a Config from environment variables or defaults.
func New() (Config, error) {
	loadEnvOnce.Do(func() {
		_ = godotenv.Load()
	})

	cfg := Config{
		HTTP: HTTP{
			Host:        getEnv("HTTP_HOST", "0.0.0.0"),
			Port:        getEnvAsInt("HTTP_PORT", 8080),
			CSRFEnabled: getEnvAsBool("HTTP_CSRF_ENABLED", true),
			AdminToken:  getEnv("HTTP_ADMIN_TOKEN", ""),
		},
		GRPC: GRPC{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnvAsInt("GRPC_PORT", 9090),
		},
		Cache: Cache{
			Enabled:    getEnvAsBool("CACHE_ENABLED", true),
			Driver:     getEnv("CACHE_DRIVER", "memory"),
			DefaultTTL: getEnvAsDuration("CACHE_DEFAULT_TTL", time.Minute*5),
			KeyPrefix:  getEnv("CACHE_KEY_PREFIX", "storefront:qc:"),
			Redis: Redis{
				Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvAsInt("REDIS_DB", 0),
			},
		},
		Messaging: Messaging{
			Driver:  getEnv("MESSAGING_DRIVER", "kafka"),
			Enabled: getEnvAsBool("MESSAGING_ENABLED", false),
			Kafka: Kafka{
				Brokers:        getEnvAsStringSlice("KAFKA_BROKERS", []string{"127.0.0.1:9092"}),
				ClientID:       getEnv("KAFKA_CLIENT_ID", "storefront"),
				Topic:          getEnv("KAFKA_TOPIC", "orders.events"),
				CommitInterval: getEnvAsDuration("KAFKA_COMMIT_INTERVAL", time.Second),
				MinBytes:       getEnvAsInt("KAFKA_MIN_BYTES", 10e3),
				MaxBytes:       getEnvAsInt("KAFKA_MAX_BYTES", 10e6),
				ConnectTimeout: getEnvAsDuration("KAFKA_CONNECT_TIMEOUT", 5*time.Second),
			},
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "storefront-worker"),
			Workers: Worker{
				Enabled:      getEnvAsBool("WORKER_ENABLED", true),
				PollInterval: getEnvAsDuration("WORKER_POLL_INTERVAL", time.Second),
				Concurrency:  getEnvAsInt("WORKER_CONCURRENCY", 2),
			},
		},
		Database: Database{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			DSNTemplate:     getEnv("DB_DSN_TEMPLATE", DefaultDSNTemplate),
			AuthToken:       getEnv("DB_AUTH_TOKEN", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", time.Minute*5),
			ConnectTimeout:  getEnvAsDuration("DB_CONNECT_TIMEOUT", 5*time.Second),
			Debug:           getEnvAsBool("DB_DEBUG", false),
		},
		Checkout: Checkout{
			MaxIdentifierAttempts: getEnvAsInt("CHECKOUT_MAX_ID_ATTEMPTS", 10),
		},
		Observability: Observability{
			ServiceName:      getEnv("OBS_SERVICE_NAME", "storefront"),
			Environment:      getEnv("OBS_ENVIRONMENT", "local"),
			LogLevel:         getEnv("OBS_LOG_LEVEL", "info"),
			LogEncoding:      getEnv("OBS_LOG_ENCODING", "json"),
			EnableTracing:    getEnvAsBool("OBS_ENABLE_TRACING", false),
			TraceExporter:    getEnv("OBS_TRACE_EXPORTER", "stdout"),
			TraceEndpoint:    getEnv("OBS_OTLP_ENDPOINT", "localhost:4317"),
			TraceInsecure:    getEnvAsBool("OBS_OTLP_INSECURE", true),
			TraceSampleRatio: getEnvAsFloat("OBS_TRACE_SAMPLE_RATIO", 1),
			EnableMetrics:    getEnvAsBool("OBS_ENABLE_METRICS", true),
			MetricsExporter:  getEnv("OBS_METRICS_EXPORTER", "prometheus"),
			PrometheusPath:   getEnv("OBS_PROMETHEUS_PATH", "/metrics"),
		},
	}

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.HTTP.Port <= 0 {
		return fmt.Errorf("invalid HTTP port: %d", cfg.HTTP.Port)
	}

	if cfg.GRPC.Port <= 0 {
		return fmt.Errorf("invalid gRPC port: %d", cfg.GRPC.Port)
	}

	if !cfg.Cache.Enabled {
		cfg.Cache.Driver = "noop"
	}

	cfg.Cache.Driver = strings.ToLower(strings.TrimSpace(cfg.Cache.Driver))
	switch cfg.Cache.Driver {
	case "memory", "redis", "noop":
		// supported
	default:
		return fmt.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}

	if cfg.Cache.Driver == "redis" && cfg.Cache.Redis.Addr == "" {
		return fmt.Errorf("missing REDIS_ADDR for redis cache")
	}

	if cfg.Cache.DefaultTTL <= 0 {
		cfg.Cache.DefaultTTL = time.Minute * 5
	}

	cfg.Observability.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Observability.LogLevel))
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	cfg.Observability.LogEncoding = strings.ToLower(strings.TrimSpace(cfg.Observability.LogEncoding))
	if cfg.Observability.LogEncoding == "" {
		cfg.Observability.LogEncoding = "json"
	}
	cfg.Observability.TraceExporter = strings.ToLower(strings.TrimSpace(cfg.Observability.TraceExporter))
	if cfg.Observability.TraceExporter == "" {
		cfg.Observability.TraceExporter = "stdout"
	}
	cfg.Observability.MetricsExporter = strings.ToLower(strings.TrimSpace(cfg.Observability.MetricsExporter))
	if cfg.Observability.MetricsExporter == "" {
		cfg.Observability.MetricsExporter = "prometheus"
	}

	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	} else if !strings.HasPrefix(cfg.Observability.PrometheusPath, "/") {
		cfg.Observability.PrometheusPath = "/" + cfg.Observability.PrometheusPath
	}

	if !cfg.Messaging.Enabled {
		cfg.Messaging.Driver = "noop"
	}

	switch cfg.Messaging.Driver {
	case "kafka", "memory", "noop":
		// supported
	default:
		return fmt.Errorf("unsupported messaging driver: %s", cfg.Messaging.Driver)
	}

	if cfg.Messaging.Driver == "kafka" {
		if len(cfg.Messaging.Kafka.Brokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS must be provided")
		}
		if cfg.Messaging.Kafka.Topic == "" {
			return fmt.Errorf("KAFKA_TOPIC must be provided")
		}
		if cfg.Messaging.ConsumerGroup == "" {
			return fmt.Errorf("KAFKA_CONSUMER_GROUP must be provided")
		}
	}

	if cfg.Messaging.Workers.Concurrency <= 0 {
		cfg.Messaging.Workers.Concurrency = 1
	}
	if cfg.Messaging.Workers.PollInterval <= 0 {
		cfg.Messaging.Workers.PollInterval = time.Second
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch cfg.Database.Driver {
	case "postgres", "mysql", "sqlite":
		// supported
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	if strings.TrimSpace(cfg.Database.DSNTemplate) == "" {
		cfg.Database.DSNTemplate = DefaultDSNTemplate
	}
	if !strings.Contains(cfg.Database.DSNTemplate, "{tenant}") {
		return fmt.Errorf("DB_DSN_TEMPLATE must contain the {tenant} placeholder")
	}
	if cfg.Database.ConnectTimeout <= 0 {
		cfg.Database.ConnectTimeout = 5 * time.Second
	}

	if cfg.Checkout.MaxIdentifierAttempts <= 0 {
		cfg.Checkout.MaxIdentifierAttempts = 10
	}

	return nil
}
