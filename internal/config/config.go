package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server      ServerConfig
	App         AppConfig
	Cache       CacheConfig
	Store       StoreConfig
	Fulfillment FulfillmentConfig
	Admin       AdminConfig
	CORS        CORSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"storefront-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// CacheConfig holds settings for the idempotency window cache.
type CacheConfig struct {
	Type string `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis

	RedisHost      string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort      int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"storefront:idempotency"`
}

// StoreConfig selects and configures the backing range store.
type StoreConfig struct {
	Type string `envconfig:"STORE_TYPE" default:"sqlite"` // sqlite, mysql, postgres, mongodb or memory

	UserTable    string `envconfig:"STORE_USER_TABLE" default:"user"`
	ProductTable string `envconfig:"STORE_PRODUCT_TABLE" default:"product"`
	OrderTable   string `envconfig:"STORE_ORDER_TABLE" default:"orders"`

	// SQLite settings
	Path string `envconfig:"STORE_PATH" default:"./data/storefront.db"`
	// MySQL / PostgreSQL settings
	Host     string `envconfig:"STORE_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"STORE_DB_PORT" default:"0"`
	Name     string `envconfig:"STORE_DB_NAME" default:"storefront"`
	User     string `envconfig:"STORE_DB_USER" default:"storefront"`
	Password string `envconfig:"STORE_DB_PASS" default:""`
	SSLMode  string `envconfig:"STORE_DB_SSLMODE" default:"disable"`
	// MongoDB settings
	MongoURI        string `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017"`
	MongoDatabase   string `envconfig:"MONGODB_DATABASE" default:"storefront"`
	MongoCollection string `envconfig:"MONGODB_COLLECTION" default:"ranges"`
}

// FulfillmentConfig tunes the order fulfillment engine.
type FulfillmentConfig struct {
	IdempotencyWindow time.Duration `envconfig:"FULFILLMENT_IDEMPOTENCY_WINDOW" default:"10m"`
	RequestTimeout    time.Duration `envconfig:"FULFILLMENT_REQUEST_TIMEOUT" default:"20s"`
	CommitTimeout     time.Duration `envconfig:"FULFILLMENT_COMMIT_TIMEOUT" default:"30s"`
	MaxAttempts       int           `envconfig:"FULFILLMENT_MAX_ATTEMPTS" default:"3"`
	RetryBackoff      time.Duration `envconfig:"FULFILLMENT_RETRY_BACKOFF" default:"200ms"`
	ReconcileAttempts int           `envconfig:"FULFILLMENT_RECONCILE_ATTEMPTS" default:"3"`
	ReconcileInterval time.Duration `envconfig:"FULFILLMENT_RECONCILE_INTERVAL" default:"30s"`
}

// AdminConfig holds settings for the admin API.
type AdminConfig struct {
	APIKeys []string `envconfig:"ADMIN_API_KEYS" default:""`
}

// CORSConfig holds cross-origin settings for the storefront frontend.
type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"https://mounty12312312.github.io"`
	MaxAge         int      `envconfig:"CORS_MAX_AGE" default:"300"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// MySQLDSN returns the MySQL data source name.
func (s *StoreConfig) MySQLDSN() string {
	port := s.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		s.User, s.Password, s.Host, port, s.Name)
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	port := s.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, port, s.Name, s.SSLMode)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// Validate checks values envconfig cannot express with tags.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "sqlite", "mysql", "postgres", "postgresql", "mongodb", "mongo", "memory":
	default:
		return fmt.Errorf("unsupported STORE_TYPE %q", c.Store.Type)
	}
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported CACHE_TYPE %q", c.Cache.Type)
	}
	if c.Fulfillment.MaxAttempts < 1 {
		return fmt.Errorf("FULFILLMENT_MAX_ATTEMPTS must be at least 1")
	}
	if c.Fulfillment.ReconcileAttempts < 1 {
		return fmt.Errorf("FULFILLMENT_RECONCILE_ATTEMPTS must be at least 1")
	}
	if c.Fulfillment.IdempotencyWindow <= 0 {
		return fmt.Errorf("FULFILLMENT_IDEMPOTENCY_WINDOW must be positive")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
