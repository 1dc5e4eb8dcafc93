package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// MinEncryptionKeyLength is the shortest accepted ENCRYPTION_KEY, in bytes.
const MinEncryptionKeyLength = 32

type Config struct {
	AppName                       string        `env:"APP_NAME" env-default:"fern-api"`
	Version                       string        `env:"APP_VERSION" env-default:"dev"`
	Port                          int           `env:"PORT" env-default:"3000"`
	LogLevel                      string        `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool          `env:"LOG_PRETTY" env-default:"false"`
	HttpServerWriteTimeoutSeconds int           `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"120"`
	HttpServerReadTimeoutSeconds  int           `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"60"`
	HttpServerIdleTimeoutSeconds  int           `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int           `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	AllowOrigins                  []string      `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string      `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	ShutdownTimeout               time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
	StartupMaxAttempts            int           `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:""`
	// Database port
	DatabasePort int `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"fern"`
	// Database SSL mode
	DatabaseSSLMode string `env:"DB_SSLMODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"MIGRATIONS_PATH" env-default:"db/pg"`
	// Database Migration Version, 0 migrates to latest
	DatabaseMigrationVersion int `env:"MIGRATIONS_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"MIGRATIONS_FORCE" env-default:"0"`
	// Database Migration Auto Rollback
	DatabaseMigrationAutoRollback bool `env:"MIGRATIONS_AUTO_ROLLBACK" env-default:"true"`

	// Auth Enabled - when false, requests are not authenticated
	AuthEnabled bool `env:"AUTH_ENABLED" env-default:"false"`
	// Auth Issuer URL
	AuthIssuerURL string `env:"OIDC_ISSUER" env-default:""`
	// Auth Client ID
	AuthClientID string `env:"OIDC_CLIENT_ID" env-default:""`

	// Redis backs shared rate limits and sync locks
	RedisEnabled  bool   `env:"REDIS_ENABLED" env-default:"false"`
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka receives sync and upload events
	KafkaEnabled bool `env:"KAFKA_ENABLED" env-default:"false"`
	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaTopic   string `env:"KAFKA_TOPIC" env-default:"fern-ingestion-events"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`

	// Key material for connector credential encryption
	EncryptionKey string `env:"ENCRYPTION_KEY" env-default:""`

	// Connector audit log retention
	ConnectorLogRetentionDays     int           `env:"CONNECTOR_LOG_RETENTION_DAYS" env-default:"90"`
	ConnectorLogRetentionInterval time.Duration `env:"CONNECTOR_LOG_RETENTION_INTERVAL" env-default:"1h"`

	// Largest accepted upload body
	UploadMaxBytes int64 `env:"UPLOAD_MAX_BYTES" env-default:"20971520"`
	// Default timeout of outbound connector requests
	HTTPClientTimeout time.Duration `env:"HTTP_CLIENT_TIMEOUT" env-default:"30s"`
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.EncryptionKey) < MinEncryptionKeyLength {
		errs = append(errs, fmt.Errorf("ENCRYPTION_KEY must be at least %d bytes", MinEncryptionKeyLength))
	}
	if c.DatabaseHost == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.AuthEnabled && (c.AuthIssuerURL == "" || c.AuthClientID == "") {
		errs = append(errs, errors.New("OIDC_ISSUER and OIDC_CLIENT_ID are required when AUTH_ENABLED is true"))
	}
	if c.OTLPEnabled && c.OTLPProtocol != "grpc" && c.OTLPProtocol != "http" {
		errs = append(errs, fmt.Errorf("OTLP_PROTOCOL must be grpc or http, got %q", c.OTLPProtocol))
	}
	if c.UploadMaxBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_BYTES must be positive"))
	}
	return errors.Join(errs...)
}

// ConnectorLogRetention is the age after which connector logs are deleted.
func (c *Config) ConnectorLogRetention() time.Duration {
	return time.Duration(c.ConnectorLogRetentionDays) * 24 * time.Hour
}
