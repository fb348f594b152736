package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Identity      IdentityConfig      `yaml:"identity"`
	Email         EmailConfig         `yaml:"email"`
	Redis         RedisConfig         `yaml:"redis"`
	Storage       StorageConfig       `yaml:"storage"`
	Reconcile     ReconcileConfig     `yaml:"reconcile"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// HookSecret authenticates identity-provider hook calls.
	HookSecret string `yaml:"hook_secret"`
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite3".
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// IdentityConfig holds the external identity provider settings.
type IdentityConfig struct {
	// IssuerURL is the OIDC issuer used for token verification.
	IssuerURL string `yaml:"issuer_url"`
	// Audience is the expected token audience (client id of this API).
	Audience string `yaml:"audience"`

	// Admin API access (client-credentials).
	BaseURL      string        `yaml:"base_url"`
	TokenURL     string        `yaml:"token_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Timeout      time.Duration `yaml:"timeout"`

	// GraceWindow keeps a just-rotated token usable for this long.
	GraceWindow time.Duration `yaml:"grace_window"`
}

// EmailConfig holds the outbound email settings.
type EmailConfig struct {
	EndpointURL string        `yaml:"endpoint_url"`
	APIKey      string        `yaml:"api_key"`
	FromAddress string        `yaml:"from_address"`
	TemplateDir string        `yaml:"template_dir"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RedisConfig holds the advisory cache settings.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig holds the avatar blob store settings.
type StorageConfig struct {
	// Type is "filesystem" or "s3".
	Type           string `yaml:"type"`
	FilesystemRoot string `yaml:"filesystem_root"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3Region       string `yaml:"s3_region"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
}

// ReconcileConfig holds the blocked-session sweep settings.
type ReconcileConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// defaults returns the built-in configuration.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Identity: IdentityConfig{
			Timeout:     10 * time.Second,
			GraceWindow: 3 * time.Second,
		},
		Email: EmailConfig{
			Timeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Storage: StorageConfig{
			Type:           "filesystem",
			FilesystemRoot: "./data/avatars",
			S3Region:       "us-east-1",
		},
		Reconcile: ReconcileConfig{
			Schedule: "@every 15m",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "warden",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// Load builds the configuration. path points at an optional YAML file; when
// empty, WARDEN_CONFIG_FILE is consulted. Environment variables override
// both the file and the defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		path = os.Getenv("WARDEN_CONFIG_FILE")
	}
	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	// Server
	setString(&cfg.Server.Host, "WARDEN_HOST")
	setString(&cfg.Server.Port, "WARDEN_PORT")
	setDuration(&cfg.Server.ReadTimeout, "WARDEN_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "WARDEN_WRITE_TIMEOUT")
	setDuration(&cfg.Server.IdleTimeout, "WARDEN_IDLE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "WARDEN_SHUTDOWN_TIMEOUT")
	setString(&cfg.Server.HookSecret, "WARDEN_HOOK_SECRET")

	// Database
	setString(&cfg.Database.Driver, "WARDEN_DB_DRIVER")
	setString(&cfg.Database.DSN, "WARDEN_DB_DSN")
	setInt(&cfg.Database.MaxOpenConns, "WARDEN_DB_MAX_OPEN_CONNS")
	setInt(&cfg.Database.MaxIdleConns, "WARDEN_DB_MAX_IDLE_CONNS")
	setDuration(&cfg.Database.ConnMaxLifetime, "WARDEN_DB_CONN_MAX_LIFETIME")

	// Identity provider
	setString(&cfg.Identity.IssuerURL, "WARDEN_IDP_ISSUER_URL")
	setString(&cfg.Identity.Audience, "WARDEN_IDP_AUDIENCE")
	setString(&cfg.Identity.BaseURL, "WARDEN_IDP_BASE_URL")
	setString(&cfg.Identity.TokenURL, "WARDEN_IDP_TOKEN_URL")
	setString(&cfg.Identity.ClientID, "WARDEN_IDP_CLIENT_ID")
	setString(&cfg.Identity.ClientSecret, "WARDEN_IDP_CLIENT_SECRET")
	setDuration(&cfg.Identity.Timeout, "WARDEN_IDP_TIMEOUT")
	setDuration(&cfg.Identity.GraceWindow, "WARDEN_IDP_GRACE_WINDOW")

	// Email
	setString(&cfg.Email.EndpointURL, "WARDEN_EMAIL_ENDPOINT_URL")
	setString(&cfg.Email.APIKey, "WARDEN_EMAIL_API_KEY")
	setString(&cfg.Email.FromAddress, "WARDEN_EMAIL_FROM")
	setString(&cfg.Email.TemplateDir, "WARDEN_EMAIL_TEMPLATE_DIR")
	setDuration(&cfg.Email.Timeout, "WARDEN_EMAIL_TIMEOUT")

	// Redis
	setBool(&cfg.Redis.Enabled, "WARDEN_REDIS_ENABLED")
	setString(&cfg.Redis.Addr, "WARDEN_REDIS_ADDR")
	setString(&cfg.Redis.Password, "WARDEN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WARDEN_REDIS_DB")

	// Storage
	setString(&cfg.Storage.Type, "WARDEN_STORAGE_TYPE")
	setString(&cfg.Storage.FilesystemRoot, "WARDEN_FILESYSTEM_ROOT")
	setString(&cfg.Storage.S3Endpoint, "WARDEN_S3_ENDPOINT")
	setString(&cfg.Storage.S3Region, "WARDEN_S3_REGION")
	setString(&cfg.Storage.S3Bucket, "WARDEN_S3_BUCKET")
	setString(&cfg.Storage.S3AccessKey, "WARDEN_S3_ACCESS_KEY")
	setString(&cfg.Storage.S3SecretKey, "WARDEN_S3_SECRET_KEY")
	setBool(&cfg.Storage.S3UsePathStyle, "WARDEN_S3_USE_PATH_STYLE")

	// Reconcile
	setBool(&cfg.Reconcile.Enabled, "WARDEN_RECONCILE_ENABLED")
	setString(&cfg.Reconcile.Schedule, "WARDEN_RECONCILE_SCHEDULE")

	// Observability
	setString(&cfg.Observability.LogLevel, "WARDEN_LOG_LEVEL")
	setBool(&cfg.Observability.MetricsEnabled, "WARDEN_METRICS_ENABLED")
	setBool(&cfg.Observability.OTelEnabled, "WARDEN_OTEL_ENABLED")
	setString(&cfg.Observability.OTelEndpoint, "WARDEN_OTEL_ENDPOINT")
	setString(&cfg.Observability.OTelServiceName, "WARDEN_OTEL_SERVICE_NAME")
	setString(&cfg.Observability.OTelServiceVersion, "WARDEN_OTEL_SERVICE_VERSION")
	setBool(&cfg.Observability.OTelInsecure, "WARDEN_OTEL_INSECURE")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	if c.Identity.IssuerURL == "" {
		return fmt.Errorf("identity issuer URL is required")
	}

	switch c.Storage.Type {
	case "filesystem":
		if c.Storage.FilesystemRoot == "" {
			return fmt.Errorf("filesystem root is required for filesystem storage")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be filesystem or s3)", c.Storage.Type)
	}

	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
	}
	return nil
}

// ParsedLogLevel converts the configured level string.
func (c *ObservabilityConfig) ParsedLogLevel() observability.LogLevel {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// BlobConfig converts the storage section for the blob store factory.
func (c *StorageConfig) BlobConfig() storage.Config {
	return storage.Config{
		Type:           c.Type,
		FilesystemRoot: c.FilesystemRoot,
		S3Endpoint:     c.S3Endpoint,
		S3Region:       c.S3Region,
		S3Bucket:       c.S3Bucket,
		S3AccessKey:    c.S3AccessKey,
		S3SecretKey:    c.S3SecretKey,
		S3UsePathStyle: c.S3UsePathStyle,
	}
}

func setString(dest *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}

func setBool(dest *bool, key string) {
	if value := os.Getenv(key); value != "" {
		*dest = strings.ToLower(value) == "true" || value == "1"
	}
}

func setInt(dest *int, key string) {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			*dest = intVal
		}
	}
}

func setDuration(dest *time.Duration, key string) {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			*dest = duration
		}
	}
}
