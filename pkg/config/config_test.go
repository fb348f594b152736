package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/observability"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WARDEN_DB_DSN", "postgres://localhost/warden")
	t.Setenv("WARDEN_IDP_ISSUER_URL", "https://idp.example.com")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "filesystem", cfg.Storage.Type)
	assert.Equal(t, "@every 15m", cfg.Reconcile.Schedule)
	assert.Equal(t, 3*time.Second, cfg.Identity.GraceWindow)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.ParsedLogLevel())
}

func TestLoadRequiresDSN(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN")
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("WARDEN_DB_DSN", "file:test.db")
	t.Setenv("WARDEN_DB_DRIVER", "sqlite3")
	t.Setenv("WARDEN_IDP_ISSUER_URL", "https://idp.example.com")
	t.Setenv("WARDEN_PORT", "9999")
	t.Setenv("WARDEN_IDP_GRACE_WINDOW", "10s")
	t.Setenv("WARDEN_OTEL_ENABLED", "true")
	t.Setenv("WARDEN_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Identity.GraceWindow)
	assert.True(t, cfg.Observability.OTelEnabled)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.ParsedLogLevel())
}

func TestFileLayerAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "7777"
  hook_secret: file-secret
database:
  driver: sqlite3
  dsn: file:from-file.db
redis:
  enabled: true
  addr: redis.internal:6379
`), 0o600))

	// Env beats the file, the file beats the defaults.
	t.Setenv("WARDEN_PORT", "8888")
	t.Setenv("WARDEN_IDP_ISSUER_URL", "https://idp.example.com")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8888", cfg.Server.Port)
	assert.Equal(t, "file-secret", cfg.Server.HookSecret)
	assert.Equal(t, "file:from-file.db", cfg.Database.DSN)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
}

func TestConfigFileEnvVar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  dsn: file:pointed.db
  driver: sqlite3
identity:
  issuer_url: https://idp.example.com
`), 0o600))
	t.Setenv("WARDEN_CONFIG_FILE", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "file:pointed.db", cfg.Database.DSN)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "oracle" },
			message: "database driver",
		},
		{
			name:    "unknown storage type",
			mutate:  func(c *Config) { c.Storage.Type = "ftp" },
			message: "storage type",
		},
		{
			name: "s3 without bucket",
			mutate: func(c *Config) {
				c.Storage.Type = "s3"
				c.Storage.S3Bucket = ""
			},
			message: "bucket",
		},
		{
			name: "otel without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = ""
			},
			message: "endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			cfg.Database.DSN = "postgres://localhost/warden"
			cfg.Identity.IssuerURL = "https://idp.example.com"
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestBrokenFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a mapping"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
