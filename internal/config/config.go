// Package config holds the application configuration and its loader.
package config

import (
	"fmt"
	"time"

	"github.com/veridia/tokencore/pkg/constants"
)

// Config holds the full application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Keys       KeysConfig       `mapstructure:"keys"`
	Token      TokenConfig      `mapstructure:"token"`
	Revocation RevocationConfig `mapstructure:"revocation"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Log        LogConfig        `mapstructure:"log"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// ServerConfig configures the administrative HTTP surface.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // seconds
	EnablePprof  bool   `mapstructure:"enable_pprof"`
}

// DatabaseConfig configures the PostgreSQL connection pool.
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxConns        int    `mapstructure:"max_conns"`
	MinConns        int    `mapstructure:"min_conns"`
	MaxConnLifetime int    `mapstructure:"max_conn_lifetime"` // seconds
	ConnTimeout     int    `mapstructure:"conn_timeout"`      // seconds
}

// DSN builds the pgx connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig configures the revocation cache connection.
type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	DialTimeout  int    `mapstructure:"dial_timeout"`  // seconds
	ReadTimeout  int    `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int    `mapstructure:"write_timeout"` // milliseconds
}

// KeysConfig configures the signing key lifecycle.
type KeysConfig struct {
	// Backend selects the key store: "file" or "vault".
	Backend string `mapstructure:"backend"`

	// Dir is the key directory for the file backend.
	Dir string `mapstructure:"dir"`

	// WatchDir reloads keys when a sibling replica rotates into the same
	// directory (file backend only).
	WatchDir bool `mapstructure:"watch_dir"`

	// Vault configures the Vault backend.
	Vault VaultConfig `mapstructure:"vault"`

	// RotationInterval is the current key's maximum age before rotation is due.
	RotationInterval time.Duration `mapstructure:"rotation_interval"`

	// GracePeriod is how long a superseded key keeps verifying after rotation.
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// VaultConfig configures the Vault KV v2 key store backend.
type VaultConfig struct {
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"`
	KeyPath   string `mapstructure:"key_path"`
}

// TokenConfig configures issuance and verification.
type TokenConfig struct {
	Issuer          string        `mapstructure:"issuer"`
	Audience        string        `mapstructure:"audience"`
	AccessTTL       time.Duration `mapstructure:"access_ttl"`
	RefreshTTL      time.Duration `mapstructure:"refresh_ttl"`
	ClockSkewLeeway time.Duration `mapstructure:"clock_skew_leeway"`
}

// RevocationConfig configures the hybrid revocation ledger.
type RevocationConfig struct {
	// FailOpen treats a revocation-store failure during verification as
	// "not revoked". The default is fail-closed; flipping this prioritizes
	// availability over strict revocation visibility and must be a
	// deliberate choice.
	FailOpen bool `mapstructure:"fail_open"`

	// LookupTimeout bounds each cache or store lookup.
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`

	// CleanupInterval drives the periodic purge of expired entries.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// KafkaConfig configures cross-replica revocation event propagation.
// Leaving Brokers empty disables Kafka entirely.
type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	RevocationTopic string   `mapstructure:"revocation_topic"`
	ConsumerGroup   string   `mapstructure:"consumer_group"`
}

// Enabled reports whether event propagation is configured.
func (c *KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig configures the OpenTelemetry tracer.
type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
}

// Validate checks essential configuration values.
func (c *Config) Validate() error {
	if c.Token.Issuer == "" {
		return fmt.Errorf("token.issuer must be set")
	}
	if c.Token.Audience == "" {
		return fmt.Errorf("token.audience must be set")
	}
	if c.Token.AccessTTL <= 0 || c.Token.AccessTTL > constants.AccessTokenMaxTTL {
		return fmt.Errorf("token.access_ttl must be in (0, %s]", constants.AccessTokenMaxTTL)
	}
	if c.Token.RefreshTTL <= 0 || c.Token.RefreshTTL > constants.RefreshTokenMaxTTL {
		return fmt.Errorf("token.refresh_ttl must be in (0, %s]", constants.RefreshTokenMaxTTL)
	}
	if c.Keys.RotationInterval <= 0 {
		return fmt.Errorf("keys.rotation_interval must be positive")
	}
	if c.Keys.GracePeriod <= 0 {
		return fmt.Errorf("keys.grace_period must be positive")
	}
	switch c.Keys.Backend {
	case "file":
		if c.Keys.Dir == "" {
			return fmt.Errorf("keys.dir must be set for the file backend")
		}
	case "vault":
		if c.Keys.Vault.Address == "" {
			return fmt.Errorf("keys.vault.address must be set for the vault backend")
		}
	default:
		return fmt.Errorf("keys.backend must be \"file\" or \"vault\", got %q", c.Keys.Backend)
	}
	return nil
}
