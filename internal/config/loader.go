package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/veridia/tokencore/pkg/constants"
)

// Load reads configuration from file and environment. File lookup order is
// /etc/tokencore/config.yaml, then ./config.yaml; every key can be overridden
// with a TOKENCORE_-prefixed environment variable (dots become underscores).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/tokencore/")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.SetEnvPrefix("TOKENCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.enable_pprof", false)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", 3600)
	v.SetDefault("database.conn_timeout", 5)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5)
	v.SetDefault("redis.read_timeout", 250)
	v.SetDefault("redis.write_timeout", 250)

	v.SetDefault("keys.backend", "file")
	v.SetDefault("keys.dir", "/var/lib/tokencore/keys")
	v.SetDefault("keys.watch_dir", false)
	v.SetDefault("keys.rotation_interval", constants.DefaultRotationInterval)
	v.SetDefault("keys.grace_period", constants.DefaultGracePeriod)
	v.SetDefault("keys.vault.mount_path", "secret")
	v.SetDefault("keys.vault.key_path", "tokencore/keys")

	v.SetDefault("token.access_ttl", constants.AccessTokenDefaultTTL)
	v.SetDefault("token.refresh_ttl", constants.RefreshTokenDefaultTTL)
	// Leeway loosens the expiry boundary; deployments with skewed clocks can
	// opt in, but the default keeps exp exact.
	v.SetDefault("token.clock_skew_leeway", time.Duration(0))

	v.SetDefault("revocation.fail_open", false)
	v.SetDefault("revocation.lookup_timeout", 500*time.Millisecond)
	v.SetDefault("revocation.cleanup_interval", time.Hour)

	v.SetDefault("kafka.revocation_topic", "tokencore.revocations")
	v.SetDefault("kafka.consumer_group", "tokencore-revocation-consumers")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "tokencore")
}
