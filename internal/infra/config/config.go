package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Store     StoreSettings     `mapstructure:"store"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	Scopes    ScopeSettings     `mapstructure:"scopes"`
	Security  SecuritySettings  `mapstructure:"security"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StoreSettings selects the attempt store backend and sweep cadence.
type StoreSettings struct {
	Backend       string        `mapstructure:"backend"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// RedisSettings configures the optional shared attempt store.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the lockout event producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

type TelemetrySettings struct {
	Namespace string `mapstructure:"namespace"`
}

// ScopeSettings is the fixed per-scope limit table, set at deployment.
type ScopeSettings map[string]ScopeProfile

// ScopeProfile holds one scope's limit knobs.
type ScopeProfile struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	Window        time.Duration `mapstructure:"window"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
}

// SecuritySettings configures service-token verification for admin routes.
type SecuritySettings struct {
	ServiceTokenSecret string `mapstructure:"service_token_secret"`
	ServiceTokenIssuer string `mapstructure:"service_token_issuer"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("THROTTLE")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.allowed_origins",
		"store.backend",
		"store.sweep_interval",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.key_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"telemetry.namespace",
		"scopes.default.max_attempts",
		"scopes.default.window",
		"scopes.default.block_duration",
		"scopes.api.max_attempts",
		"scopes.api.window",
		"scopes.api.block_duration",
		"scopes.auth.max_attempts",
		"scopes.auth.window",
		"scopes.auth.block_duration",
		"security.service_token_secret",
		"security.service_token_issuer",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "throttle-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{})

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.sweep_interval", "1m")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "throttle")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "throttle")
	v.SetDefault("kafka.async", true)

	v.SetDefault("telemetry.namespace", "throttle")

	// Scope table, fixed at deployment.
	v.SetDefault("scopes.default.max_attempts", 100)
	v.SetDefault("scopes.default.window", "1m")
	v.SetDefault("scopes.default.block_duration", "1m")

	v.SetDefault("scopes.api.max_attempts", 60)
	v.SetDefault("scopes.api.window", "1m")
	v.SetDefault("scopes.api.block_duration", "5m")

	v.SetDefault("scopes.auth.max_attempts", 5)
	v.SetDefault("scopes.auth.window", "1m")
	v.SetDefault("scopes.auth.block_duration", "15m")

	v.SetDefault("security.service_token_secret", "")
	v.SetDefault("security.service_token_issuer", "siteproof-platform")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "THROTTLE_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
