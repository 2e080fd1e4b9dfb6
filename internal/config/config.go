package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Audit    AuditConfig    `mapstructure:"audit"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type AuthConfig struct {
	RequireAPIKey bool   `mapstructure:"require_api_key"`
	AdminKey      string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	DSN                string `mapstructure:"dsn"`
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
}

type RedisConfig struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
}

// VaultConfig keys the credential vault. The salt is fixed per deployment;
// changing it makes every stored ciphertext undecryptable.
type VaultConfig struct {
	MasterSecret string `mapstructure:"master_secret"`
	Salt         string `mapstructure:"salt"`
}

type BridgeConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type AgentConfig struct {
	APIKey        string `mapstructure:"api_key"`
	BaseURL       string `mapstructure:"base_url"`
	Model         string `mapstructure:"model"`
	MaxTokens     int    `mapstructure:"max_tokens"`
	MaxToolRounds int    `mapstructure:"max_tool_rounds"`
}

// RiskConfig holds the platform-wide defaults applied when a client has no
// per-client override in its settings.
type RiskConfig struct {
	MaxSpread        float64 `mapstructure:"max_spread"`
	MaxDailyVolume   float64 `mapstructure:"max_daily_volume"`
	ConfirmThreshold float64 `mapstructure:"confirm_threshold"`
	OrderSize        float64 `mapstructure:"order_size"` // base amount for spread refresh orders
	QPS              float64 `mapstructure:"qps"`
	Burst            int     `mapstructure:"burst"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type AuditConfig struct {
	LogDir     string `mapstructure:"log_dir"`
	BufferSize int    `mapstructure:"buffer_size"`
}

func (b BridgeConfig) Timeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. TRADEGATE_BRIDGE_BASE_URL
	viper.SetEnvPrefix("tradegate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("auth.require_api_key", true)
	viper.SetDefault("auth.admin_key", "")
	viper.SetDefault("database.audit_retention_days", 30)
	viper.SetDefault("redis.idempotency_ttl_seconds", 86400)
	viper.SetDefault("vault.salt", "tradegate_vault_salt_v1")
	viper.SetDefault("bridge.base_url", "http://localhost:8000")
	viper.SetDefault("bridge.timeout_seconds", 30)
	viper.SetDefault("agent.base_url", "https://api.anthropic.com")
	viper.SetDefault("agent.model", "claude-sonnet-4-20250514")
	viper.SetDefault("agent.max_tokens", 4096)
	viper.SetDefault("agent.max_tool_rounds", 8)
	viper.SetDefault("risk.max_spread", 0.5)
	viper.SetDefault("risk.max_daily_volume", 50000)
	viper.SetDefault("risk.confirm_threshold", 100)
	viper.SetDefault("risk.order_size", 1600)
	viper.SetDefault("risk.qps", 10)
	viper.SetDefault("risk.burst", 20)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("audit.log_dir", "./logs")
	viper.SetDefault("audit.buffer_size", 1000)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
