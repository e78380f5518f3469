// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Solana    SolanaConfig    `mapstructure:"solana"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Referral  ReferralConfig  `mapstructure:"referral"`
	Payout    PayoutConfig    `mapstructure:"payout"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	AdminAPIKey     string        `mapstructure:"admin_api_key"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// SolanaConfig holds Solana RPC and BONK token configuration.
// The payer secret must be in base58 format.
type SolanaConfig struct {
	RPCURL      string        `mapstructure:"rpc_url"`
	PayerSecret string        `mapstructure:"payer_secret"`
	BonkMint    string        `mapstructure:"bonk_mint"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// PolicyConfig holds the release policy seeded on first startup. Subsequent
// changes go through the admin endpoint, not the config file.
type PolicyConfig struct {
	ImmediateReleasePercent  int `mapstructure:"immediate_release_percent"`
	DeferredReleaseDelayDays int `mapstructure:"deferred_release_delay_days"`
}

// ReferralConfig holds referral reward configuration.
type ReferralConfig struct {
	ReferrerReward    int64 `mapstructure:"referrer_reward"`
	ReferredReward    int64 `mapstructure:"referred_reward"`
	RequiredThreshold int64 `mapstructure:"required_threshold"`
}

// PayoutConfig holds payout eligibility configuration.
type PayoutConfig struct {
	MinAmount              int64 `mapstructure:"min_amount"`
	RequiredNormalCashback int64 `mapstructure:"required_normal_cashback"`
}

// RateLimitConfig holds per-user rate limits for sensitive operations.
type RateLimitConfig struct {
	PayoutMax    int           `mapstructure:"payout_max"`
	PayoutWindow time.Duration `mapstructure:"payout_window"`
	ClaimMax     int           `mapstructure:"claim_max"`
	ClaimWindow  time.Duration `mapstructure:"claim_window"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the given directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. SERVER_PORT, DATABASE_HOST, SOLANA_RPC_URL.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "bonkback")
	v.SetDefault("database.name", "bonkback")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.bonk_mint", "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263")
	v.SetDefault("solana.send_timeout", "30s")

	v.SetDefault("policy.immediate_release_percent", 20)
	v.SetDefault("policy.deferred_release_delay_days", 30)

	v.SetDefault("referral.referrer_reward", 333333)
	v.SetDefault("referral.referred_reward", 333333)
	v.SetDefault("referral.required_threshold", 100000)

	v.SetDefault("payout.min_amount", 1)
	v.SetDefault("payout.required_normal_cashback", 50000)

	v.SetDefault("rate_limit.payout_max", 3)
	v.SetDefault("rate_limit.payout_window", "1h")
	v.SetDefault("rate_limit.claim_max", 10)
	v.SetDefault("rate_limit.claim_window", "1h")
}
