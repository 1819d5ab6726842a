package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"courier/internal/domain/notification"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Supabase  SupabaseConfig  `mapstructure:"supabase"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Email     EmailConfig     `mapstructure:"email"`
	SMS       SMSConfig       `mapstructure:"sms"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AuthConfig holds API key authentication settings.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// CORSConfig holds CORS policy settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// RateLimitConfig holds API rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SupabaseConfig holds Supabase project settings. The recipient directory
// is disabled when URL is empty.
type SupabaseConfig struct {
	URL        string `mapstructure:"url"`
	ServiceKey string `mapstructure:"service_key"`
}

// QueueConfig holds async queue settings.
type QueueConfig struct {
	Concurrency   int `mapstructure:"concurrency"`
	MaxRetry      int `mapstructure:"max_retry"`
	RetryDelaySec int `mapstructure:"retry_delay_sec"`
}

// DeliveryConfig holds the default delivery policy.
type DeliveryConfig struct {
	Strategy          string `mapstructure:"strategy"`
	MaxRetries        int    `mapstructure:"max_retries"`
	RetryDelayMS      int    `mapstructure:"retry_delay_ms"`
	SendTimeoutMS     int    `mapstructure:"send_timeout_ms"`
	MaxConcurrent     int    `mapstructure:"max_concurrent"`
	ProviderOrder     string `mapstructure:"provider_order"`
	IdempotencyTTLSec int    `mapstructure:"idempotency_ttl_sec"`
}

// EmailConfig holds email provider settings.
type EmailConfig struct {
	Provider             string `mapstructure:"provider"`
	APIKey               string `mapstructure:"api_key"`
	PostmarkServerToken  string `mapstructure:"postmark_server_token"`
	PostmarkAccountToken string `mapstructure:"postmark_account_token"`
	FromAddress          string `mapstructure:"from_address"`
	FromName             string `mapstructure:"from_name"`
	ReplyTo              string `mapstructure:"reply_to"`
}

// SMSConfig holds Twilio settings.
type SMSConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
	BaseURL    string `mapstructure:"base_url"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	BotToken   string `mapstructure:"bot_token"`
	APIURL     string `mapstructure:"api_url"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

// Load reads configuration from config.yaml and environment variables.
// Environment variables use the COURIER_ prefix and underscore separators.
// Example: COURIER_SERVER_PORT overrides server.port in config.yaml.
func Load() (*Config, error) {
	v := viper.New()

	// Config file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Load .env file if it exists
	_ = godotenv.Load()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("COURIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Handle comma-separated API keys from env var
	if apiKeysStr := v.GetString("auth.api_keys"); apiKeysStr != "" && len(cfg.Auth.APIKeys) == 0 {
		cfg.Auth.APIKeys = splitList(apiKeysStr)
	}

	if _, err := notification.ParseStrategy(cfg.Delivery.Strategy); err != nil {
		return nil, fmt.Errorf("delivery.strategy: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "info")
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("supabase.url", "")
	v.SetDefault("supabase.service_key", "")
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.max_retry", 5)
	v.SetDefault("queue.retry_delay_sec", 30)
	v.SetDefault("delivery.strategy", string(notification.DefaultStrategy))
	v.SetDefault("delivery.max_retries", notification.DefaultMaxRetries)
	v.SetDefault("delivery.retry_delay_ms", notification.DefaultRetryDelay.Milliseconds())
	v.SetDefault("delivery.send_timeout_ms", 30000)
	v.SetDefault("delivery.max_concurrent", notification.DefaultMaxConcurrent)
	v.SetDefault("delivery.provider_order", "email,telegram,sms")
	v.SetDefault("delivery.idempotency_ttl_sec", 86400) // 24 hours
	v.SetDefault("email.provider", "resend")
	v.SetDefault("email.api_key", "")
	v.SetDefault("email.postmark_server_token", "")
	v.SetDefault("email.postmark_account_token", "")
	v.SetDefault("email.from_address", "")
	v.SetDefault("email.from_name", "")
	v.SetDefault("email.reply_to", "")
	v.SetDefault("sms.account_sid", "")
	v.SetDefault("sms.auth_token", "")
	v.SetDefault("sms.from_number", "")
	v.SetDefault("sms.base_url", "")
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.api_url", "")
	v.SetDefault("telegram.timeout_sec", 10)
}

// DeliveryPolicy converts the delivery section into a normalized Policy.
func (c *Config) DeliveryPolicy() (notification.Policy, error) {
	strategy, err := notification.ParseStrategy(c.Delivery.Strategy)
	if err != nil {
		return notification.Policy{}, err
	}
	p := notification.Policy{
		Strategy:             strategy,
		MaxRetriesPerChannel: c.Delivery.MaxRetries,
		RetryDelay:           time.Duration(c.Delivery.RetryDelayMS) * time.Millisecond,
		SendTimeout:          time.Duration(c.Delivery.SendTimeoutMS) * time.Millisecond,
	}
	return p.Normalize()
}

// ProviderOrder returns the configured channel priority.
func (c *Config) ProviderOrder() []notification.Channel {
	names := splitList(c.Delivery.ProviderOrder)
	order := make([]notification.Channel, 0, len(names))
	for _, n := range names {
		order = append(order, notification.Channel(strings.ToLower(n)))
	}
	return order
}

// LogLevel parses log.level, falling back to info.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
