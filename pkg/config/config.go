package config

import (
	"time"

	appredis "github.com/Proton-105/storefront-bot/pkg/redis"
)

// Config holds runtime configuration for the storefront bot.
type Config struct {
	AppEnv    string          `mapstructure:"app_env"`
	Bot       BotConfig       `mapstructure:"bot" validate:"required"`
	Server    ServerConfig    `mapstructure:"server"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Redis     appredis.Config `mapstructure:"redis" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Catalog   CatalogConfig   `mapstructure:"catalog" validate:"required"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Payment   PaymentConfig   `mapstructure:"payment" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

type BotConfig struct {
	Token       string        `mapstructure:"token" validate:"required"`
	Mode        string        `mapstructure:"mode" validate:"omitempty,oneof=polling webhook"`
	Timeout     time.Duration `mapstructure:"timeout"`
	AdminIDs    []int64       `mapstructure:"admin_ids"`
	TypingDelay time.Duration `mapstructure:"typing_delay"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	WebhookListen   string        `mapstructure:"webhook_listen"`
	WebhookURL      string        `mapstructure:"webhook_url" validate:"omitempty,url"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type SentryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn" validate:"required_if=Enabled true"`
}

type DatabaseConfig struct {
	DSN           string `mapstructure:"dsn"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

type CatalogConfig struct {
	Path  string `mapstructure:"path" validate:"required"`
	Watch bool   `mapstructure:"watch"`
}

// WorkflowConfig tunes the ordering conversation and its timers.
type WorkflowConfig struct {
	PromoEnabled     bool          `mapstructure:"promo_enabled"`
	ConfirmCooldown  time.Duration `mapstructure:"confirm_cooldown"`
	PaymentTimeout   time.Duration `mapstructure:"payment_timeout"`
	AutoDelete       bool          `mapstructure:"auto_delete"`
	AutoDeleteDelay  time.Duration `mapstructure:"auto_delete_delay"`
	AutoBan          bool          `mapstructure:"auto_ban"`
	DeliveryWatchdog time.Duration `mapstructure:"delivery_watchdog"`
	SessionTTL       time.Duration `mapstructure:"session_ttl"`
	CleanerInterval  time.Duration `mapstructure:"cleaner_interval"`
}

type PaymentConfig struct {
	OracleURL      string        `mapstructure:"oracle_url" validate:"required,url"`
	VerifierURL    string        `mapstructure:"verifier_url" validate:"required,url"`
	FiatCurrency   string        `mapstructure:"fiat_currency"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"gte=0,lte=10"`
	RateCacheTTL   time.Duration `mapstructure:"rate_cache_ttl"`
}

// JobsConfig controls the background queue that persists orders and refreshes rates.
type JobsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Concurrency int    `mapstructure:"concurrency" validate:"gte=0,lte=64"`
	RefreshSpec string `mapstructure:"refresh_spec"`
}

type RateLimitConfig struct {
	Whitelist []int64       `mapstructure:"whitelist"`
	PerUser   RateLimitRule `mapstructure:"per_user"`
}

type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

// IsAdmin reports whether userID is configured as an administrator.
func (c BotConfig) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ApplyDefaults fills unset durations and limits with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Bot.Mode == "" {
		c.Bot.Mode = "polling"
	}
	if c.Bot.Timeout <= 0 {
		c.Bot.Timeout = 10 * time.Second
	}
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Server.WebhookListen == "" {
		c.Server.WebhookListen = ":8443"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}
	if c.Database.MigrationsDir == "" {
		c.Database.MigrationsDir = "migrations"
	}

	w := &c.Workflow
	if w.ConfirmCooldown <= 0 {
		w.ConfirmCooldown = 3 * time.Second
	}
	if w.PaymentTimeout <= 0 {
		w.PaymentTimeout = 30 * time.Minute
	}
	if w.AutoDeleteDelay <= 0 {
		w.AutoDeleteDelay = time.Minute
	}
	if w.DeliveryWatchdog <= 0 {
		w.DeliveryWatchdog = 27 * time.Minute
	}
	if w.SessionTTL <= 0 {
		w.SessionTTL = 2 * time.Hour
	}
	if w.CleanerInterval <= 0 {
		w.CleanerInterval = 5 * time.Minute
	}

	if c.Jobs.Concurrency <= 0 {
		c.Jobs.Concurrency = 4
	}
	if c.Jobs.RefreshSpec == "" {
		c.Jobs.RefreshSpec = "@every 1m"
	}

	p := &c.Payment
	if p.FiatCurrency == "" {
		p.FiatCurrency = "usd"
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = 5 * time.Second
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.RateCacheTTL <= 0 {
		p.RateCacheTTL = time.Minute
	}
}
