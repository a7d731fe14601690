package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds bot transport settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int    `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	ChannelURL             string `yaml:"channel_url" envconfig:"CHANNEL_URL"`
	ExamplesURL            string `yaml:"examples_url" envconfig:"EXAMPLES_URL"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	File        string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

// Storage backends accepted by StorageConfig.Backend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

// StorageConfig selects and configures the state store backend.
type StorageConfig struct {
	Backend string `yaml:"backend" envconfig:"STORAGE_BACKEND"`
	// BadgerDir is the data directory for the badger backend.
	BadgerDir string         `yaml:"badger_dir" envconfig:"STORAGE_BADGER_DIR"`
	Postgres  PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds connection settings for the postgres backend.
type PostgresConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// RateLimitConfig bounds how many messages a user may send per window.
type RateLimitConfig struct {
	WindowSeconds int `yaml:"window_seconds" envconfig:"RATE_LIMIT_WINDOW_SECONDS"`
	MaxMessages   int `yaml:"max_messages" envconfig:"RATE_LIMIT_MAX_MESSAGES"`
}

// Window returns the configured window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// DialogConfig tunes dialog routing behaviour.
type DialogConfig struct {
	// AutoStartOnFirstMessage makes any free-text message from an idle user
	// open a dialog instead of requiring the explicit start action.
	AutoStartOnFirstMessage bool `yaml:"auto_start_on_first_message" envconfig:"DIALOG_AUTO_START"`
	MaxMessageLength        int  `yaml:"max_message_length" envconfig:"DIALOG_MAX_MESSAGE_LENGTH"`
}

// BroadcastConfig paces mass sends to stay under transport limits.
type BroadcastConfig struct {
	// PaceEvery inserts a pause after this many sends; 0 disables pacing.
	PaceEvery   int `yaml:"pace_every" envconfig:"BROADCAST_PACE_EVERY"`
	PaceDelayMS int `yaml:"pace_delay_ms" envconfig:"BROADCAST_PACE_DELAY_MS"`
}

// PaceDelay returns the pacing pause as a duration.
func (b BroadcastConfig) PaceDelay() time.Duration {
	return time.Duration(b.PaceDelayMS) * time.Millisecond
}

// ReferralConfig controls the referral reward loop.
type ReferralConfig struct {
	// Threshold is the number of unique referees that earns a promo code.
	Threshold int `yaml:"threshold" envconfig:"REFERRAL_THRESHOLD"`
}

// HealthConfig configures the ops HTTP server.
type HealthConfig struct {
	Listen string `yaml:"listen" envconfig:"HEALTH_LISTEN"`
}

// Config aggregates all bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Dialog    DialogConfig    `yaml:"dialog"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Referral  ReferralConfig  `yaml:"referral"`
	Health    HealthConfig    `yaml:"health"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Telegram.AdminID == 0 {
		return fmt.Errorf("telegram.admin_id is required")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	backend := strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if backend == "" {
		backend = BackendMemory
	}
	switch backend {
	case BackendMemory:
	case BackendBadger:
		if strings.TrimSpace(cfg.Storage.BadgerDir) == "" {
			return fmt.Errorf("storage.badger_dir is required when storage.backend is 'badger'")
		}
	case BackendPostgres:
		pg := cfg.Storage.Postgres
		if pg.Host == "" || pg.Name == "" || pg.User == "" {
			return fmt.Errorf("storage.postgres host, name and user are required when storage.backend is 'postgres'")
		}
		if cfg.Storage.Postgres.MaxConnections <= 0 {
			cfg.Storage.Postgres.MaxConnections = 4
		}
	default:
		return fmt.Errorf("invalid storage.backend %q; allowed: memory, postgres, badger", cfg.Storage.Backend)
	}
	cfg.Storage.Backend = backend

	if cfg.RateLimit.WindowSeconds <= 0 {
		cfg.RateLimit.WindowSeconds = 60
	}
	if cfg.RateLimit.MaxMessages <= 0 {
		cfg.RateLimit.MaxMessages = 10
	}
	if cfg.Dialog.MaxMessageLength <= 0 {
		cfg.Dialog.MaxMessageLength = 4000
	}
	if cfg.Broadcast.PaceEvery < 0 {
		return fmt.Errorf("broadcast.pace_every must be >= 0")
	}
	if cfg.Broadcast.PaceDelayMS < 0 {
		return fmt.Errorf("broadcast.pace_delay_ms must be >= 0")
	}
	if cfg.Referral.Threshold <= 0 {
		cfg.Referral.Threshold = 3
	}
	if strings.TrimSpace(cfg.Health.Listen) == "" {
		cfg.Health.Listen = ":8080"
	}
	return nil
}
