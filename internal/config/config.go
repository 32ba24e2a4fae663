// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type GatewayConfig struct {
	Port          int           `yaml:"port"`
	SessionSecret string        `yaml:"session_secret"` // HMAC key for session tokens
	IssueKey      string        `yaml:"issue_key"`      // shared key the auth front-end presents to mint sessions
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SSEHeartbeat  time.Duration `yaml:"sse_heartbeat"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StudioConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	SpoolDir   string        `yaml:"spool_dir"`   // local spool for ephemeral audio
	BlobBucket string        `yaml:"blob_bucket"` // durable store bucket for narrations
	VoicesTTL  time.Duration `yaml:"voices_ttl"`  // in-process voice catalog cache
}

// SyncConfig carries the tracking engine's timing knobs. Defaults follow
// the shipped behavior; tests shrink them to milliseconds.
type SyncConfig struct {
	PushGrace          time.Duration `yaml:"push_grace"`
	StoryPollEvery     time.Duration `yaml:"story_poll_interval"`
	NarrationPollEvery time.Duration `yaml:"narration_poll_interval"`
	MaxPollAttempts    int           `yaml:"max_poll_attempts"`
	MaxActiveStories   int           `yaml:"max_active_stories"`
	DuplicateWindow    time.Duration `yaml:"duplicate_window"`
	RateLimit          int           `yaml:"rate_limit"`
	RateWindow         time.Duration `yaml:"rate_window"`
	RehydrateWindow    time.Duration `yaml:"rehydrate_window"`
	IdleNoticeDelay    time.Duration `yaml:"idle_notice_delay"`
	StatusTimeout      time.Duration `yaml:"status_timeout"` // per poll request
}

type HistoryConfig struct {
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	PageLimit int           `yaml:"page_limit"`
	Keep      int           `yaml:"keep"` // rows kept per user, negative disables trimming
	Retention time.Duration `yaml:"retention"`
}

type NotifyConfig struct {
	TelegramToken string `yaml:"telegram_token"`
	Enabled       bool   `yaml:"enabled"`
	Lang          string `yaml:"lang"` // locale for offline notices
}

type MaintenanceConfig struct {
	Cron        string        `yaml:"cron"`
	SessionIdle time.Duration `yaml:"session_idle"`
	SpoolMaxAge time.Duration `yaml:"spool_max_age"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Gateway     GatewayConfig     `yaml:"gateway"`
	Log         LogConfig         `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Studio      StudioConfig      `yaml:"studio"`
	Sync        SyncConfig        `yaml:"sync"`
	History     HistoryConfig     `yaml:"history"`
	Notify      NotifyConfig      `yaml:"notify"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Security    SecurityConfig    `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 8088
	}
	if cfg.Gateway.SessionTTL <= 0 {
		cfg.Gateway.SessionTTL = 12 * time.Hour
	}
	if cfg.Gateway.SSEHeartbeat <= 0 {
		cfg.Gateway.SSEHeartbeat = 25 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Studio.Timeout <= 0 {
		cfg.Studio.Timeout = 15 * time.Second
	}
	if cfg.Studio.SpoolDir == "" {
		cfg.Studio.SpoolDir = os.TempDir()
	}
	if cfg.Studio.BlobBucket == "" {
		cfg.Studio.BlobBucket = "narrations"
	}
	if cfg.Studio.VoicesTTL <= 0 {
		cfg.Studio.VoicesTTL = 10 * time.Minute
	}
	cfg.Sync = normalizeSync(cfg.Sync)
	if cfg.History.CacheTTL <= 0 {
		cfg.History.CacheTTL = 7 * 24 * time.Hour
	}
	if cfg.History.PageLimit <= 0 {
		cfg.History.PageLimit = 200
	}
	if cfg.History.Keep == 0 {
		cfg.History.Keep = 500
	}
	if cfg.History.Retention <= 0 {
		cfg.History.Retention = 90 * 24 * time.Hour
	}
	if cfg.Notify.Lang == "" {
		cfg.Notify.Lang = "en"
	}
	if cfg.Maintenance.Cron == "" {
		cfg.Maintenance.Cron = "*/10 * * * *"
	}
	if cfg.Maintenance.SessionIdle <= 0 {
		cfg.Maintenance.SessionIdle = 30 * time.Minute
	}
	if cfg.Maintenance.SpoolMaxAge <= 0 {
		cfg.Maintenance.SpoolMaxAge = 24 * time.Hour
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Studio.BaseURL == "" {
		return nil, errors.New("studio.base_url is required")
	}
	if cfg.Gateway.SessionSecret == "" {
		return nil, errors.New("gateway.session_secret is required")
	}
	if cfg.Notify.Enabled && cfg.Notify.TelegramToken == "" {
		return nil, errors.New("notify.telegram_token is required when notify.enabled")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeSync(s SyncConfig) SyncConfig {
	if s.PushGrace <= 0 {
		s.PushGrace = 2 * time.Second
	}
	if s.StoryPollEvery <= 0 {
		s.StoryPollEvery = 5 * time.Second
	}
	if s.NarrationPollEvery <= 0 {
		s.NarrationPollEvery = 3 * time.Second
	}
	if s.MaxPollAttempts <= 0 {
		s.MaxPollAttempts = 180
	}
	if s.MaxActiveStories <= 0 {
		s.MaxActiveStories = 5
	}
	if s.DuplicateWindow <= 0 {
		s.DuplicateWindow = 2 * time.Second
	}
	if s.RateLimit <= 0 {
		s.RateLimit = 30
	}
	if s.RateWindow <= 0 {
		s.RateWindow = time.Minute
	}
	if s.RehydrateWindow <= 0 {
		s.RehydrateWindow = 10 * time.Minute
	}
	if s.IdleNoticeDelay <= 0 {
		s.IdleNoticeDelay = 1500 * time.Millisecond
	}
	if s.StatusTimeout <= 0 {
		s.StatusTimeout = 10 * time.Second
	}
	return s
}
