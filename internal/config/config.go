package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the whole bot configuration. JSON and YAML files are accepted;
// YAML is coerced to JSON so one strict decoder covers both.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Timezone string         `json:"timezone"`
	Storage  StorageConfig  `json:"storage"`
	Media    MediaConfig    `json:"media"`
	Delivery DeliveryConfig `json:"delivery"`
	Logging  LoggingConfig  `json:"logging"`
}

type TelegramConfig struct {
	Token        string `json:"token"`
	ChannelID    int64  `json:"channel_id"`
	InitialAdmin int64  `json:"initial_admin"`
	PollTimeout  string `json:"poll_timeout"`
	LogChatID    int64  `json:"log_chat_id"`
}

type StorageConfig struct {
	DataFile string        `json:"data_file"`
	History  HistoryConfig `json:"history"`
}

type HistoryConfig struct {
	Driver    string `json:"driver"` // "none", "file" or "sqlite"
	Path      string `json:"path"`
	KeepDays  int    `json:"keep_days"`
	PruneSpec string `json:"prune_spec"` // cron spec for the prune job
}

type MediaConfig struct {
	Debounce   string `json:"debounce"`
	SweepEvery string `json:"sweep_every"`
	StaleAfter string `json:"stale_after"`
}

type DeliveryConfig struct {
	RetryMax       int    `json:"retry_max"`
	RetryBase      string `json:"retry_base"`
	AttemptTimeout string `json:"attempt_timeout"`
	ItemsPerSec    int    `json:"items_per_sec"`
}

type LoggingConfig struct {
	Level       string     `json:"level"`
	Console     bool       `json:"console"`
	File        FileConfig `json:"file"`
	TelegramMin string     `json:"telegram_min_level"`
	TelegramRPS int        `json:"telegram_rate_per_sec"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = "Europe/Moscow"
	}
	if strings.TrimSpace(c.Telegram.PollTimeout) == "" {
		c.Telegram.PollTimeout = "30s"
	}
	if strings.TrimSpace(c.Storage.DataFile) == "" {
		c.Storage.DataFile = "bot_data.json"
	}
	if strings.TrimSpace(c.Storage.History.Driver) == "" {
		c.Storage.History.Driver = "none"
	}
	if c.Storage.History.KeepDays <= 0 {
		c.Storage.History.KeepDays = 90
	}
	if strings.TrimSpace(c.Storage.History.PruneSpec) == "" {
		c.Storage.History.PruneSpec = "0 4 * * *"
	}
	if strings.TrimSpace(c.Media.Debounce) == "" {
		c.Media.Debounce = "2s"
	}
	if strings.TrimSpace(c.Media.SweepEvery) == "" {
		c.Media.SweepEvery = "10m"
	}
	if strings.TrimSpace(c.Media.StaleAfter) == "" {
		c.Media.StaleAfter = "5m"
	}
	if c.Delivery.RetryMax <= 0 {
		c.Delivery.RetryMax = 3
	}
	if strings.TrimSpace(c.Delivery.RetryBase) == "" {
		c.Delivery.RetryBase = "5s"
	}
	if strings.TrimSpace(c.Delivery.AttemptTimeout) == "" {
		c.Delivery.AttemptTimeout = "30s"
	}
	if c.Delivery.ItemsPerSec <= 0 {
		c.Delivery.ItemsPerSec = 1
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.TelegramRPS <= 0 {
		c.Logging.TelegramRPS = 1
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if c.Telegram.ChannelID == 0 {
		return errors.New("telegram.channel_id is required")
	}
	if c.Telegram.InitialAdmin == 0 {
		return errors.New("telegram.initial_admin is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.History.Driver)) {
	case "none", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.history.driver: unknown driver %q", c.Storage.History.Driver)
	}
	for _, d := range []struct{ name, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"media.debounce", c.Media.Debounce},
		{"media.sweep_every", c.Media.SweepEvery},
		{"media.stale_after", c.Media.StaleAfter},
		{"delivery.retry_base", c.Delivery.RetryBase},
		{"delivery.attempt_timeout", c.Delivery.AttemptTimeout},
	} {
		if _, err := time.ParseDuration(d.raw); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	return nil
}

// MustDuration parses a duration field that validate() already accepted.
func MustDuration(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		panic(fmt.Sprintf("config duration %q: %v", raw, err))
	}
	return d
}

// Location resolves the configured timezone; validate() guarantees success.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		panic(fmt.Sprintf("config timezone %q: %v", c.Timezone, err))
	}
	return loc
}
