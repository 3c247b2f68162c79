package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Reminder ReminderConfig `json:"reminder,omitempty"`
	HTTP     HTTPConfig     `json:"http,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects and parameterizes the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./remindbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ReminderConfig tunes the reminder pipeline. Timezone applies to every
// parse, timer and cron cadence in the process.
type ReminderConfig struct {
	Timezone       string `json:"timezone,omitempty"` // default Asia/Taipei
	PushRatePerSec int    `json:"push_rate_per_sec,omitempty"`
}

// HTTPConfig controls the small operational HTTP server (health,
// force-sweep). Bind to localhost unless fronted by something.
type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:8080"
}

// Validate rejects configs that cannot produce a working process.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := c.PollTimeout(); err != nil {
		return err
	}
	if c.Reminder.Timezone != "" {
		if _, err := time.LoadLocation(c.Reminder.Timezone); err != nil {
			return fmt.Errorf("reminder.timezone: %w", err)
		}
	}
	if _, err := c.StorageBusyTimeout(); err != nil {
		return err
	}
	return nil
}

// PollTimeout returns telegram.poll_timeout with a 10s default.
func (c *Config) PollTimeout() (time.Duration, error) {
	return durationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, 10*time.Second)
}

// StorageBusyTimeout returns storage.busy_timeout with a 5s default.
func (c *Config) StorageBusyTimeout() (time.Duration, error) {
	return durationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, 5*time.Second)
}

// HTTPAddr returns http.addr with the loopback default.
func (c *Config) HTTPAddr() string {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return "127.0.0.1:8080"
	}
	return c.HTTP.Addr
}

func durationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
