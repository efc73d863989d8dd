// Package config loads the daemon's ~/.chatdeck/config.toml.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration. Durations are expressed in
// milliseconds in the TOML file.
type Config struct {
	API      API      `toml:"api"`
	Sync     Sync     `toml:"sync"`
	Stream   Stream   `toml:"stream"`
	Ordering Ordering `toml:"ordering"`
	LogPath  string   `toml:"log_path"`
}

// API configures the REST client.
type API struct {
	BaseURL          string  `toml:"base_url"`
	StreamURL        string  `toml:"stream_url"`
	RequestTimeoutMS int     `toml:"request_timeout_ms"`
	RPS              float64 `toml:"rps"`
	Burst            int     `toml:"burst"`
	BreakerFailures  uint32  `toml:"breaker_failures"`
	BreakerTimeoutMS int     `toml:"breaker_timeout_ms"`
}

// Sync configures polling, throttling and the dedup ledger.
type Sync struct {
	PollIntervalMS   int `toml:"poll_interval_ms"`
	GlobalThrottleMS int `toml:"global_throttle_ms"`
	ChatThrottleMS   int `toml:"chat_throttle_ms"`
	LedgerTTLMS      int `toml:"ledger_ttl_ms"`
}

// Stream configures the websocket connection manager.
type Stream struct {
	DialTimeoutMS int `toml:"dial_timeout_ms"`
	HeartbeatMS   int `toml:"heartbeat_ms"`
	BackoffBaseMS int `toml:"backoff_base_ms"`
	BackoffCapMS  int `toml:"backoff_cap_ms"`
	MaxAttempts   int `toml:"max_attempts"`
	OutboxQueue   int `toml:"outbox_queue"`
}

// Ordering configures the reorder scheduler.
type Ordering struct {
	ReorderIntervalMS int `toml:"reorder_interval_ms"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: API{
			BaseURL:          "http://localhost:8080/api",
			StreamURL:        "ws://localhost:8080/stream",
			RequestTimeoutMS: 10_000,
			RPS:              10,
			Burst:            20,
			BreakerFailures:  5,
			BreakerTimeoutMS: 30_000,
		},
		Sync: Sync{
			PollIntervalMS:   30_000,
			GlobalThrottleMS: 5_000,
			ChatThrottleMS:   3_000,
			LedgerTTLMS:      10_000,
		},
		Stream: Stream{
			DialTimeoutMS: 15_000,
			HeartbeatMS:   30_000,
			BackoffBaseMS: 1_000,
			BackoffCapMS:  30_000,
			MaxAttempts:   10,
		},
		Ordering: Ordering{
			ReorderIntervalMS: 60_000,
		},
	}
}

// DefaultPath returns ~/.chatdeck/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".chatdeck", "config.toml"), nil
}

// Load reads config from path, filling unset fields with defaults. A
// missing file yields the defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// Save writes config to path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// RequestTimeout returns the REST request timeout.
func (c *Config) RequestTimeout() time.Duration { return ms(c.API.RequestTimeoutMS) }

// BreakerTimeout returns the circuit breaker open interval.
func (c *Config) BreakerTimeout() time.Duration { return ms(c.API.BreakerTimeoutMS) }

// PollInterval returns the resync polling interval.
func (c *Config) PollInterval() time.Duration { return ms(c.Sync.PollIntervalMS) }

// GlobalThrottle returns the global fetch throttle window.
func (c *Config) GlobalThrottle() time.Duration { return ms(c.Sync.GlobalThrottleMS) }

// ChatThrottle returns the per-chat fetch throttle window.
func (c *Config) ChatThrottle() time.Duration { return ms(c.Sync.ChatThrottleMS) }

// LedgerTTL returns the dedup ledger entry lifetime.
func (c *Config) LedgerTTL() time.Duration { return ms(c.Sync.LedgerTTLMS) }

// DialTimeout returns the websocket dial timeout.
func (c *Config) DialTimeout() time.Duration { return ms(c.Stream.DialTimeoutMS) }

// Heartbeat returns the stream keepalive interval.
func (c *Config) Heartbeat() time.Duration { return ms(c.Stream.HeartbeatMS) }

// BackoffBase returns the first reconnect delay.
func (c *Config) BackoffBase() time.Duration { return ms(c.Stream.BackoffBaseMS) }

// BackoffCap returns the reconnect delay ceiling.
func (c *Config) BackoffCap() time.Duration { return ms(c.Stream.BackoffCapMS) }

// ReorderInterval returns the chat-list reorder cadence.
func (c *Config) ReorderInterval() time.Duration { return ms(c.Ordering.ReorderIntervalMS) }
