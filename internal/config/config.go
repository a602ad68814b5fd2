// Package config loads the daemon's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Control   ControlConfig   `toml:"control"`
	Log       LogConfig       `toml:"log"`
	Input     InputConfig     `toml:"input"`
	RateLimit RateLimitConfig `toml:"rate_limit"`

	// Keys overlays the built-in key table, mapping key names to
	// platform key codes.
	Keys map[string]int `toml:"keys"`
}

type ServerConfig struct {
	Port           int  `toml:"port"`
	TimeoutSeconds int  `toml:"timeout_seconds"`
	AllowAnyOrigin bool `toml:"allow_any_origin"`
}

type ControlConfig struct {
	Addr string `toml:"addr"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type InputConfig struct {
	TextMaxLen        int `toml:"text_max_len"`
	TextMinIntervalMS int `toml:"text_min_interval_ms"`
}

type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	MessagesPerSecond float64 `toml:"messages_per_second"`
	Burst             int     `toml:"burst"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           8080,
			TimeoutSeconds: 30,
			AllowAnyOrigin: true,
		},
		Control: ControlConfig{
			Addr: "127.0.0.1:8081",
		},
		Log: LogConfig{
			Level: "info",
		},
		Input: InputConfig{
			TextMaxLen:        1000,
			TextMinIntervalMS: 100,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			MessagesPerSecond: 100,
			Burst:             200,
		},
	}
}

// Load reads path over the defaults. A missing file returns the
// defaults unchanged so the daemon runs without any configuration.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Server.TimeoutSeconds <= 0 {
		return fmt.Errorf("invalid server timeout: %d", cfg.Server.TimeoutSeconds)
	}
	if cfg.Input.TextMaxLen <= 0 {
		return fmt.Errorf("invalid text_max_len: %d", cfg.Input.TextMaxLen)
	}
	if cfg.Input.TextMinIntervalMS < 0 {
		return fmt.Errorf("invalid text_min_interval_ms: %d", cfg.Input.TextMinIntervalMS)
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.MessagesPerSecond <= 0 {
		return fmt.Errorf("invalid messages_per_second: %v", cfg.RateLimit.MessagesPerSecond)
	}
	return nil
}
