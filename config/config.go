// Package config loads the bridge's TOML configuration with a default
// overlay: every key is optional, and only keys present in the file
// override the defaults.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the bridge's runtime configuration.
type Config struct {
	SumoHost       string
	SumoPort       int
	HTTPListenAddr string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	ConnectOnStart bool
	MCPEnabled     bool
	LogLevel       string
}

// Default returns the configuration used when no file is given. 8813 is
// SUMO's conventional TraCI port.
func Default() Config {
	return Config{
		SumoHost:       "localhost",
		SumoPort:       8813,
		HTTPListenAddr: ":5000",
		PollInterval:   time.Second,
		RequestTimeout: 5 * time.Second,
		ConnectOnStart: false,
		MCPEnabled:     false,
		LogLevel:       "info",
	}
}

// SumoAddr returns the host:port the TraCI client dials.
func (c Config) SumoAddr() string {
	return fmt.Sprintf("%s:%d", c.SumoHost, c.SumoPort)
}

type fileConfig struct {
	SumoHost       string  `toml:"sumo_host"`
	SumoPort       int     `toml:"sumo_port"`
	HTTPListenAddr string  `toml:"http_listen_addr"`
	PollIntervalMS int     `toml:"poll_interval_ms"`
	RequestTimeout float64 `toml:"request_timeout_seconds"`
	ConnectOnStart bool    `toml:"connect_on_start"`
	MCPEnabled     bool    `toml:"mcp_enabled"`
	LogLevel       string  `toml:"log_level"`
}

// Load reads path and overlays it on the defaults. Keys absent from the
// file keep their default values, zero values in the file do not.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load bridge config: %w", err)
	}

	if meta.IsDefined("sumo_host") {
		cfg.SumoHost = strings.TrimSpace(raw.SumoHost)
	}
	if meta.IsDefined("sumo_port") {
		cfg.SumoPort = raw.SumoPort
	}
	if meta.IsDefined("http_listen_addr") {
		cfg.HTTPListenAddr = strings.TrimSpace(raw.HTTPListenAddr)
	}
	if meta.IsDefined("poll_interval_ms") {
		cfg.PollInterval = time.Duration(raw.PollIntervalMS) * time.Millisecond
	}
	if meta.IsDefined("request_timeout_seconds") {
		cfg.RequestTimeout = time.Duration(raw.RequestTimeout * float64(time.Second))
	}
	if meta.IsDefined("connect_on_start") {
		cfg.ConnectOnStart = raw.ConnectOnStart
	}
	if meta.IsDefined("mcp_enabled") {
		cfg.MCPEnabled = raw.MCPEnabled
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("load bridge config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SumoHost == "" {
		return fmt.Errorf("sumo_host must not be empty")
	}
	if c.SumoPort <= 0 || c.SumoPort > 65535 {
		return fmt.Errorf("sumo_port %d out of range", c.SumoPort)
	}
	if c.HTTPListenAddr == "" {
		return fmt.Errorf("http_listen_addr must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout_seconds must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q not one of debug, info, warn, error", c.LogLevel)
	}
	return nil
}

// SlogLevel maps the configured level name to its slog value.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
