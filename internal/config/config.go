// Package config loads hub configuration from the environment (with an
// optional .env file) and channel presets from an optional TOML file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds every runtime setting for the hub process.
type Config struct {
	// Port is the TCP port the hub listens on, on all interfaces.
	Port int
	// AllowedOrigins restricts WebSocket upgrades; "*" allows any origin.
	AllowedOrigins []string
	// BridgeHost/BridgePort locate the OSC-to-MIDI bridge.
	BridgeHost string
	BridgePort int
	// ChannelsFile is an optional TOML preset file for channel defaults.
	ChannelsFile string

	MaxMessageSize  int64
	RateBurst       int
	RateRefill      time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
}

func defaults() *Config {
	return &Config{
		Port:            3000,
		AllowedOrigins:  []string{"*"},
		BridgeHost:      "127.0.0.1",
		BridgePort:      57121,
		MaxMessageSize:  4096,
		RateBurst:       120,
		RateRefill:      time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
	}
}

// Load reads configuration from a .env file (if present) and the
// environment, falling back to defaults for anything unset or unparseable.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file, relying on environment")
	}

	cfg := defaults()
	cfg.Port = envInt("FADERHUB_PORT", cfg.Port)
	if origins := os.Getenv("FADERHUB_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitOrigins(origins)
	}
	if host := os.Getenv("FADERHUB_BRIDGE_HOST"); host != "" {
		cfg.BridgeHost = host
	}
	cfg.BridgePort = envInt("FADERHUB_BRIDGE_PORT", cfg.BridgePort)
	cfg.ChannelsFile = os.Getenv("FADERHUB_CHANNELS")
	cfg.MaxMessageSize = int64(envInt("FADERHUB_MAX_MESSAGE_SIZE", int(cfg.MaxMessageSize)))
	cfg.RateBurst = envInt("FADERHUB_RATE_BURST", cfg.RateBurst)
	if secs := envInt("FADERHUB_RATE_REFILL_SECONDS", 0); secs > 0 {
		cfg.RateRefill = time.Duration(secs) * time.Second
	}
	if level := os.Getenv("FADERHUB_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	return sanitize(cfg)
}

func sanitize(cfg *Config) *Config {
	if cfg.Port < 1 || cfg.Port > 65535 {
		cfg.Port = 3000
	}
	if cfg.BridgePort < 1 || cfg.BridgePort > 65535 {
		cfg.BridgePort = 57121
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 120
	}
	if cfg.RateRefill <= 0 {
		cfg.RateRefill = time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return cfg
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("ignoring unparseable integer setting")
		return fallback
	}
	return n
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
