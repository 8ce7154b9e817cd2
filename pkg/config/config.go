// Package config loads the widget configuration from an optional YAML
// file, a .env file, and environment variable overrides, in that order.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/deskstream/chatkit/pkg/bus"
)

// Config is the full widget configuration.
type Config struct {
	BaseURL    string `yaml:"base_url"`
	SocketURL  string `yaml:"socket_url"`
	PluginID   string `yaml:"plugin_id"`
	GuestName  string `yaml:"guest_name"`
	GuestGhost bool   `yaml:"guest_ghost"`
	LogLevel   string `yaml:"log_level"`

	TypingTimeout time.Duration `yaml:"typing_timeout"`

	Redis bus.Settings `yaml:"redis"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		BaseURL:       "http://localhost:8800",
		SocketURL:     "ws://localhost:8800/ws",
		LogLevel:      "info",
		TypingTimeout: 15 * time.Second,
		Redis: bus.Settings{
			Addr:     "localhost:6379",
			Group:    "chat-ui",
			Consumer: "ui-1",
		},
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides. A missing .env file is not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Msg("no .env loaded")
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	cfg.applyEnv()

	if cfg.PluginID == "" {
		return Config{}, errors.New("plugin_id is required (CHATKIT_PLUGIN_ID)")
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.BaseURL, "CHATKIT_BASE_URL")
	setString(&c.SocketURL, "CHATKIT_SOCKET_URL")
	setString(&c.PluginID, "CHATKIT_PLUGIN_ID")
	setString(&c.GuestName, "CHATKIT_GUEST_NAME")
	setBool(&c.GuestGhost, "CHATKIT_GUEST_GHOST")
	setString(&c.LogLevel, "CHATKIT_LOG_LEVEL")
	setBool(&c.Redis.Enabled, "CHATKIT_REDIS_ENABLED")
	setString(&c.Redis.Addr, "CHATKIT_REDIS_ADDR")
	setString(&c.Redis.Group, "CHATKIT_REDIS_GROUP")
	setString(&c.Redis.Consumer, "CHATKIT_REDIS_CONSUMER")
	if v, ok := os.LookupEnv("CHATKIT_TYPING_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.TypingTimeout = d
		}
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
