// Package config handles YAML configuration loading, environment variable
// expansion, defaults and validation for nodetalk.
package config

import (
	"time"

	"github.com/flemzord/nodetalk/internal/node"
	"github.com/flemzord/nodetalk/internal/telemetry"
)

// Default values applied to zero fields.
const (
	DefaultGatewayURL      = "ws://127.0.0.1:18789"
	DefaultCallTimeout     = 30 * time.Second
	DefaultBind            = "127.0.0.1:18790"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultServiceName     = "nodetalk"
	DefaultTelegramAPIURL  = "https://api.telegram.org"
	DefaultPollTimeout     = 30
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// LogLevel is one of debug, info, warn, error. Empty keeps the
	// per-command default.
	LogLevel string `yaml:"log_level"`

	Gateway   GatewayConfig    `yaml:"gateway"`
	Talk      TalkConfig       `yaml:"talk"`
	Commands  CommandsConfig   `yaml:"commands"`
	Server    ServerConfig     `yaml:"server"`
	History   HistoryConfig    `yaml:"history"`
	Telegram  TelegramConfig   `yaml:"telegram"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// GatewayConfig locates the node gateway.
type GatewayConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`

	// CallTimeout bounds one gateway request, dial included.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// TalkConfig controls default node selection for chat commands.
type TalkConfig struct {
	// DefaultNode is an id, display name or IP. Empty means auto-select.
	DefaultNode string `yaml:"default_node"`

	// Platforms is the preference order for auto-selection.
	Platforms []string `yaml:"platforms"`

	// RateLimitPerMinute caps /ptt invocations per chat. Zero is unlimited.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// Policy converts the talk section to a node selection policy.
func (t TalkConfig) Policy() node.Policy {
	return node.Policy{Node: t.DefaultNode, Platforms: t.Platforms}
}

// CommandsConfig toggles chat command handling.
type CommandsConfig struct {
	// Text enables slash commands in chat messages. Defaults to true.
	Text *bool `yaml:"text"`
}

// TextEnabled reports whether chat text commands are handled.
func (c CommandsConfig) TextEnabled() bool {
	return c.Text == nil || *c.Text
}

// ServerConfig configures the HTTP command surface started by serve.
type ServerConfig struct {
	Bind            string        `yaml:"bind"`
	Auth            AuthConfig    `yaml:"auth"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig holds HTTP authentication settings.
type AuthConfig struct {
	// BearerToken, when set, is required on POST /v1/commands.
	BearerToken string `yaml:"bearer_token"`
}

// HistoryConfig locates the invocation history database.
type HistoryConfig struct {
	// Path to the SQLite file. Empty disables history.
	Path string `yaml:"path"`
}

// TelegramConfig enables the Telegram chat surface of serve.
type TelegramConfig struct {
	// BotToken enables the bridge when set.
	BotToken string `yaml:"bot_token"`
	APIURL   string `yaml:"api_url"`

	// PollTimeout is the getUpdates long-poll timeout in seconds (1-50).
	PollTimeout int `yaml:"poll_timeout"`

	// AllowFrom lists user ids, chat ids or usernames allowed to run
	// commands. "*" allows everyone; empty allows no one.
	AllowFrom []string `yaml:"allow_from"`
}

// Enabled reports whether a bot token is configured.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != ""
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = "1"
	}
	c.Gateway.defaults()
	c.Talk.defaults()
	c.Server.defaults()
	if c.Telegram.APIURL == "" {
		c.Telegram.APIURL = DefaultTelegramAPIURL
	}
	if c.Telegram.PollTimeout == 0 {
		c.Telegram.PollTimeout = DefaultPollTimeout
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
}

func (g *GatewayConfig) defaults() {
	if g.URL == "" {
		g.URL = DefaultGatewayURL
	}
	if g.CallTimeout == 0 {
		g.CallTimeout = DefaultCallTimeout
	}
}

func (t *TalkConfig) defaults() {
	if len(t.Platforms) == 0 {
		t.Platforms = append([]string(nil), node.DefaultPlatforms...)
	}
}

func (s *ServerConfig) defaults() {
	if s.Bind == "" {
		s.Bind = DefaultBind
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
}
