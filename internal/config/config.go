// Package config provides YAML-based configuration loading for bankline.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level bankline configuration, loaded from bankline.yaml.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Worker       WorkerConfig       `yaml:"worker"`
	Auth         AuthConfig         `yaml:"auth"`
	Escalation   EscalationConfig   `yaml:"escalation"`
	Conversation ConversationConfig `yaml:"conversation"`
	Chat         ChatConfig         `yaml:"chat"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig selects the storage driver. Driver is one of "sqlite",
// "mysql" or "postgres". DSN is used verbatim when set; otherwise the mysql
// DSN is built from Host/Port/User/Name.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	User   string `yaml:"user"`
	Name   string `yaml:"name"`
}

// WorkerConfig describes the long-lived language worker process.
type WorkerConfig struct {
	Command        string        `yaml:"command"`
	Args           []string      `yaml:"args"`
	Dir            string        `yaml:"dir"`
	Env            []string      `yaml:"env"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	RestartBackoff time.Duration `yaml:"restart_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	StableAfter    time.Duration `yaml:"stable_after"`
	StopTimeout    time.Duration `yaml:"stop_timeout"`
}

// AuthConfig holds OTP settings.
type AuthConfig struct {
	OTPTTL time.Duration `yaml:"otp_ttl"`
	SMS    SMSConfig     `yaml:"sms"`
}

// SMSConfig selects how OTPs and answer notifications reach the user.
// Provider "log" writes them to the application log; "http" posts them to
// a gateway authenticated with OAuth2 client credentials.
type SMSConfig struct {
	Provider     string   `yaml:"provider"`
	URL          string   `yaml:"url"`
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
	Sender       string   `yaml:"sender"`
}

// EscalationConfig holds the human-support channel settings.
type EscalationConfig struct {
	SupportPhone string        `yaml:"support_phone"`
	Slack        ChannelConfig `yaml:"slack"`
	Discord      ChannelConfig `yaml:"discord"`
}

// ChannelConfig is a bot token plus the channel escalations are posted to.
type ChannelConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Enabled reports whether the channel is configured.
func (c ChannelConfig) Enabled() bool {
	return c.BotToken != "" && c.ChannelID != ""
}

// ConversationConfig holds chat-widget session settings.
type ConversationConfig struct {
	DefaultLanguage string        `yaml:"default_language"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	SweepSchedule   string        `yaml:"sweep_schedule"`
}

// ChatConfig selects the banking chat backend: "worker" (default) or "openai".
type ChatConfig struct {
	Backend string       `yaml:"backend"`
	OpenAI  OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig holds settings for the openai chat backend.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Finalize applies defaults and validates a Config that was decoded by
// something other than Parse.
func (c *Config) Finalize() error {
	c.applyDefaults()
	return c.validate()
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.DSN == "" {
			c.Database.DSN = "bankline.db"
		}
	case "mysql":
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
		if c.Database.Name == "" {
			c.Database.Name = "bankline"
		}
	}

	if c.Worker.Command == "" {
		c.Worker.Command = "python3"
		if len(c.Worker.Args) == 0 {
			c.Worker.Args = []string{"worker/py_bridge.py"}
		}
	}
	if c.Worker.CallTimeout == 0 {
		c.Worker.CallTimeout = 60 * time.Second
	}
	if c.Worker.RestartBackoff == 0 {
		c.Worker.RestartBackoff = time.Second
	}
	if c.Worker.MaxBackoff == 0 {
		c.Worker.MaxBackoff = 30 * time.Second
	}
	if c.Worker.StableAfter == 0 {
		c.Worker.StableAfter = time.Minute
	}
	if c.Worker.StopTimeout == 0 {
		c.Worker.StopTimeout = 10 * time.Second
	}

	if c.Auth.OTPTTL == 0 {
		c.Auth.OTPTTL = 5 * time.Minute
	}
	if c.Auth.SMS.Provider == "" {
		c.Auth.SMS.Provider = "log"
	}

	if c.Escalation.SupportPhone == "" {
		c.Escalation.SupportPhone = "1800-233-4526"
	}

	if c.Conversation.DefaultLanguage == "" {
		c.Conversation.DefaultLanguage = "en"
	}
	if c.Conversation.IdleTimeout == 0 {
		c.Conversation.IdleTimeout = 30 * time.Minute
	}
	if c.Conversation.SweepSchedule == "" {
		c.Conversation.SweepSchedule = "*/5 * * * *"
	}

	if c.Chat.Backend == "" {
		c.Chat.Backend = "worker"
	}
	if c.Chat.OpenAI.Model == "" {
		c.Chat.OpenAI.Model = "gpt-4o-mini"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Worker.MaxBackoff < c.Worker.RestartBackoff {
		errs = append(errs, "worker.max_backoff must be >= worker.restart_backoff")
	}
	switch c.Auth.SMS.Provider {
	case "log":
	case "http":
		if c.Auth.SMS.URL == "" {
			errs = append(errs, "auth.sms.url is required for the http provider")
		}
		if c.Auth.SMS.TokenURL == "" || c.Auth.SMS.ClientID == "" {
			errs = append(errs, "auth.sms.token_url and auth.sms.client_id are required for the http provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("auth.sms.provider %q is not supported", c.Auth.SMS.Provider))
	}
	switch c.Chat.Backend {
	case "worker":
	case "openai":
		if c.Chat.OpenAI.APIKey == "" {
			errs = append(errs, "chat.openai.api_key is required for the openai backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("chat.backend %q is not supported", c.Chat.Backend))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not supported", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
