package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zulandar/bankline/internal/config"
)

// envKeys are the settings that BANKLINE_* environment variables override,
// e.g. BANKLINE_DATABASE_DSN for database.dsn.
var envKeys = []string{
	"server.port",
	"database.driver",
	"database.dsn",
	"database.host",
	"database.port",
	"database.user",
	"database.name",
	"worker.command",
	"worker.dir",
	"worker.call_timeout",
	"auth.otp_ttl",
	"auth.sms.provider",
	"auth.sms.url",
	"auth.sms.token_url",
	"auth.sms.client_id",
	"auth.sms.client_secret",
	"escalation.support_phone",
	"escalation.slack.bot_token",
	"escalation.slack.channel_id",
	"escalation.discord.bot_token",
	"escalation.discord.channel_id",
	"conversation.default_language",
	"conversation.idle_timeout",
	"chat.backend",
	"chat.openai.api_key",
	"chat.openai.model",
	"chat.openai.base_url",
	"log.level",
	"log.format",
}

// flagKeys maps command flags onto config keys.
var flagKeys = map[string]string{
	"port":      "server.port",
	"log-level": "log.level",
}

// loadConfig merges the YAML file at the --config path, a .env file, the
// BANKLINE_* environment and any bound flags, then applies defaults. A
// missing config file is not an error.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path, _ := cmd.Flags().GetString("config")
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if cmd.Flags().Changed("config") {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("BANKLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// newLogger builds the process logger from the log settings.
func newLogger(cfg config.LogConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
