package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ticketbot/internal/bootstrap/logging"
	"ticketbot/internal/errs"
)

const envPrefix = "TICKETBOT"

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Access   AccessConfig   `mapstructure:"access"`
	Events   EventsConfig   `mapstructure:"events"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// File, when set, receives a copy of every record written to stderr.
	File string `mapstructure:"file"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// DiscordConfig carries the guild-scoped identifiers the channel provisioner
// needs. The lifecycle core never reads these; they are opaque to it.
type DiscordConfig struct {
	Token             string        `mapstructure:"token"`
	GuildID           string        `mapstructure:"guild_id"`
	OpenCategoryID    string        `mapstructure:"open_category_id"`
	ClosedCategoryID  string        `mapstructure:"closed_category_id"`
	ModeratorRoleID   string        `mapstructure:"moderator_role_id"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type AccessConfig struct {
	ModeratorCacheTTL time.Duration `mapstructure:"moderator_cache_ttl"`
}

type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// legacyEnv maps config keys to the variable names the first bot deployment used.
var legacyEnv = map[string]string{
	"discord.token":              "BOT_TOKEN",
	"discord.guild_id":           "GUILD_ID",
	"discord.moderator_role_id":  "MOD_ROLE_ID",
	"discord.open_category_id":   "OPEN_CATEGORY_ID",
	"discord.closed_category_id": "CLOSED_CATEGORY_ID",
	"database.host":              "DB_HOST",
	"database.user":              "DB_USER",
	"database.password":          "DB_PASSWORD",
	"database.name":              "DB_NAME",
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	if err := godotenv.Load(); err == nil {
		logging.Info(logCtx, "loaded .env file")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		canonical := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, canonical, legacy); err != nil {
			return Config{}, errs.Wrapf(err, "bind env %s", key)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || (configFile != "" && isMissingFile(err)) {
			logging.Warn(logCtx, "config file not found, fallback to defaults and env", slog.String("config_file", configFile))
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("guild_id", cfg.Discord.GuildID),
		slog.Bool("events_enabled", cfg.Events.NATSURL != ""),
	)

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ticketbot")
	v.SetDefault("app.env", "local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("discord.request_timeout", 15*time.Second)
	v.SetDefault("discord.requests_per_second", 5.0)
	v.SetDefault("discord.burst", 5)
	v.SetDefault("access.moderator_cache_ttl", 5*time.Minute)
	v.SetDefault("events.subject_prefix", "tickets")
}

func (c *Config) normalize() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.DSN == "" {
		switch c.Database.Driver {
		case "postgres", "postgresql":
			if c.Database.Host == "" || c.Database.Name == "" {
				return errors.New("database.dsn or database.host and database.name are required for postgres")
			}
			c.Database.DSN = fmt.Sprintf(
				"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
				c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.Name,
			)
		default:
			c.Database.DSN = ".ticketbot/tickets.sqlite"
		}
	}

	ids := map[string]string{
		"discord.guild_id":           c.Discord.GuildID,
		"discord.open_category_id":   c.Discord.OpenCategoryID,
		"discord.closed_category_id": c.Discord.ClosedCategoryID,
		"discord.moderator_role_id":  c.Discord.ModeratorRoleID,
	}
	for key, raw := range ids {
		if raw == "" {
			continue
		}
		if _, err := strconv.ParseUint(raw, 10, 64); err != nil {
			return fmt.Errorf("%s must be a numeric snowflake, got %q", key, raw)
		}
	}

	if c.Discord.RequestTimeout <= 0 {
		c.Discord.RequestTimeout = 15 * time.Second
	}
	if c.Discord.Burst <= 0 {
		c.Discord.Burst = 1
	}
	return nil
}

// Validate reports whether the chat-platform settings required for
// provisioning are present.
func (d DiscordConfig) Validate() error {
	missing := make([]string, 0, 5)
	if d.Token == "" {
		missing = append(missing, "discord.token")
	}
	if d.GuildID == "" {
		missing = append(missing, "discord.guild_id")
	}
	if d.OpenCategoryID == "" {
		missing = append(missing, "discord.open_category_id")
	}
	if d.ClosedCategoryID == "" {
		missing = append(missing, "discord.closed_category_id")
	}
	if d.ModeratorRoleID == "" {
		missing = append(missing, "discord.moderator_role_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
