package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8090"
	DefaultProbeTimeoutMs   = 3000
	DefaultPGHost           = "127.0.0.1"
	DefaultPGPort           = 5432
	DefaultPGUser           = "postgres"
	DefaultPGDatabase       = "sentinel"
	DefaultPGSSLMode        = "disable"
	DefaultRedisAddr        = "127.0.0.1:6379"
	DefaultGatewayChannel   = "telegram"
	DefaultHeartbeatSpec    = "@every 5m"
	DefaultSignalsSweepSpec = "@every 30m"
	DefaultDownClaimWindow  = 1800
	DefaultSignalWindow     = 3600
	DefaultOtelGapWindow    = 7200
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Dashboard DashboardConfig `toml:"dashboard"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Tracker   TrackerConfig   `toml:"tracker"`
	SelfHeal  SelfHealConfig  `toml:"selfheal"`
	Schedule  ScheduleConfig  `toml:"schedule"`
	Cooldown  CooldownConfig  `toml:"cooldown"`
	Probes    []ProbeConfig   `toml:"probes"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders the pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type DashboardConfig struct {
	BaseURL   string `toml:"base_url" validate:"omitempty,url"`
	TimeoutMs int    `toml:"timeout_ms"`
}

// GatewayConfig selects and configures the human-facing notification channel.
type GatewayConfig struct {
	Channel  string         `toml:"channel" validate:"omitempty,oneof=telegram discord"`
	Telegram TelegramConfig `toml:"telegram"`
	Discord  DiscordConfig  `toml:"discord"`
}

type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
	ChatID   int64  `toml:"chat_id"`
}

type DiscordConfig struct {
	BotToken  string `toml:"bot_token"`
	ChannelID string `toml:"channel_id"`
}

// TrackerConfig points at the GitHub repo whose open issues are the
// "currently tracked problems" view.
type TrackerConfig struct {
	Token string `toml:"token"`
	Owner string `toml:"owner"`
	Repo  string `toml:"repo"`
}

// SelfHealConfig holds the critical-domain allowlist as data: component
// name -> self-healing domain. Components absent from the map never
// trigger an automated remediation request.
type SelfHealConfig struct {
	WebhookURL string            `toml:"webhook_url" validate:"omitempty,url"`
	Owner      string            `toml:"owner"`
	Domains    map[string]string `toml:"domains"`
	DryRun     bool              `toml:"dry_run"`
}

type ScheduleConfig struct {
	HeartbeatSpec    string `toml:"heartbeat_spec"`
	SignalsSweepSpec string `toml:"signals_sweep_spec"`
}

// CooldownConfig carries suppression window sizes in seconds.
type CooldownConfig struct {
	DownClaimSeconds   int `toml:"down_claim_seconds"`
	SignalAlertSeconds int `toml:"signal_alert_seconds"`
	OtelGapSeconds     int `toml:"otel_gap_seconds"`
}

// ProbeConfig declares one named dependency check.
type ProbeConfig struct {
	Name      string `toml:"name" validate:"required"`
	Type      string `toml:"type" validate:"required,oneof=http tcp redis postgres"`
	Target    string `toml:"target"`
	TimeoutMs int    `toml:"timeout_ms"`
}

// Load reads config from path, overlaying defaults. A missing file is
// not an error; the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Redis: RedisConfig{
			Addr: DefaultRedisAddr,
		},
		Dashboard: DashboardConfig{
			TimeoutMs: 5000,
		},
		Gateway: GatewayConfig{
			Channel: DefaultGatewayChannel,
		},
		Schedule: ScheduleConfig{
			HeartbeatSpec:    DefaultHeartbeatSpec,
			SignalsSweepSpec: DefaultSignalsSweepSpec,
		},
		Cooldown: CooldownConfig{
			DownClaimSeconds:   DefaultDownClaimWindow,
			SignalAlertSeconds: DefaultSignalWindow,
			OtelGapSeconds:     DefaultOtelGapWindow,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	for i := range cfg.Probes {
		if cfg.Probes[i].TimeoutMs <= 0 {
			cfg.Probes[i].TimeoutMs = DefaultProbeTimeoutMs
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
