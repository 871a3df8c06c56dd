package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "MEGAMARKET"

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	MetricsAddr  string        `mapstructure:"metrics_addr"`
	DatabaseURL  string        `mapstructure:"database_url"`
	ScenarioPath string        `mapstructure:"scenario_path"`
	CatalogPath  string        `mapstructure:"catalog_path"`
	Seed         int64         `mapstructure:"seed"`
	TurnEvery    time.Duration `mapstructure:"turn_every"`
	EventsMin    int           `mapstructure:"events_min"`
	EventsMax    int           `mapstructure:"events_max"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	Model        string        `mapstructure:"model"`
	StartingCash float64       `mapstructure:"starting_cash"`
	Players      []string      `mapstructure:"players"`
	WarmupTurns  int           `mapstructure:"warmup_turns"`
	LogLevel     string        `mapstructure:"log_level"`
}

type CLIConfig struct {
	APIBaseURL string `mapstructure:"api_base_url"`
}

// LoadServer reads MEGAMARKET_* environment variables, layered over the
// optional file named by MEGAMARKET_CONFIG. PORT and DATABASE_URL are
// honoured for platforms that inject them.
func LoadServer() (ServerConfig, error) {
	v := viper.New()
	setServerDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	if err := v.BindEnv("database_url", envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return ServerConfig{}, err
	}

	if path := strings.TrimSpace(os.Getenv(envPrefix + "_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return ServerConfig{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.Model = strings.ToLower(strings.TrimSpace(cfg.Model))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Players = trimAll(cfg.Players)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("database_url", "")
	v.SetDefault("scenario_path", "")
	v.SetDefault("catalog_path", "")
	v.SetDefault("seed", 0) // 0 = seed from the clock
	v.SetDefault("turn_every", "0s")
	v.SetDefault("events_min", 3)
	v.SetDefault("events_max", 3)
	v.SetDefault("max_attempts", 64)
	v.SetDefault("model", "gbm")
	v.SetDefault("starting_cash", 2000.0)
	v.SetDefault("players", []string{})
	v.SetDefault("warmup_turns", 10)
	v.SetDefault("log_level", "info")
}

func (c ServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.EventsMin < 0 || c.EventsMax < c.EventsMin {
		return fmt.Errorf("events_min/events_max must satisfy 0 <= min <= max, got %d/%d", c.EventsMin, c.EventsMax)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if c.TurnEvery < 0 {
		return fmt.Errorf("turn_every must not be negative")
	}
	if c.TurnEvery > 0 && c.TurnEvery < 100*time.Millisecond {
		return fmt.Errorf("turn_every must be at least 100ms when set")
	}
	switch c.Model {
	case "gbm", "trend", "mixed":
	default:
		return fmt.Errorf("model must be one of: gbm, trend, mixed")
	}
	if c.StartingCash <= 0 {
		return fmt.Errorf("starting_cash must be positive")
	}
	if c.WarmupTurns < 0 {
		return fmt.Errorf("warmup_turns must not be negative")
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	return nil
}

// SlogLevel maps LogLevel onto slog, defaulting to info.
func (c ServerConfig) SlogLevel() slog.Level {
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

func LoadCLI() CLIConfig {
	v := viper.New()
	v.SetDefault("api_base_url", "http://localhost:8080")
	v.SetEnvPrefix("MM")
	v.AutomaticEnv()
	return CLIConfig{
		APIBaseURL: strings.TrimRight(strings.TrimSpace(v.GetString("api_base_url")), "/"),
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
