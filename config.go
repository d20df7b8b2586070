package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

type Config struct {
	ListenAddr string `env:"BRIDGE_ADDR"`
	Port       string `env:"PORT"`
	DBPath     string `env:"BRIDGE_DB" envDefault:"bridge.db"`
	APIToken   string `env:"BRIDGE_API_TOKEN"`

	JournalRetention time.Duration `env:"BRIDGE_JOURNAL_RETENTION" envDefault:"168h"`

	GameAddr string `env:"BRIDGE_GAME_ADDR"`
	Region   string `env:"BRIDGE_REGION"`
	KeyHex   string `env:"BRIDGE_KEY"`
	IVHex    string `env:"BRIDGE_IV"`

	QueueSize     int           `env:"BRIDGE_QUEUE_SIZE" envDefault:"256"`
	PollInterval  time.Duration `env:"BRIDGE_POLL_INTERVAL" envDefault:"100ms"`
	ErrorBackoff  time.Duration `env:"BRIDGE_ERROR_BACKOFF" envDefault:"1s"`
	EmoteInterval time.Duration `env:"BRIDGE_EMOTE_INTERVAL" envDefault:"300ms"`

	IngressRate  float64 `env:"BRIDGE_INGRESS_RATE"`
	IngressBurst int     `env:"BRIDGE_INGRESS_BURST" envDefault:"20"`

	LogLevel string `env:"BRIDGE_LOG_LEVEL" envDefault:"info"`

	Key []byte
	IV  []byte
}

// LoadConfig reads the environment, then lets flags override it.
func LoadConfig(args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	flags := pflag.NewFlagSet("squad-bridge", pflag.ContinueOnError)
	flags.StringVar(&cfg.ListenAddr, "addr", defaultAddr(cfg), "Listen address for the ingress API")
	flags.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite command journal path")
	flags.DurationVar(&cfg.JournalRetention, "journal-retention", cfg.JournalRetention, "How long accepted commands stay in the journal (0 keeps them)")
	flags.StringVar(&cfg.APIToken, "api-token", cfg.APIToken, "Shared token required from ingress callers")
	flags.StringVar(&cfg.GameAddr, "game-addr", cfg.GameAddr, "Game server host:port (empty runs API-only)")
	flags.StringVar(&cfg.Region, "region", cfg.Region, "Region tag sent with emotes")
	flags.StringVar(&cfg.KeyHex, "key", cfg.KeyHex, "Session AES key, hex")
	flags.StringVar(&cfg.IVHex, "iv", cfg.IVHex, "Session AES IV, hex")
	flags.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "Maximum queued commands")
	flags.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Longest idle wait on an empty queue")
	flags.DurationVar(&cfg.ErrorBackoff, "error-backoff", cfg.ErrorBackoff, "Pause after a command fails unexpectedly")
	flags.DurationVar(&cfg.EmoteInterval, "emote-interval", cfg.EmoteInterval, "Minimum spacing between emote frames")
	flags.Float64Var(&cfg.IngressRate, "ingress-rate", cfg.IngressRate, "Commands admitted per second across all callers (0 is unlimited)")
	flags.IntVar(&cfg.IngressBurst, "ingress-burst", cfg.IngressBurst, "Commands admitted at once before --ingress-rate applies")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.decodeKeys(); err != nil {
		return Config{}, err
	}
	if cfg.GameAddr != "" && (len(cfg.Key) == 0 || len(cfg.IV) == 0) {
		return Config{}, fmt.Errorf("--key and --iv are required with --game-addr")
	}
	return cfg, nil
}

func (c *Config) decodeKeys() error {
	var err error
	if c.Key, err = hex.DecodeString(strings.TrimSpace(c.KeyHex)); err != nil {
		return fmt.Errorf("key: %w", err)
	}
	if c.IV, err = hex.DecodeString(strings.TrimSpace(c.IVHex)); err != nil {
		return fmt.Errorf("iv: %w", err)
	}
	return nil
}

func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func defaultAddr(cfg Config) string {
	if cfg.ListenAddr != "" {
		return cfg.ListenAddr
	}
	// Railway, Render, etc. set PORT
	if cfg.Port != "" {
		return ":" + cfg.Port
	}
	return ":5000"
}
