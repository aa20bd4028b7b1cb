package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"file"`
	DataPath     string `env:"DATA_PATH" envDefault:"data/sessions.json"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"data/sessions.db"`

	FlushIntervalSeconds   int `env:"FLUSH_INTERVAL_SECONDS" envDefault:"5"`
	SweepIntervalSeconds   int `env:"SWEEP_INTERVAL_SECONDS" envDefault:"5"`
	CleanupIntervalMinutes int `env:"CLEANUP_INTERVAL_MINUTES" envDefault:"60"`
	SessionTTLHours        int `env:"SESSION_TTL_HOURS" envDefault:"24"`
	ResultsCloseMinutes    int `env:"RESULTS_CLOSE_MINUTES" envDefault:"30"`

	MaxParticipants        int `env:"MAX_PARTICIPANTS" envDefault:"10"`
	MinAnswersToVote       int `env:"MIN_ANSWERS_TO_VOTE" envDefault:"2"`
	MinParticipantsToStart int `env:"MIN_PARTICIPANTS_TO_START" envDefault:"2"`

	MaxBodyBytes int64 `env:"MAX_BODY_BYTES" envDefault:"0"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c *Config) ResultsCloseAfter() time.Duration {
	return time.Duration(c.ResultsCloseMinutes) * time.Minute
}

func (c *Config) Validate() error {
	if c.StoreBackend != "file" && c.StoreBackend != "sqlite" {
		return fmt.Errorf("STORE_BACKEND must be \"file\" or \"sqlite\", got %q", c.StoreBackend)
	}
	if c.MaxParticipants < 2 {
		return fmt.Errorf("MAX_PARTICIPANTS must be at least 2, got %d", c.MaxParticipants)
	}
	if c.MinAnswersToVote < 1 {
		return fmt.Errorf("MIN_ANSWERS_TO_VOTE must be at least 1, got %d", c.MinAnswersToVote)
	}
	if c.FlushIntervalSeconds < 1 {
		return fmt.Errorf("FLUSH_INTERVAL_SECONDS must be at least 1, got %d", c.FlushIntervalSeconds)
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
