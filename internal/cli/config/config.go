package config

import (
	"fmt"
	"os"
	"time"

	"ojwatch/internal/common/mq"
	"ojwatch/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL        = "http://127.0.0.1:8080"
	DefaultTimeout        = 10 * time.Second
	DefaultTokenStatePath = "configs/cli_state.json"
	DefaultHistoryFile    = ".ojwatch_history"
	DefaultCadence        = 2 * time.Second
	DefaultMaxAttempts    = 30
	DefaultEventsTopic    = "submission.outcomes"
)

// Config holds CLI configuration.
type Config struct {
	BaseURL        string        `yaml:"baseURL"`
	Timeout        time.Duration `yaml:"timeout"`
	TokenStatePath string        `yaml:"tokenStatePath"`
	HistoryFile    string        `yaml:"historyFile"`
	PrettyJSON     *bool         `yaml:"prettyJSON"`
	Poll           PollConfig    `yaml:"poll"`
	Logger         logger.Config `yaml:"logger"`
	Events         EventsConfig  `yaml:"events"`
}

// PollConfig sets the default observation schedule.
type PollConfig struct {
	Cadence     time.Duration `yaml:"cadence"`
	MaxAttempts int           `yaml:"maxAttempts"`
}

// EventsConfig enables outcome publishing when Kafka brokers are set.
type EventsConfig struct {
	Topic string         `yaml:"topic"`
	Kafka mq.KafkaConfig `yaml:"kafka"`
}

// Enabled reports whether outcome events should be published.
func (e EventsConfig) Enabled() bool {
	return len(e.Kafka.Brokers) > 0
}

// Load reads path; a missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config file failed: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file failed: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TokenStatePath == "" {
		cfg.TokenStatePath = DefaultTokenStatePath
	}
	if cfg.HistoryFile == "" {
		cfg.HistoryFile = DefaultHistoryFile
	}
	if cfg.PrettyJSON == nil {
		pretty := true
		cfg.PrettyJSON = &pretty
	}
	if cfg.Poll.Cadence == 0 {
		cfg.Poll.Cadence = DefaultCadence
	}
	if cfg.Poll.MaxAttempts == 0 {
		cfg.Poll.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "warn"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "console"
	}
	if cfg.Logger.OutputPath == "" {
		cfg.Logger.OutputPath = "stderr"
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = DefaultEventsTopic
	}
	if cfg.Events.Kafka.ClientID == "" {
		cfg.Events.Kafka.ClientID = "ojwatch-cli"
	}
}

func validate(cfg Config) error {
	if cfg.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if cfg.Poll.Cadence < 0 {
		return fmt.Errorf("poll.cadence must not be negative")
	}
	if cfg.Poll.MaxAttempts < 0 {
		return fmt.Errorf("poll.maxAttempts must not be negative")
	}
	return nil
}
