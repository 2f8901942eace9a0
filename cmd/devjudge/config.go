package main

import (
	"fmt"
	"os"
	"time"

	"ojwatch/internal/common/cache"
	"ojwatch/internal/submission/model"
	"ojwatch/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "127.0.0.1:8080"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	Secret           string        `yaml:"secret"`
	Issuer           string        `yaml:"issuer"`
	AccessTTL        time.Duration `yaml:"accessTTL"`
	EnableTokenIssue bool          `yaml:"enableTokenIssue"`
}

// JudgeConfig controls how submissions settle.
type JudgeConfig struct {
	PendingFor     time.Duration `yaml:"pendingFor"`
	RunningFor     time.Duration `yaml:"runningFor"`
	DefaultVerdict model.Status  `yaml:"defaultVerdict"`
	TotalTestCases int           `yaml:"totalTestCases"`
	FullScore      int           `yaml:"fullScore"`
	MaxCodeBytes   int           `yaml:"maxCodeBytes"`
	SubmissionTTL  time.Duration `yaml:"submissionTTL"`
	HistoryLimit   int           `yaml:"historyLimit"`
	// Problems maps accepted problem ids to titles.
	Problems map[int64]string `yaml:"problems"`
}

// AppConfig is the dev judge configuration.
type AppConfig struct {
	Server ServerConfig      `yaml:"server"`
	Logger logger.Config     `yaml:"logger"`
	Redis  cache.RedisConfig `yaml:"redis"`
	Auth   AuthConfig        `yaml:"auth"`
	Judge  JudgeConfig       `yaml:"judge"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	redisDefaults := cache.DefaultRedisConfig()
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Redis.MaxRetries == 0 {
		cfg.Redis.MaxRetries = redisDefaults.MaxRetries
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = redisDefaults.DialTimeout
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = redisDefaults.ReadTimeout
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = redisDefaults.WriteTimeout
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = redisDefaults.PoolSize
	}
	if cfg.Redis.MinIdleConns == 0 {
		cfg.Redis.MinIdleConns = redisDefaults.MinIdleConns
	}

	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth.secret is required")
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "ojwatch-devjudge"
	}
	if cfg.Auth.AccessTTL == 0 {
		cfg.Auth.AccessTTL = 24 * time.Hour
	}

	if cfg.Judge.SubmissionTTL == 0 {
		cfg.Judge.SubmissionTTL = 24 * time.Hour
	}
	if cfg.Judge.HistoryLimit == 0 {
		cfg.Judge.HistoryLimit = 1000
	}
	if len(cfg.Judge.Problems) == 0 {
		cfg.Judge.Problems = map[int64]string{1: "a-plus-b"}
	}
	return &cfg, nil
}
