package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ojwatch/internal/cli/config"
	"ojwatch/internal/cli/repl"
	"ojwatch/internal/cli/state"
	"ojwatch/internal/common/mq"
	"ojwatch/internal/submission/events"
	"ojwatch/internal/submission/gateway"
	"ojwatch/internal/submission/poller"
	"ojwatch/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultConfigPath      = "configs/cli.yaml"
	defaultShutdownTimeout = 5 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	token := flag.String("token", "", "Override access token")
	statePath := flag.String("state", "", "Override token state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON output")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.TokenStatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tokenState, err := state.Load(cfg.TokenStatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load token state failed: %v\n", err)
		os.Exit(1)
	}
	if *token != "" {
		tokenState.AccessToken = *token
	}
	if tokenState.Expired(time.Now()) {
		fmt.Fprintln(os.Stderr, "stored token has expired, run login or set token")
	}

	if err := run(cfg, &tokenState); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, tokenState *state.TokenState) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	var session *repl.Session
	judge := gateway.New(gateway.Config{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		TokenProvider: func() string {
			return session.AccessToken()
		},
	})

	var handlers []poller.OutcomeHandler
	if cfg.Events.Enabled() {
		producer, err := mq.NewKafkaProducer(cfg.Events.Kafka)
		if err != nil {
			return fmt.Errorf("init kafka producer failed: %w", err)
		}
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Warn(context.Background(), "close kafka producer failed", zap.Error(err))
			}
		}()
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		if err := producer.Ping(pingCtx); err != nil {
			logger.Warn(ctx, "kafka broker unreachable, outcome events may be lost", zap.Error(err))
		}
		cancel()
		handlers = append(handlers, events.NewMQOutcomePublisher(producer, cfg.Events.Topic))
	}

	defaults := poller.Options{Cadence: cfg.Poll.Cadence, MaxAttempts: cfg.Poll.MaxAttempts}
	scheduler, err := poller.NewScheduler(poller.Config{
		Source:   judge,
		Defaults: defaults,
		Handlers: handlers,
	})
	if err != nil {
		return fmt.Errorf("init scheduler failed: %w", err)
	}

	session = repl.New(repl.Config{
		Client:      judge,
		Scheduler:   scheduler,
		Token:       tokenState,
		StatePath:   cfg.TokenStatePath,
		HistoryFile: cfg.HistoryFile,
		PrettyJSON:  cfg.PrettyJSON != nil && *cfg.PrettyJSON,
		Defaults:    defaults,
		Out:         os.Stdout,
	})
	runErr := session.Run(ctx)
	session.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		logger.Warn(context.Background(), "scheduler shutdown timed out", zap.Error(err))
	}
	return runErr
}
