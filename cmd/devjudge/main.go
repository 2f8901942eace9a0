package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"ojwatch/internal/common/cache"
	"ojwatch/internal/devjudge"
	"ojwatch/internal/devjudge/repository"
	"ojwatch/internal/devjudge/service"
	"ojwatch/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/devjudge.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	repo := repository.NewSubmissionRepository(redisCache, appCfg.Judge.SubmissionTTL, appCfg.Judge.HistoryLimit)
	if err := repo.SaveProblems(context.Background(), appCfg.Judge.Problems); err != nil {
		logger.Error(context.Background(), "seed problems failed", zap.Error(err))
		return
	}

	judgeService, err := service.NewJudgeService(service.Config{
		Repo:           repo,
		PendingFor:     appCfg.Judge.PendingFor,
		RunningFor:     appCfg.Judge.RunningFor,
		DefaultVerdict: appCfg.Judge.DefaultVerdict,
		TotalTestCases: appCfg.Judge.TotalTestCases,
		FullScore:      appCfg.Judge.FullScore,
		MaxCodeBytes:   appCfg.Judge.MaxCodeBytes,
	})
	if err != nil {
		logger.Error(context.Background(), "init judge service failed", zap.Error(err))
		return
	}
	authService := service.NewAuthService(appCfg.Auth.Secret, appCfg.Auth.Issuer, appCfg.Auth.AccessTTL)

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr: appCfg.Server.Addr,
		Handler: devjudge.NewRouter(devjudge.Deps{
			Judge:            judgeService,
			Auth:             authService,
			Cache:            redisCache,
			EnableTokenIssue: appCfg.Auth.EnableTokenIssue,
		}),
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "dev judge started",
			zap.String("addr", appCfg.Server.Addr),
			zap.Int("problems", len(appCfg.Judge.Problems)),
			zap.Bool("token_issue", appCfg.Auth.EnableTokenIssue),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}
