package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ojwatch/internal/submission/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devjudge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, "auth:\n  secret: s3cret\n"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Addr != defaultHTTPAddr || cfg.Server.IdleTimeout != defaultIdleTimeout {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Redis.Addr != "127.0.0.1:6379" || cfg.Redis.PoolSize != 10 {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Auth.AccessTTL != 24*time.Hour || cfg.Auth.EnableTokenIssue {
		t.Fatalf("unexpected auth config: %+v", cfg.Auth)
	}
	if cfg.Judge.Problems[1] != "a-plus-b" || cfg.Judge.HistoryLimit != 1000 {
		t.Fatalf("unexpected judge config: %+v", cfg.Judge)
	}
}

func TestLoadAppConfigJudgeSection(t *testing.T) {
	body := `
auth:
  secret: s3cret
  enableTokenIssue: true
judge:
  pendingFor: 500ms
  defaultVerdict: wrong_answer
  problems:
    7: two-sum
    9: maze
`
	cfg, err := loadAppConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Judge.PendingFor != 500*time.Millisecond || cfg.Judge.DefaultVerdict != model.StatusWrongAnswer {
		t.Fatalf("unexpected judge config: %+v", cfg.Judge)
	}
	if len(cfg.Judge.Problems) != 2 || cfg.Judge.Problems[9] != "maze" {
		t.Fatalf("unexpected problems: %v", cfg.Judge.Problems)
	}
	if !cfg.Auth.EnableTokenIssue {
		t.Fatalf("token issue should be enabled")
	}
}

func TestLoadAppConfigRequiresSecret(t *testing.T) {
	if _, err := loadAppConfig(writeConfig(t, "server:\n  addr: \"127.0.0.1:9000\"\n")); err == nil {
		t.Fatalf("expected missing secret error")
	}
}
