package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"KANBANX_PORT", "KANBANX_DATABASE_PATH", "KANBANX_DATABASE_PASSWORD", "KANBANX_JWT_SECRET",
		"KANBANX_LLM_API_KEY", "KANBANX_LLM_ENDPOINT",
		"KANBANX_SLACK_BOT_TOKEN", "KANBANX_DISCORD_BOT_TOKEN",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestParse_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != 3001 {
		t.Errorf("port = %d, want 3001", cfg.Port)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.Path != "data/kanbanx.db" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Auth.HumanTokenTTL != 24*time.Hour {
		t.Errorf("human ttl = %s", cfg.Auth.HumanTokenTTL)
	}
	if cfg.Auth.AgentTokenTTL != 7*24*time.Hour {
		t.Errorf("agent ttl = %s", cfg.Auth.AgentTokenTTL)
	}
	if cfg.LLM.Timeout != 15*time.Second {
		t.Errorf("llm timeout = %s", cfg.LLM.Timeout)
	}
	if cfg.Sweep.Interval != 5*time.Minute {
		t.Errorf("sweep interval = %s", cfg.Sweep.Interval)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Errorf("cors origins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.LLMEnabled() {
		t.Error("LLM should be disabled without credentials")
	}
}

func TestParse_YAML(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte(`
port: 8090
database:
  driver: mysql
  host: db.internal
  name: boards
auth:
  human_token_ttl: 1h
sweep:
  enabled: true
  interval: 10m
cors:
  allowed_origins:
    - https://kanban.example.com
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != 8090 {
		t.Errorf("port = %d", cfg.Port)
	}
	if cfg.Database.Driver != "mysql" || cfg.Database.Host != "db.internal" || cfg.Database.Name != "boards" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Auth.HumanTokenTTL != time.Hour {
		t.Errorf("human ttl = %s", cfg.Auth.HumanTokenTTL)
	}
	if !cfg.Sweep.Enabled || cfg.Sweep.Interval != 10*time.Minute {
		t.Errorf("sweep = %+v", cfg.Sweep)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "https://kanban.example.com" {
		t.Errorf("cors = %v", cfg.CORS.AllowedOrigins)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("KANBANX_PORT", "4400")
	t.Setenv("KANBANX_JWT_SECRET", "sekrit")
	t.Setenv("KANBANX_LLM_API_KEY", "key")
	t.Setenv("KANBANX_LLM_ENDPOINT", "https://llm.example.com")

	cfg, err := Parse([]byte("port: 8090\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != 4400 {
		t.Errorf("port = %d, want env override 4400", cfg.Port)
	}
	if cfg.Auth.JWTSecret != "sekrit" {
		t.Errorf("jwt secret = %q", cfg.Auth.JWTSecret)
	}
	if !cfg.LLMEnabled() {
		t.Error("LLM should be enabled with key and endpoint")
	}
}

func TestParse_InvalidDriver(t *testing.T) {
	clearEnv(t)

	_, err := Parse([]byte("database:\n  driver: postgres\n"))
	if err == nil || !strings.Contains(err.Error(), "database.driver") {
		t.Fatalf("err = %v, want driver validation", err)
	}
}

func TestParse_SweepIntervalTooShort(t *testing.T) {
	clearEnv(t)

	_, err := Parse([]byte("sweep:\n  enabled: true\n  interval: 10s\n"))
	if err == nil || !strings.Contains(err.Error(), "sweep.interval") {
		t.Fatalf("err = %v, want sweep validation", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 3001 {
		t.Errorf("port = %d, want defaults", cfg.Port)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: 9000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Port)
	}
}
