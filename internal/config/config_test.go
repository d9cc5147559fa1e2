package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"basic_config": {"server_address": ":9000"},
		"completion": {"api_key": "from-file"},
		"database": {"driver": "sqlite3", "dsn": "chat.db"},
		"auth": {"jwt_secret": "secret"}
	}`)
	t.Setenv("CHAT_OPENAI_BASE_URL", "https://llm.example.com/v1")
	t.Setenv("CHAT_OPENAI_API_KEY", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":9000" {
		t.Fatalf("server address = %q", cfg.BasicConfig.ServerAddress)
	}
	if cfg.Completion.BaseURL != "https://llm.example.com/v1" {
		t.Fatalf("base url = %q", cfg.Completion.BaseURL)
	}
	if cfg.Completion.APIKey != "from-env" {
		t.Fatalf("api key should be overridden by env, got %q", cfg.Completion.APIKey)
	}
	if cfg.Completion.Model != "gpt-4.1-nano" {
		t.Fatalf("default model = %q", cfg.Completion.Model)
	}
	if cfg.Database.DSN != filepath.Join(filepath.Dir(path), "chat.db") {
		t.Fatalf("sqlite dsn not resolved against config dir: %q", cfg.Database.DSN)
	}
	if cfg.Queue.Backend != "memory" {
		t.Fatalf("default queue backend = %q", cfg.Queue.Backend)
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("CHAT_OPENAI_API_KEY", "")
	t.Setenv("JINDALCHAT_JWT_SECRET", "")
	path := writeConfig(t, `{"completion": {"api_key": "k"}}`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Fatalf("expected jwt_secret error, got %v", err)
	}

	path = writeConfig(t, `{"auth": {"jwt_secret": "s"}}`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected api_key error, got %v", err)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestValidateQueueBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.JWTSecret = "s"
	cfg.Completion.APIKey = "k"

	cfg.Queue.Backend = "redis"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("redis backend without redis host should fail")
	}
	cfg.Redis.Host = "127.0.0.1"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("redis backend: %v", err)
	}

	cfg.Queue.Backend = "nats"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("nats backend without url should fail")
	}
	cfg.NATS.URL = "nats://127.0.0.1:4222"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("nats backend: %v", err)
	}

	cfg.Queue.Backend = "kafka"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown backend should fail")
	}
}

func TestRedisAddrOverride(t *testing.T) {
	path := writeConfig(t, `{"completion": {"api_key": "k"}, "auth": {"jwt_secret": "s"}}`)
	t.Setenv("JINDALCHAT_REDIS_ADDR", "cache.internal:6380")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Redis.Host != "cache.internal" || cfg.Redis.Port != 6380 {
		t.Fatalf("redis override = %s:%d", cfg.Redis.Host, cfg.Redis.Port)
	}
	if !cfg.Redis.Enabled() {
		t.Fatalf("redis should be enabled")
	}
}
