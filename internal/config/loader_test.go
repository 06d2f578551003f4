package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved = %s, want %s", resolved, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config was not written: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.DatabaseDriver != DriverSQLite || !cfg.AdminEcho {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
addr: ":9000"
claim_attempts: 3
admin_echo: false
waiting_ttl: 30s
operators:
  - username: root
    password_hash: "$2a$10$abcdefghijklmnopqrstuv"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STRANGERCHAT_ADDR", ":9100")
	t.Setenv("STRANGERCHAT_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Addr != ":9100" {
		t.Errorf("env should override file: addr = %s", cfg.Addr)
	}
	if cfg.ClaimAttempts != 3 || cfg.AdminEcho {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.WaitingTTL != 30*time.Second {
		t.Errorf("waiting_ttl = %s, want 30s", cfg.WaitingTTL)
	}
	if len(cfg.Operators) != 1 || cfg.Operators[0].Username != "root" {
		t.Errorf("operators not decoded: %+v", cfg.Operators)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("cors origins = %q", cfg.CORSAllowedOrigins)
	}
	if cfg.SendBuffer != Default().SendBuffer {
		t.Errorf("unset keys should keep defaults, send_buffer = %d", cfg.SendBuffer)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown driver", mutate: func(c *Config) { c.DatabaseDriver = "mysql" }},
		{name: "postgres without url", mutate: func(c *Config) { c.DatabaseDriver = DriverPostgres }},
		{name: "unknown broadcast", mutate: func(c *Config) { c.Broadcast = "nats" }},
		{name: "empty secret", mutate: func(c *Config) { c.JWTSecret = "" }},
		{name: "zero reap interval", mutate: func(c *Config) { c.ReapInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestUpdateFrom(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":1", LogLevel: "debug"})
	if cfg.Addr != ":1" || cfg.LogLevel != "debug" || cfg.DatabasePath != Default().DatabasePath {
		t.Fatalf("unexpected result: %+v", cfg)
	}
}
