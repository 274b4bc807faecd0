package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, env, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config."+env+".yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadFile(t *testing.T) {
	dir := writeConfig(t, "test", `
server:
  http_port: 4001
  allowed_origins: ["https://app.example.com"]
auth:
  mode: hmac
  secret: s3cret
store:
  driver: memory
  ttl: 90s
events:
  driver: kafka
kafka:
  brokers: ["k1:9092", "k2:9092"]
`)
	cfg, used, err := Load("test", dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.HasSuffix(used, "config.test.yaml") {
		t.Fatalf("config file used = %q", used)
	}
	if cfg.Server.HTTPPort != 4001 || cfg.Server.AllowedOrigins[0] != "https://app.example.com" {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Store.Driver != "memory" || cfg.Store.TTL != 90*time.Second || cfg.Store.KeyPrefix != "user:status:" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Topic != "relay.presence.change" {
		t.Fatalf("kafka = %+v", cfg.Kafka)
	}
	if cfg.Auth.CookieName != "__session" || cfg.WS.SendBuffer != 256 {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Auth, cfg.WS)
	}
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("RELAY_AUTH_SECRET", "from-env")
	t.Setenv("RELAY_SERVER_HTTP_PORT", "5005")

	cfg, used, err := Load("missing", t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if used != "" {
		t.Fatalf("unexpected config file %q", used)
	}
	if cfg.Auth.Secret != "from-env" || cfg.Server.HTTPPort != 5005 {
		t.Fatalf("env override ignored: %+v %+v", cfg.Auth, cfg.Server)
	}
	if cfg.Store.Driver != "redis" || cfg.Redis.Addr == "" || cfg.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server: ServerConfig{HTTPPort: 3001},
			Auth:   AuthConfig{Mode: "hmac", Secret: "x"},
			Store:  StoreConfig{Driver: "memory"},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }},
		{"hmac without secret", func(c *Config) { c.Auth.Secret = "" }},
		{"jwks without url", func(c *Config) { c.Auth.Mode = "jwks" }},
		{"unknown auth mode", func(c *Config) { c.Auth.Mode = "basic" }},
		{"unknown store", func(c *Config) { c.Store.Driver = "etcd" }},
		{"redis without addr", func(c *Config) { c.Store.Driver = "redis" }},
		{"kafka without brokers", func(c *Config) { c.Events.Driver = "kafka" }},
		{"unknown events driver", func(c *Config) { c.Events.Driver = "rabbit" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if cfg.WS.SendBuffer != 256 || cfg.WS.MaxMessageSize != 64*1024 {
		t.Fatalf("ws defaults = %+v", cfg.WS)
	}
}
