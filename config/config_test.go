package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/metergate/config"
	"github.com/artpar/metergate/domain/plan"
	"github.com/artpar/metergate/domain/subscription"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metergate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
storage:
  driver: sqlite
  dsn: ./test.db
usage:
  batch_size: 50
  flush_interval: 5s
quota:
  expiry_policy: block
logging:
  level: debug
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Usage.BatchSize != 50 || cfg.Usage.FlushInterval != 5*time.Second {
		t.Errorf("usage = %+v", cfg.Usage)
	}
	if cfg.ExpiryPolicy() != subscription.ExpiryBlock {
		t.Errorf("ExpiryPolicy = %v, want block", cfg.ExpiryPolicy())
	}
	// Defaults fill the rest
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want default", cfg.Server.Host)
	}
	if cfg.Usage.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want default 3", cfg.Usage.MaxAttempts)
	}
}

func TestLoad_InvalidDriver(t *testing.T) {
	path := writeConfig(t, "storage:\n  driver: cassandra\n")
	if _, err := config.Load(path); err == nil {
		t.Fatal("want error for unknown driver")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("METERGATE_SERVER_PORT", "7070")
	t.Setenv("METERGATE_LOG_LEVEL", "warn")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestResolveDSN(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://primary")
	t.Setenv("DATABASE_URL", "postgres://fallback")

	cfg := &config.Config{}
	if got := cfg.ResolveDSN(); got != "postgres://primary" {
		t.Errorf("ResolveDSN = %q, want POSTGRES_URL first", got)
	}

	t.Setenv("POSTGRES_URL", "")
	if got := cfg.ResolveDSN(); got != "postgres://fallback" {
		t.Errorf("ResolveDSN = %q, want DATABASE_URL fallback", got)
	}

	cfg.Storage.DSN = "postgres://explicit"
	if got := cfg.ResolveDSN(); got != "postgres://explicit" {
		t.Errorf("ResolveDSN = %q, want configured DSN first", got)
	}
}

func TestCatalogOverride(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: memory
plans:
  - tier: free
    name: Trial
    monthly_token_limit: 100000
    tool_call_limit: 10
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	catalog := cfg.Catalog()
	if got := catalog.Find(plan.TierFree).MonthlyTokenLimit; got != 100_000 {
		t.Errorf("Free limit = %d, want 100000", got)
	}
	if got := catalog.Find(plan.TierPro).MonthlyTokenLimit; got != 5_000_000 {
		t.Errorf("Pro limit = %d, want untouched default", got)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("METERGATE_STORAGE_DRIVER", "memory")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Driver = %q, want memory", cfg.Storage.Driver)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Server.Port)
	}
}
