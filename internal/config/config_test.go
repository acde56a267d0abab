package config

import (
	"os"
	"testing"
	"time"
)

func clearGriffinEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		for i := 0; i < len(e); i++ {
			if e[i] == '=' {
				key := e[:i]
				if len(key) > 8 && key[:8] == "GRIFFIN_" {
					t.Setenv(key, "")
					os.Unsetenv(key)
				}
				break
			}
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearGriffinEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want %q", cfg.Environment, "development")
	}
	if cfg.Scheduler.TickInterval != 10*time.Second {
		t.Errorf("Scheduler.TickInterval = %v, want 10s", cfg.Scheduler.TickInterval)
	}
	if cfg.Worker.Concurrency != 4 {
		t.Errorf("Worker.Concurrency = %d, want 4", cfg.Worker.Concurrency)
	}
	if cfg.Events.Adapter != "memory" {
		t.Errorf("Events.Adapter = %q, want %q", cfg.Events.Adapter, "memory")
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q, want %q", cfg.HTTP.Addr, ":8080")
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearGriffinEnv(t)
	t.Setenv("GRIFFIN_ENV", "production")
	t.Setenv("GRIFFIN_WORKER_CONCURRENCY", "16")
	t.Setenv("GRIFFIN_SCHEDULER_TICK_INTERVAL", "5s")
	t.Setenv("GRIFFIN_HTTP_API_KEY_HASH", "deadbeef")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Environment != "production" {
		t.Errorf("Environment = %q, want %q", cfg.Environment, "production")
	}
	if cfg.Worker.Concurrency != 16 {
		t.Errorf("Worker.Concurrency = %d, want 16", cfg.Worker.Concurrency)
	}
	if cfg.Scheduler.TickInterval != 5*time.Second {
		t.Errorf("Scheduler.TickInterval = %v, want 5s", cfg.Scheduler.TickInterval)
	}
}

func TestLoad_InvalidConcurrency(t *testing.T) {
	clearGriffinEnv(t)
	t.Setenv("GRIFFIN_WORKER_CONCURRENCY", "0")

	if _, err := Load(); err == nil {
		t.Error("Load() should fail when worker concurrency is 0")
	}
}

func TestLoad_ProductionRequiresAuth(t *testing.T) {
	clearGriffinEnv(t)
	t.Setenv("GRIFFIN_ENV", "production")

	if _, err := Load(); err == nil {
		t.Error("Load() should fail in production with no API key hash or JWKS URL configured")
	}
}

func TestLoad_KinesisRequiresStreamName(t *testing.T) {
	clearGriffinEnv(t)
	t.Setenv("GRIFFIN_EVENTS_ADAPTER", "kinesis")

	if _, err := Load(); err == nil {
		t.Error("Load() should fail when kinesis adapter has no stream name")
	}
}

func TestLoad_InvalidEventsAdapter(t *testing.T) {
	clearGriffinEnv(t)
	t.Setenv("GRIFFIN_EVENTS_ADAPTER", "sqs")

	if _, err := Load(); err == nil {
		t.Error("Load() should fail for an unrecognized events adapter")
	}
}

func TestGetEnvSlice(t *testing.T) {
	clearGriffinEnv(t)
	t.Setenv("GRIFFIN_HTTP_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.HTTP.CORSAllowedOrigins) != len(want) {
		t.Fatalf("CORSAllowedOrigins = %v, want %v", cfg.HTTP.CORSAllowedOrigins, want)
	}
	for i := range want {
		if cfg.HTTP.CORSAllowedOrigins[i] != want[i] {
			t.Errorf("CORSAllowedOrigins[%d] = %q, want %q", i, cfg.HTTP.CORSAllowedOrigins[i], want[i])
		}
	}
}
