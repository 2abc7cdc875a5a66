package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("BOOKING_TIMEOUT", "")
	if d := Duration("BOOKING_TIMEOUT", 5*time.Second); d != 5*time.Second {
		t.Fatalf("expected fallback, got %s", d)
	}
	t.Setenv("BOOKING_TIMEOUT", "7")
	if d := Duration("BOOKING_TIMEOUT", time.Second); d != 7*time.Second {
		t.Fatalf("expected 7s, got %s", d)
	}
	t.Setenv("BOOKING_TIMEOUT", "250ms")
	if d := Duration("BOOKING_TIMEOUT", time.Second); d != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", d)
	}
	t.Setenv("BOOKING_TIMEOUT", "soon")
	if d := Duration("BOOKING_TIMEOUT", time.Second); d != time.Second {
		t.Fatalf("expected fallback for garbage, got %s", d)
	}
}

func TestIntAndBool(t *testing.T) {
	t.Setenv("AVAILABLE_DAYS_MAX", "30")
	if n := Int("AVAILABLE_DAYS_MAX", 90); n != 30 {
		t.Fatalf("expected 30, got %d", n)
	}
	t.Setenv("AVAILABLE_DAYS_MAX", "x")
	if n := Int("AVAILABLE_DAYS_MAX", 90); n != 90 {
		t.Fatalf("expected fallback 90, got %d", n)
	}
	t.Setenv("DB_MIGRATE", "Yes")
	if !Bool("DB_MIGRATE", false) {
		t.Fatal("expected true")
	}
	t.Setenv("DB_MIGRATE", "0")
	if Bool("DB_MIGRATE", true) {
		t.Fatal("expected false")
	}
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("DOTENV_ONLY_KEY=from-file\nDOTENV_SET_KEY=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("DOTENV_SET_KEY", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("DOTENV_ONLY_KEY") })

	if err := LoadDotenv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotenv: %v", err)
	}
	if got := os.Getenv("DOTENV_ONLY_KEY"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("DOTENV_SET_KEY"); got != "from-env" {
		t.Fatalf("existing env must win, got %q", got)
	}
}

func TestList(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	got := List("KAFKA_BROKERS", "")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("unexpected list: %v", got)
	}
}

func TestFloat(t *testing.T) {
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	if f := Float("OTEL_SAMPLING_RATIO", 1); f != 0.25 {
		t.Fatalf("expected 0.25, got %v", f)
	}
	t.Setenv("OTEL_SAMPLING_RATIO", "most")
	if f := Float("OTEL_SAMPLING_RATIO", 1); f != 1 {
		t.Fatalf("expected fallback, got %v", f)
	}
}
