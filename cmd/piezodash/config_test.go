package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// resetPiezoEnv clears PIEZO_* variables for the test and restores them after.
func resetPiezoEnv(t *testing.T) {
	t.Helper()

	original := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "PIEZO_") {
			continue
		}
		original[key] = value
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}

	t.Cleanup(func() {
		for key, value := range original {
			if err := os.Setenv(key, value); err != nil {
				t.Fatalf("restore %s: %v", key, err)
			}
		}
	})
}

func TestLoadConfig_Defaults(t *testing.T) {
	resetPiezoEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.BufferCapacity != 50 {
		t.Errorf("BufferCapacity = %d, want 50", cfg.BufferCapacity)
	}
	if cfg.TickInterval != 500*time.Millisecond {
		t.Errorf("TickInterval = %s, want 500ms", cfg.TickInterval)
	}
	if cfg.ReadTimeout > cfg.TickInterval {
		t.Errorf("ReadTimeout %s exceeds TickInterval %s", cfg.ReadTimeout, cfg.TickInterval)
	}
	if cfg.Source != sourceStatic {
		t.Errorf("Source = %q, want %q", cfg.Source, sourceStatic)
	}
	if cfg.SerialBaud != 115200 {
		t.Errorf("SerialBaud = %d, want 115200", cfg.SerialBaud)
	}
	if cfg.HistoryEnabled || cfg.APIEnabled || cfg.BackupEnabled {
		t.Error("history, API and snapshots should be off by default")
	}
	if cfg.BackupKeepLast <= 0 || cfg.BackupInterval <= 0 {
		t.Errorf("snapshot defaults = %d / %s, want positive", cfg.BackupKeepLast, cfg.BackupInterval)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	resetPiezoEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("PIEZO_TICK_INTERVAL", "1s")

	path := writeTempConfig(t, `
buffer-capacity: 120
read-timeout: 750ms
source: serial
serial-port: /dev/ttyUSB0
i2c-address: 0x49
db-path: ~/piezo/history.duckdb
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.BufferCapacity != 120 {
		t.Errorf("BufferCapacity = %d, want 120", cfg.BufferCapacity)
	}
	if cfg.TickInterval != time.Second {
		t.Errorf("TickInterval = %s, want 1s from env", cfg.TickInterval)
	}
	if cfg.ReadTimeout != 750*time.Millisecond {
		t.Errorf("ReadTimeout = %s, want 750ms", cfg.ReadTimeout)
	}
	if cfg.I2CAddress != 0x49 {
		t.Errorf("I2CAddress = %#x, want 0x49", cfg.I2CAddress)
	}
	if want := filepath.Join(home, "piezo", "history.duckdb"); cfg.DBPath != want {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, want)
	}
	if cfg.ConfigPath != path {
		t.Errorf("ConfigPath = %q, want %q", cfg.ConfigPath, path)
	}
}

func TestLoadConfig_ReadTimeoutFollowsShortTick(t *testing.T) {
	resetPiezoEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PIEZO_TICK_INTERVAL", "200ms")

	cfg, err := loadConfig(writeTempConfig(t, "source: static\n"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.ReadTimeout != 200*time.Millisecond {
		t.Errorf("ReadTimeout = %s, want 200ms", cfg.ReadTimeout)
	}

	t.Setenv("PIEZO_READ_TIMEOUT", "300ms")
	_, err = loadConfig(writeTempConfig(t, "source: static\n"))
	var cfgErr *model.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "read-timeout" {
		t.Fatalf("explicit read-timeout above tick: err = %v, want read-timeout ConfigError", err)
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantField string
	}{
		{"zero capacity", "buffer-capacity: 0", "buffer-capacity"},
		{"negative interval", "tick-interval: -1s", "tick-interval"},
		{"timeout above interval", "tick-interval: 500ms\nread-timeout: 600ms", "read-timeout"},
		{"unknown source", "source: carrier-pigeon", "source"},
		{"serial without port", "source: serial", "serial-port"},
		{"replay without path", "source: replay\nreplay-path: \"\"", "replay-path"},
		{"bad tcp addr", "source: tcp\ntcp-addr: nowhere", "tcp-addr"},
		{"bad ads channel", "source: ads1115\nads-channel: 4", "ads-channel"},
		{"bad api port", "api-enabled: true\napi-addr: 127.0.0.1:99999", "api-addr"},
		{"record over replay", "source: replay\nreplay-path: /tmp/s.jsonl\nrecord-path: /tmp/s.jsonl", "record-path"},
		{"snapshots without history", "backup-enabled: true", "backup-enabled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetPiezoEnv(t)
			t.Setenv("HOME", t.TempDir())

			_, err := loadConfig(writeTempConfig(t, tt.yaml))
			var cerr *model.ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("loadConfig error = %v, want *model.ConfigError", err)
			}
			if cerr.Field != tt.wantField {
				t.Fatalf("ConfigError.Field = %q, want %q", cerr.Field, tt.wantField)
			}
		})
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	resetPiezoEnv(t)
	t.Setenv("HOME", t.TempDir())

	if _, err := loadConfig(writeTempConfig(t, "buffer-capacity: [unclosed")); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}
