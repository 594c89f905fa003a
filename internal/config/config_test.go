package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"quire/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(tempHome, ".config", "quire", "config.toml") {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantSpool := filepath.Join(tempHome, ".local", "share", "quire", "spool")
	if cfg.Paths.SpoolDir != wantSpool {
		t.Fatalf("unexpected spool dir: got %q want %q", cfg.Paths.SpoolDir, wantSpool)
	}
	if cfg.Paths.APIBind != "127.0.0.1:8989" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.BackendAddress() != "127.0.0.1:2003" {
		t.Fatalf("unexpected backend address: %q", cfg.BackendAddress())
	}
	if cfg.Backend.MaxDocumentParts != 2175 {
		t.Fatalf("unexpected part threshold: %d", cfg.Backend.MaxDocumentParts)
	}
	if cfg.ConversionTimeout().Seconds() != 100 {
		t.Fatalf("unexpected conversion timeout: %s", cfg.ConversionTimeout())
	}
	if cfg.SpoolExpiry().Seconds() != 1800 || cfg.HousekeepingInterval().Seconds() != 60 {
		t.Fatalf("unexpected housekeeping defaults: %+v", cfg.Housekeeping)
	}
	if !cfg.Journal.Enabled {
		t.Fatal("expected journal enabled by default")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.SpoolDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "quire.toml")

	type payload struct {
		Paths struct {
			SpoolDir string `toml:"spool_dir"`
		} `toml:"paths"`
		Backend struct {
			Port                     int `toml:"port"`
			ConversionTimeoutSeconds int `toml:"conversion_timeout_seconds"`
		} `toml:"backend"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.SpoolDir = filepath.Join(tempDir, "spool")
	custom.Backend.Port = 2100
	custom.Backend.ConversionTimeoutSeconds = 30
	custom.Logging.Format = " JSON "
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.SpoolDir != custom.Paths.SpoolDir {
		t.Fatalf("expected spool dir override, got %q", cfg.Paths.SpoolDir)
	}
	if cfg.Backend.Port != 2100 || cfg.Backend.ConversionTimeoutSeconds != 30 {
		t.Fatalf("expected backend overrides, got %+v", cfg.Backend)
	}
	if cfg.Backend.ConnectAttempts != 3 {
		t.Fatalf("expected untouched default connect attempts, got %d", cfg.Backend.ConnectAttempts)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized json format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "quire.toml")
	if err := os.WriteFile(configPath, []byte("[backend]\nprot = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestEnvFallbacksFillEmptyValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("QUIRE_API_TOKEN", " secret ")
	t.Setenv("QUIRE_RESTART_COMMAND", "systemctl --user restart unoserver")
	t.Setenv("QUIRE_NTFY_TOPIC", "https://ntfy.example/quire")

	configPath := filepath.Join(t.TempDir(), "quire.toml")
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.Token != "secret" {
		t.Errorf("expected token from env, got %q", cfg.API.Token)
	}
	if cfg.Backend.RestartCommand != "systemctl --user restart unoserver" {
		t.Errorf("expected restart command from env, got %q", cfg.Backend.RestartCommand)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/quire" {
		t.Errorf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.NotifyTimeout() <= 0 {
		t.Errorf("expected default notify timeout, got %s", cfg.NotifyTimeout())
	}
}

func TestFileValueWinsOverEnvFallback(t *testing.T) {
	t.Setenv("QUIRE_API_TOKEN", "env-token")
	configPath := filepath.Join(t.TempDir(), "quire.toml")
	if err := os.WriteFile(configPath, []byte("[api]\ntoken = \"file-token\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.API.Token != "file-token" {
		t.Fatalf("expected file token, got %q", cfg.API.Token)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "restart_command") {
		t.Fatalf("sample config missing restart_command: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	want := config.Default()
	if cfg.Backend != want.Backend || cfg.Housekeeping != want.Housekeeping || cfg.Journal != want.Journal {
		t.Fatalf("sample drifted from defaults: %+v", cfg)
	}
	if !strings.Contains(cfg.Paths.SpoolDir, "quire") {
		t.Fatalf("expected spool dir to contain quire, got %q", cfg.Paths.SpoolDir)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero port", func(c *config.Config) { c.Backend.Port = 0 }},
		{"port out of range", func(c *config.Config) { c.Backend.Port = 70000 }},
		{"zero attempts", func(c *config.Config) { c.Backend.ConnectAttempts = 0 }},
		{"zero timeout", func(c *config.Config) { c.Backend.ConversionTimeoutSeconds = 0 }},
		{"zero part limit", func(c *config.Config) { c.Backend.MaxDocumentParts = 0 }},
		{"negative backoff", func(c *config.Config) { c.Backend.ConnectBackoffSeconds = -1 }},
		{"zero interval", func(c *config.Config) { c.Housekeeping.IntervalSeconds = 0 }},
		{"zero expiry", func(c *config.Config) { c.Housekeeping.ExpirySeconds = 0 }},
		{"journal without cap", func(c *config.Config) { c.Journal.MaxEntries = 0 }},
		{"bad bind", func(c *config.Config) { c.Paths.APIBind = "localhost" }},
		{"ntfy topic not a url", func(c *config.Config) { c.Notifications.NtfyTopic = "my-topic" }},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }},
		{"bad level", func(c *config.Config) { c.Logging.Level = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	cfg.Journal.Enabled = false
	cfg.Journal.MaxEntries = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled journal should not require max_entries: %v", err)
	}

	cfg = config.Default()
	cfg.Notifications.NtfyTopic = "https://ntfy.sh/quire-alerts"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("https topic should validate: %v", err)
	}
}
