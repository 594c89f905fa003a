package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	SpoolDir string `toml:"spool_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
}

// API contains configuration for the JSON-RPC listener.
type API struct {
	Token string `toml:"token"`
}

// Backend contains configuration for the document engine listener and its
// restart hook.
type Backend struct {
	Host                     string `toml:"host"`
	Port                     int    `toml:"port"`
	UnoconvertBinary         string `toml:"unoconvert_binary"`
	RestartCommand           string `toml:"restart_command"`
	ConnectAttempts          int    `toml:"connect_attempts"`
	ConnectBackoffSeconds    int    `toml:"connect_backoff_seconds"`
	RestartGraceSeconds      int    `toml:"restart_grace_seconds"`
	ConversionTimeoutSeconds int    `toml:"conversion_timeout_seconds"`
	MaxDocumentParts         int    `toml:"max_document_parts"`
}

// Housekeeping controls spool expiry.
type Housekeeping struct {
	IntervalSeconds int `toml:"interval_seconds"`
	ExpirySeconds   int `toml:"expiry_seconds"`
}

// Journal controls the call history database.
type Journal struct {
	Enabled    bool `toml:"enabled"`
	MaxEntries int  `toml:"max_entries"`
}

// Notifications configures ntfy alerts for backend recovery events.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for quire.
//
// Configuration sections by subsystem:
//   - Paths: spool and log directories, API bind address
//   - API: optional bearer token
//   - Backend: engine listener, unoconvert client, restart hook, limits
//   - Housekeeping: spool sweep cadence and expiry window
//   - Journal: call history retention
//   - Notifications: ntfy alerts when the backend is restarted
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Backend       Backend       `toml:"backend"`
	Housekeeping  Housekeeping  `toml:"housekeeping"`
	Journal       Journal       `toml:"journal"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("quire.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the spool and log directories. The spool is
// private to the daemon user.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.SpoolDir, 0o700); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.SpoolDir, err)
	}
	if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.LogDir, err)
	}
	return nil
}

// BackendAddress returns host:port of the engine listener.
func (c *Config) BackendAddress() string {
	return net.JoinHostPort(c.Backend.Host, strconv.Itoa(c.Backend.Port))
}

// ConversionTimeout is the wall-clock limit of one backend span.
func (c *Config) ConversionTimeout() time.Duration {
	return time.Duration(c.Backend.ConversionTimeoutSeconds) * time.Second
}

// ConnectBackoff is the fixed wait between connection attempts.
func (c *Config) ConnectBackoff() time.Duration {
	return time.Duration(c.Backend.ConnectBackoffSeconds) * time.Second
}

// RestartGrace is how long the engine gets to come back after a restart.
func (c *Config) RestartGrace() time.Duration {
	return time.Duration(c.Backend.RestartGraceSeconds) * time.Second
}

// HousekeepingInterval is the spool sweep cadence.
func (c *Config) HousekeepingInterval() time.Duration {
	return time.Duration(c.Housekeeping.IntervalSeconds) * time.Second
}

// SpoolExpiry is the age after which spool entries are swept.
func (c *Config) SpoolExpiry() time.Duration {
	return time.Duration(c.Housekeeping.ExpirySeconds) * time.Second
}

// NotifyTimeout bounds one ntfy request.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeoutSeconds) * time.Second
}

// LogPath returns the daemon log file written by the file sink.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "quire.log")
}

// JournalPath returns the location of the call journal database.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.LogDir, "journal.db")
}

// LockPath returns the single-instance lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "quired.lock")
}

// PIDPath returns the daemon pid file path.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "quired.pid")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
