package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateBackend(); err != nil {
		return err
	}
	if err := c.validateHousekeeping(); err != nil {
		return err
	}
	if err := c.validateJournal(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.SpoolDir == "" {
		return errors.New("paths.spool_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateBackend() error {
	if c.Backend.Port <= 0 || c.Backend.Port > 65535 {
		return fmt.Errorf("backend.port must be between 1 and 65535, got %d", c.Backend.Port)
	}
	if err := ensurePositive([]namedValue{
		{"backend.connect_attempts", c.Backend.ConnectAttempts},
		{"backend.conversion_timeout_seconds", c.Backend.ConversionTimeoutSeconds},
		{"backend.max_document_parts", c.Backend.MaxDocumentParts},
	}); err != nil {
		return err
	}
	if c.Backend.ConnectBackoffSeconds < 0 {
		return errors.New("backend.connect_backoff_seconds must be >= 0")
	}
	if c.Backend.RestartGraceSeconds < 0 {
		return errors.New("backend.restart_grace_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateHousekeeping() error {
	return ensurePositive([]namedValue{
		{"housekeeping.interval_seconds", c.Housekeeping.IntervalSeconds},
		{"housekeeping.expiry_seconds", c.Housekeeping.ExpirySeconds},
	})
}

func (c *Config) validateJournal() error {
	if c.Journal.Enabled && c.Journal.MaxEntries <= 0 {
		return errors.New("journal.max_entries must be positive when journal.enabled is true")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	parsed, err := url.Parse(topic)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !slices.Contains([]string{"console", "json"}, c.Logging.Format) {
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}

type namedValue struct {
	key   string
	value int
}

func ensurePositive(values []namedValue) error {
	for _, v := range values {
		if v.value <= 0 {
			return fmt.Errorf("%s must be positive", v.key)
		}
	}
	return nil
}
