// Package config loads, normalizes, and validates quire configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// QUIRE_API_TOKEN and QUIRE_RESTART_COMMAND. The Config type centralizes every
// knob the daemon and CLI need so spool, backend, and housekeeping settings are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
