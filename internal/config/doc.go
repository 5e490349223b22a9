// Package config loads, normalizes, and validates dayrun configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts and environment variables), reads TOML files, and honours the
// DAYRUN_STOP_FILE and DAYRUN_LOG_LEVEL environment fallbacks. Operators may
// also assign individual keys through Set, either by their bare names
// (stop_file, retry_max_age_days, ...) or as dotted section.key paths.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear configuration errors.
package config
