// Package config loads, normalizes, and validates the TOML configuration for
// the lectern worker. Defaults come from Default(); Load layers a config file
// over those defaults, expands paths, and rejects unusable values.
package config
