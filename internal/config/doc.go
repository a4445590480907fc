// Package config loads, normalizes, and validates murmur configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MURMUR_TTS_API_KEY and NTFY_TOPIC. The Config type centralizes every knob
// the daemon and CLI need so workspace directories, the speech provider and
// the publish target are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
