// Package config loads, normalizes, and validates inboxwatch configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the INBOXWATCH_DECODER environment
// fallback. The Config type centralizes the five stage directories, the
// extension contract, the decoder command template, and the scheduler tuning
// knobs so the daemon and CLI discover them in one pass.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, dot-prefixed extensions, and clear validation errors.
package config
