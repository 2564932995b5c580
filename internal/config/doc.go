// Package config loads, normalizes, and validates audioclean configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and applies AUDIOCLEAN_* environment
// overrides. The Config type centralizes every knob the scanner, planner,
// applier and CLI need, so library roots, state directories and policy enums
// are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, lowercased policy names, and clear validation errors.
package config
