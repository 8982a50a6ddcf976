// Package config loads, normalizes, and validates metapipe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GAME_VERSION. The Config type centralizes every knob the CLI and the bundler
// plugin need so the source tree, the storage cache, and the distribution
// directory are resolved in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
