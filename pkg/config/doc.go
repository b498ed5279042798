// Package config loads engine configuration from a YAML recipe file plus
// environment variable overrides, the same two-tier pattern (file defaults,
// env wins) used across the example pack's service configs.
package config
