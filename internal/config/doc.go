// Package config provides configuration structures and utilities for the
// crawler: global defaults, validation, and the optional YAML file with
// per-host overrides.
package config
