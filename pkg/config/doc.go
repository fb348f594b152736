// Package config loads application configuration. Values come from three
// layers: built-in defaults, an optional YAML file, and WARDEN_* environment
// variables, with the environment winning.
package config
