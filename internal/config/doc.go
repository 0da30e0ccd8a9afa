// Package config provides application configuration loaded from environment
// variables (POS_ prefix) and an optional YAML file next to the executable,
// plus resolution of all filesystem paths used by the application.
//
// Paths are always resolved relative to the executable directory. The
// current working directory is never used, so the application behaves the
// same regardless of how it is launched.
package config
