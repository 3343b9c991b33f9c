// Package config provides configuration for class loading: log level,
// version ceiling, class path and concurrency. Values come from defaults,
// an optional YAML or JSON file, and command-line flags, in that order.
package config

import "github.com/daimatz/jvmload/pkg/classfile"

// Default values.
const (
	DefaultLogLevel    = "WARNING"
	DefaultConcurrency = 4
)

// DefaultClassPath is searched when no class path is configured.
func DefaultClassPath() []string {
	return []string{"."}
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		LogLevel:        DefaultLogLevel,
		MaxMajorVersion: classfile.DefaultMaxMajorVersion,
		ClassPath:       DefaultClassPath(),
		Concurrency:     DefaultConcurrency,
	}
}
