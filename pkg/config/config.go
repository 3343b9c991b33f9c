package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/daimatz/jvmload/pkg/classfile"
	"github.com/daimatz/jvmload/pkg/diag"
)

// Config is threaded explicitly through loading; nothing reads it from
// package state.
type Config struct {
	LogLevel        string   `yaml:"logLevel" json:"logLevel"`
	MaxMajorVersion uint16   `yaml:"maxMajorVersion" json:"maxMajorVersion"`
	ClassPath       []string `yaml:"classPath" json:"classPath"`
	JmodPath        string   `yaml:"jmodPath" json:"jmodPath"`
	FailFast        bool     `yaml:"failFast" json:"failFast"`
	Concurrency     int      `yaml:"concurrency" json:"concurrency"`
}

// LoadFile loads configuration from a file (YAML or JSON based on extension).
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var loaded Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &loaded); err != nil {
			return fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			if err := json.Unmarshal(data, &loaded); err != nil {
				return fmt.Errorf("unable to parse config as YAML or JSON")
			}
		}
	}

	c.merge(&loaded)
	return c.Validate()
}

// merge copies the fields set in loaded over c.
func (c *Config) merge(loaded *Config) {
	if loaded.LogLevel != "" {
		c.LogLevel = loaded.LogLevel
	}
	if loaded.MaxMajorVersion != 0 {
		c.MaxMajorVersion = loaded.MaxMajorVersion
	}
	if len(loaded.ClassPath) > 0 {
		c.ClassPath = loaded.ClassPath
	}
	if loaded.JmodPath != "" {
		c.JmodPath = loaded.JmodPath
	}
	if loaded.FailFast {
		c.FailFast = true
	}
	if loaded.Concurrency != 0 {
		c.Concurrency = loaded.Concurrency
	}
}

// Validate reports settings the loader cannot honor.
func (c *Config) Validate() error {
	if _, err := diag.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.MaxMajorVersion < classfile.MinMajorVersion {
		return fmt.Errorf("config: maxMajorVersion %d is below %d", c.MaxMajorVersion, classfile.MinMajorVersion)
	}
	if c.MaxMajorVersion > classfile.DefaultMaxMajorVersion {
		return fmt.Errorf("config: maxMajorVersion %d is above %d", c.MaxMajorVersion, classfile.DefaultMaxMajorVersion)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("config: concurrency %d is negative", c.Concurrency)
	}
	return nil
}

// Level returns the parsed log level, falling back to Warning.
func (c *Config) Level() diag.Level {
	l, err := diag.ParseLevel(c.LogLevel)
	if err != nil {
		return diag.Warning
	}
	return l
}
