// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// DocumentPaths are document files or directories. check treats each
	// path as its own document; render and serve merge them into one.
	DocumentPaths []string `yaml:"documents"`

	LogFormat       string `yaml:"log_format"`
	LogLevel        string `yaml:"log_level"`
	HealthcheckPort int    `yaml:"healthcheck_port"`

	// ListenAddr is where serve accepts renderer connections.
	ListenAddr string `yaml:"listen"`
	// Watch makes serve reload the document when its files change.
	Watch bool `yaml:"watch"`
	// PermissionTimeout bounds how long serve waits for renderers to
	// answer a permission question.
	PermissionTimeout time.Duration `yaml:"permission_timeout"`

	VariantSeed uint64 `yaml:"variant_seed"`
	EventBuffer int    `yaml:"event_buffer"`

	// StatePath restores essential state before anything runs.
	StatePath string `yaml:"state"`
	// SaveStatePath receives the essential state after render.
	SaveStatePath string `yaml:"save_state"`
	// ScriptPath is a YAML action script replayed by render.
	ScriptPath string `yaml:"script"`
	// OutputFormat selects how render prints the snapshot: json or text.
	OutputFormat string `yaml:"output"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		LogFormat:         "text",
		LogLevel:          "info",
		ListenAddr:        ":8080",
		PermissionTimeout: 30 * time.Second,
		OutputFormat:      "json",
	}
}

// NewConfig validates cfg and returns a copy with normalized values.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.DocumentPaths) == 0 {
		return nil, errors.New("at least one document path is required")
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if _, ok := parseLevel(cfg.LogLevel); !ok {
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	if cfg.OutputFormat != "text" && cfg.OutputFormat != "json" {
		return nil, fmt.Errorf("invalid output %q: must be 'text' or 'json'", cfg.OutputFormat)
	}
	if cfg.HealthcheckPort < 0 {
		return nil, fmt.Errorf("invalid healthcheck-port %d", cfg.HealthcheckPort)
	}
	if cfg.EventBuffer < 0 {
		return nil, fmt.Errorf("invalid event-buffer %d", cfg.EventBuffer)
	}
	if cfg.PermissionTimeout < 0 {
		return nil, fmt.Errorf("invalid permission-timeout %s", cfg.PermissionTimeout)
	}

	return &cfg, nil
}

// LoadConfigFile reads a YAML configuration file over the defaults. Unknown
// keys are an error.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}
