// Package config provides configuration loading and structs for glyphocr.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Classify ClassifyConfig `yaml:"classify"`
	Generate GenerateConfig `yaml:"generate"`
	Watch    WatchConfig    `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the run history database location. Empty disables recording.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ClassifyConfig holds classification settings shared by the CLI and the server.
type ClassifyConfig struct {
	ManifestName string `yaml:"manifest_name"`
	Invert       bool   `yaml:"invert"`
	Output       string `yaml:"output"`
}

// GenerateConfig holds synthesizer settings. Seed 0 seeds from the clock.
type GenerateConfig struct {
	Seed uint64 `yaml:"seed"`
}

// WatchConfig holds training directory watch settings.
type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
}

// Default returns a config with every default applied, used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads and parses the config file at path, applies defaults, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	if cfg.Storage.DatabasePath != "" {
		cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, filepath.Dir(path))
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" is the home directory. Other relative paths are left as given.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
