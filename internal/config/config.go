// Package config loads and saves the scanner's YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the scan settings persisted between invocations. Flags
// override whatever the file says.
type Config struct {
	// Workers sizes the header and detail worker pools; 0 means one per CPU.
	Workers int `yaml:"workers"`
	// Recurse walks subdirectories of the scan root.
	Recurse bool `yaml:"recurse"`
	// KnownBadPatterns are base-name substrings of vendor files whose
	// decode failures are skipped instead of aborting the run.
	KnownBadPatterns []string `yaml:"known_bad_patterns"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Workers:          0,
		Recurse:          true,
		KnownBadPatterns: []string{"IMPAC"},
	}
}

// Load reads a Config from path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Workers < 0 {
		return Config{}, fmt.Errorf("config %s: workers must not be negative", path)
	}
	return cfg, nil
}

// Save writes cfg to path, creating or truncating the file.
func Save(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
