package config

import (
	"os"
	"path/filepath"

	"github.com/lnittman/turbokit-acp/errors"
	"gopkg.in/yaml.v3"
)

// FilesystemAccess restricts where the scaffold engine may write. Patterns
// are doublestar globs matched against paths relative to the session's
// working directory.
type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

// Scaffold holds defaults applied when a scaffold command leaves the project
// name or feature set unspecified.
type Scaffold struct {
	DefaultName     string   `yaml:"default_name"`
	DefaultFeatures []string `yaml:"default_features"`
}

type Config struct {
	Scaffold         Scaffold         `yaml:"scaffold"`
	FilesystemAccess FilesystemAccess `yaml:"filesystem_access"`
}

// Load loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func Load() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	home, _ := os.UserHomeDir()
	return load(home, wd)
}

func load(home, wd string) (*Config, error) {
	cfg := defaults()

	// User-level config first
	if home != "" {
		userConfigPath := filepath.Join(home, ".turbokit", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Project-level config, overriding user-level
	projectConfigPath := filepath.Join(wd, ".turbokit", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Scaffold: Scaffold{
			DefaultName:     "new-project",
			DefaultFeatures: []string{"auth", "payments", "email"},
		},
		FilesystemAccess: FilesystemAccess{
			// The .turbokit directory holds config and traces
			Hidden: []string{".turbokit", ".turbokit/**"},
		},
	}
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Note: Unmarshal overwrites fields present in the YAML. This provides a
	// simple merge where project-level config replaces user-level.
	return yaml.Unmarshal(data, cfg)
}
