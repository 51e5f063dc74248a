package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// PathEnv names the environment variable consulted when no --config flag
// is given.
const PathEnv = "IAMGATE_CONFIG"

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewFileNotFoundError(path)
		}
		return errors.Wrap(errors.ErrCodeConfigRead, errors.KindInput, "read config file", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.NewFileUnmarshalError(path, "YAML", err)
	}
	return nil
}

// Marshal renders the configuration as YAML. Secrets are omitted.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}
