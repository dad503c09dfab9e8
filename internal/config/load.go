package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FileNames are searched in the working directory, in order
var FileNames = []string{"janitor.yaml", "janitor.yml", ".janitor.yaml", ".janitor.yml"}

// Environment overrides
const (
	EnvProvider    = "JANITOR_AI_PROVIDER"
	EnvModel       = "JANITOR_AI_MODEL"
	EnvAPIKey      = "JANITOR_API_KEY"
	EnvMaxNesting  = "JANITOR_MAX_NESTING"
	EnvMaxAttempts = "JANITOR_MAX_ATTEMPTS"
	EnvDB          = "JANITOR_DB"
)

// Find returns the configuration file to load: explicit when set (it must
// exist), else the first of FileNames in dir, else the user config file.
// It returns "" when nothing is found.
func Find(explicit, dir string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	if user := UserConfigPath(); user != "" {
		if _, err := os.Stat(user); err == nil {
			return user, nil
		}
	}
	return "", nil
}

// UserConfigPath is $XDG_CONFIG_HOME/code-janitor/config.yaml (or the
// platform equivalent); empty when it cannot be determined
func UserConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "code-janitor", "config.yaml")
}

// Load finds and reads the configuration (see Find), applies environment
// overrides and validates the result
func Load(explicit, dir string) (*Config, error) {
	path, err := Find(explicit, dir)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		cfg.Source = path
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over cfg, so keys absent from data keep their current
// values. Unknown keys are errors.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv applies the JANITOR_* overrides
func ApplyEnv(cfg *Config) error {
	if err := parseEnvString(EnvProvider, &cfg.AI.Provider); err != nil {
		return err
	}
	if err := parseEnvString(EnvModel, &cfg.AI.Model); err != nil {
		return err
	}
	if err := parseEnvString(EnvAPIKey, &cfg.AI.APIKey); err != nil {
		return err
	}
	if err := parseEnvInt(EnvMaxNesting, &cfg.Analysis.Thresholds.MaxNesting); err != nil {
		return err
	}
	if err := parseEnvInt(EnvMaxAttempts, &cfg.Refactor.MaxAttempts); err != nil {
		return err
	}
	return parseEnvString(EnvDB, &cfg.Storage.DB)
}

// Marshal renders cfg as YAML (used by janitor init)
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString reads a string from an environment variable
func parseEnvString(key string, dest *string) error {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
	return nil
}
