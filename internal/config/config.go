package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix marks environment variables that override file settings.
// Nested keys are separated by a double underscore, so
// PERSONAENGINE_SECURITY__LEVEL sets security.level.
const EnvPrefix = "PERSONAENGINE_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// envKey maps PERSONAENGINE_DELEGATION__MAX_CANDIDATES to
// delegation.max_candidates.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var (
	validLevels       = map[string]bool{"low": true, "medium": true, "strict": true}
	validCompressions = map[string]bool{"light": true, "medium": true, "heavy": true}
	validTokenizers   = map[string]bool{"tiktoken": true, "approx": true}
	validLogLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
)

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}
	if c.LogLevel != "" && !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	if !validLevels[c.Security.Level] {
		return fmt.Errorf("invalid security.level %q: must be one of low, medium, strict", c.Security.Level)
	}
	if c.Security.Window <= 0 {
		return fmt.Errorf("security.window must be positive")
	}

	if c.Tokens.MaxTokens < 0 {
		return fmt.Errorf("tokens.max_tokens must be non-negative")
	}
	if c.Tokens.Compression != "" && !validCompressions[c.Tokens.Compression] {
		return fmt.Errorf("invalid tokens.compression %q: must be one of light, medium, heavy", c.Tokens.Compression)
	}
	if c.Tokens.Tokenizer != "" && !validTokenizers[c.Tokens.Tokenizer] {
		return fmt.Errorf("invalid tokens.tokenizer %q: must be tiktoken or approx", c.Tokens.Tokenizer)
	}

	if c.Delegation.MinMatchPercent < 0 || c.Delegation.MinMatchPercent > 100 {
		return fmt.Errorf("delegation.min_match_percent must be between 0 and 100")
	}
	if c.Delegation.MaxCandidates < 1 {
		return fmt.Errorf("delegation.max_candidates must be at least 1")
	}
	if c.Delegation.BusyThreshold < 1 {
		return fmt.Errorf("delegation.busy_threshold must be at least 1")
	}

	if c.Lineage.MaxDepth < 1 {
		return fmt.Errorf("lineage.max_depth must be at least 1")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}
