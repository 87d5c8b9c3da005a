package config

import "time"

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = ".personaengine.yml"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath: ".personaengine/persona.db",
		LogLevel:     "info",
		Security: SecurityConfig{
			Level:    "medium",
			Adaptive: true,
			Window:   10 * time.Minute,
		},
		Tokens: TokensConfig{
			Model:       "gpt-4",
			MaxTokens:   4000,
			Compression: "medium",
			Tokenizer:   "tiktoken",
		},
		Delegation: DelegationConfig{
			MinMatchPercent: 30,
			MaxCandidates:   5,
			BusyThreshold:   3,
		},
		Lineage: LineageConfig{
			MaxDepth: 5,
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}
