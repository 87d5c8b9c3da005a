package config

import "time"

// Config is the top-level persona engine configuration, corresponding to
// .personaengine.yml.
type Config struct {
	DatabasePath string            `yaml:"database_path" koanf:"database_path"`
	LogLevel     string            `yaml:"log_level" koanf:"log_level"`
	Security     SecurityConfig    `yaml:"security" koanf:"security"`
	Tokens       TokensConfig      `yaml:"tokens" koanf:"tokens"`
	Delegation   DelegationConfig  `yaml:"delegation" koanf:"delegation"`
	Lineage      LineageConfig     `yaml:"lineage" koanf:"lineage"`
	Permissions  PermissionsConfig `yaml:"permissions" koanf:"permissions"`
	Server       ServerConfig      `yaml:"server" koanf:"server"`
}

// SecurityConfig configures the prompt security gate.
type SecurityConfig struct {
	Level        string        `yaml:"level" koanf:"level"`
	RejectUnsafe bool          `yaml:"reject_unsafe" koanf:"reject_unsafe"`
	Adaptive     bool          `yaml:"adaptive" koanf:"adaptive"`
	Window       time.Duration `yaml:"window" koanf:"window"`
}

// TokensConfig configures prompt optimization. Tokenizer is "tiktoken" or
// "approx".
type TokensConfig struct {
	Model       string `yaml:"model" koanf:"model"`
	MaxTokens   int    `yaml:"max_tokens" koanf:"max_tokens"`
	Compression string `yaml:"compression" koanf:"compression"`
	Tokenizer   string `yaml:"tokenizer" koanf:"tokenizer"`
}

// DelegationConfig holds the candidate ranking defaults.
type DelegationConfig struct {
	MinMatchPercent   float64 `yaml:"min_match_percent" koanf:"min_match_percent"`
	MaxCandidates     int     `yaml:"max_candidates" koanf:"max_candidates"`
	BusyThreshold     int     `yaml:"busy_threshold" koanf:"busy_threshold"`
	RequirePermission bool    `yaml:"require_permission" koanf:"require_permission"`
}

// LineageConfig bounds lineage walks.
type LineageConfig struct {
	MaxDepth int `yaml:"max_depth" koanf:"max_depth"`
}

// PermissionsConfig selects how permissions are resolved.
type PermissionsConfig struct {
	// Inherit resolves permissions through parent roles.
	Inherit bool `yaml:"inherit" koanf:"inherit"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int  `yaml:"port" koanf:"port"`
	AllowAllOrigins bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}
