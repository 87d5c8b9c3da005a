package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Security.Level != "medium" {
		t.Errorf("expected default security level medium, got %q", cfg.Security.Level)
	}
	if cfg.Tokens.Compression != "medium" {
		t.Errorf("expected default compression medium, got %q", cfg.Tokens.Compression)
	}
	if cfg.Delegation.MinMatchPercent != 30 || cfg.Delegation.MaxCandidates != 5 || cfg.Delegation.BusyThreshold != 3 {
		t.Errorf("unexpected delegation defaults: %+v", cfg.Delegation)
	}
	if cfg.Lineage.MaxDepth != 5 {
		t.Errorf("expected default lineage depth 5, got %d", cfg.Lineage.MaxDepth)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.personaengine.yml")

	original := DefaultConfig()
	original.DatabasePath = filepath.Join(dir, "p.db")
	original.Security.Level = "strict"
	original.Security.Window = 90 * time.Second
	original.Tokens.MaxTokens = 1200
	original.Tokens.Compression = "heavy"
	original.Delegation.MinMatchPercent = 55.5
	original.Delegation.RequirePermission = true
	original.Permissions.Inherit = true

	if err := original.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.DatabasePath != original.DatabasePath {
		t.Errorf("database_path: got %q, want %q", loaded.DatabasePath, original.DatabasePath)
	}
	if loaded.Security.Level != "strict" {
		t.Errorf("security.level: got %q, want strict", loaded.Security.Level)
	}
	if loaded.Security.Window != 90*time.Second {
		t.Errorf("security.window: got %v, want 90s", loaded.Security.Window)
	}
	if loaded.Tokens.MaxTokens != 1200 {
		t.Errorf("tokens.max_tokens: got %d, want 1200", loaded.Tokens.MaxTokens)
	}
	if loaded.Tokens.Compression != "heavy" {
		t.Errorf("tokens.compression: got %q, want heavy", loaded.Tokens.Compression)
	}
	if loaded.Delegation.MinMatchPercent != 55.5 {
		t.Errorf("delegation.min_match_percent: got %v, want 55.5", loaded.Delegation.MinMatchPercent)
	}
	if !loaded.Delegation.RequirePermission {
		t.Error("delegation.require_permission not preserved")
	}
	if !loaded.Permissions.Inherit {
		t.Error("permissions.inherit not preserved")
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nonexistent.yml")

	// Loading a missing file should return defaults, not an error.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load should not fail for missing file: %v", err)
	}
	if cfg.Tokens.Model != "gpt-4" {
		t.Errorf("expected default model, got %q", cfg.Tokens.Model)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.yml")
	if err := os.WriteFile(path, []byte("security:\n  level: low\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Security.Level != "low" {
		t.Errorf("security.level: got %q, want low", cfg.Security.Level)
	}
	if cfg.Security.Window != 10*time.Minute {
		t.Errorf("security.window default lost: got %v", cfg.Security.Window)
	}
	if cfg.Delegation.MaxCandidates != 5 {
		t.Errorf("delegation.max_candidates default lost: got %d", cfg.Delegation.MaxCandidates)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yml")

	cfg := DefaultConfig()
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	t.Setenv("PERSONAENGINE_SECURITY__LEVEL", "strict")
	t.Setenv("PERSONAENGINE_DELEGATION__MAX_CANDIDATES", "9")
	t.Setenv("PERSONAENGINE_LOG_LEVEL", "debug")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Security.Level != "strict" {
		t.Errorf("env override failed: got %q, want strict", loaded.Security.Level)
	}
	if loaded.Delegation.MaxCandidates != 9 {
		t.Errorf("env override failed: got %d, want 9", loaded.Delegation.MaxCandidates)
	}
	if loaded.LogLevel != "debug" {
		t.Errorf("env override failed: got %q, want debug", loaded.LogLevel)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yml")
	if err := os.WriteFile(path, []byte("security:\n  level: paranoid\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid security level")
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"PERSONAENGINE_DATABASE_PATH":             "database_path",
		"PERSONAENGINE_SECURITY__REJECT_UNSAFE":   "security.reject_unsafe",
		"PERSONAENGINE_SERVER__ALLOW_ALL_ORIGINS": "server.allow_all_origins",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should be valid, got: %v", err)
	}
}

func TestValidateInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.DatabasePath = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad security level", func(c *Config) { c.Security.Level = "none" }},
		{"zero window", func(c *Config) { c.Security.Window = 0 }},
		{"negative budget", func(c *Config) { c.Tokens.MaxTokens = -1 }},
		{"bad compression", func(c *Config) { c.Tokens.Compression = "extreme" }},
		{"bad tokenizer", func(c *Config) { c.Tokens.Tokenizer = "words" }},
		{"match percent above 100", func(c *Config) { c.Delegation.MinMatchPercent = 101 }},
		{"zero candidates", func(c *Config) { c.Delegation.MaxCandidates = 0 }},
		{"zero busy threshold", func(c *Config) { c.Delegation.BusyThreshold = 0 }},
		{"zero lineage depth", func(c *Config) { c.Lineage.MaxDepth = 0 }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
