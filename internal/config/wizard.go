package config

import (
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard, saves the result to
// path and returns it.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to personaengine! Let's configure this workspace.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Database location.
	dbPrompt := promptui.Prompt{
		Label:   "SQLite database path",
		Default: cfg.DatabasePath,
	}
	dbPath, err := dbPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("database path: %w", err)
	}
	cfg.DatabasePath = dbPath

	// 2. Security level.
	levelPrompt := promptui.Select{
		Label: "Select prompt security level",
		Items: []string{
			"low    (flag only blatant injection)",
			"medium (recommended)",
			"strict (flag anything suspicious, redact keywords)",
		},
		CursorPos: 1,
	}
	levelIdx, _, err := levelPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("security level: %w", err)
	}
	cfg.Security.Level = []string{"low", "medium", "strict"}[levelIdx]

	rejectPrompt := promptui.Select{
		Label: "Reject unsafe prompts instead of sanitizing them?",
		Items: []string{"no", "yes"},
	}
	rejectIdx, _, err := rejectPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("reject unsafe: %w", err)
	}
	cfg.Security.RejectUnsafe = rejectIdx == 1

	// 3. Token budget.
	budgetPrompt := promptui.Prompt{
		Label:    "Default prompt token budget (0 for unlimited)",
		Default:  strconv.Itoa(cfg.Tokens.MaxTokens),
		Validate: validateNonNegative,
	}
	budget, err := budgetPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("token budget: %w", err)
	}
	cfg.Tokens.MaxTokens, _ = strconv.Atoi(budget)

	compressionPrompt := promptui.Select{
		Label:     "Capability compression",
		Items:     []string{"light", "medium", "heavy"},
		CursorPos: 1,
	}
	_, cfg.Tokens.Compression, err = compressionPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("compression: %w", err)
	}

	// 4. Delegation policy.
	permPrompt := promptui.Select{
		Label: "Require the \"delegate\" permission to hand off tasks?",
		Items: []string{"no", "yes"},
	}
	permIdx, _, err := permPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("delegation permission: %w", err)
	}
	cfg.Delegation.RequirePermission = permIdx == 1

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

func validateNonNegative(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("enter a whole number")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}
