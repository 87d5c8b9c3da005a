package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/personaengine/internal/security"
)

var (
	scanLevel    string
	scanSanitize bool
	scanFail     bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [file]",
	Short: "Screen text for prompt injection",
	Long: `Scores a file, or stdin when no file or "-" is given, for prompt-injection
risk and prints the report as JSON. With --sanitize the cleaned text is printed
instead. No database is needed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if len(args) == 0 || args[0] == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		levelName := scanLevel
		if levelName == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			levelName = cfg.Security.Level
		}
		level, err := security.ParseLevel(levelName)
		if err != nil {
			return err
		}

		report := security.Validate(string(data), level)
		if scanSanitize {
			fmt.Print(security.Sanitize(string(data), level).Text)
		} else if err := printJSON(os.Stdout, report); err != nil {
			return err
		}

		if scanFail && !report.IsSafe {
			return fmt.Errorf("input is unsafe at level %s (risk %d)", level, report.RiskScore)
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanLevel, "level", "", "security level: low, medium or strict (default from config)")
	scanCmd.Flags().BoolVar(&scanSanitize, "sanitize", false, "print sanitized text instead of the report")
	scanCmd.Flags().BoolVar(&scanFail, "fail", false, "exit non-zero when the input is unsafe")
	rootCmd.AddCommand(scanCmd)
}
