package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ziadkadry99/personaengine/internal/config"
)

var (
	cfgFile string
	verbose bool

	logger   = zap.NewNop()
	logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

var rootCmd = &cobra.Command{
	Use:   "personaengine",
	Short: "Capability, permission and delegation engine for AI personas",
	Long: `personaengine tracks what each AI persona can do and is allowed to do.
It screens prompts for injection attempts, fits persona capabilities into a
token budget, routes tasks to the best-matching persona and merges personas
with an auditable lineage. Agents reach it over MCP; operators over REST.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Logs go to stderr; stdout carries MCP messages and command output.
		zc := zap.NewProductionConfig()
		zc.Level = logLevel
		if verbose {
			logLevel.SetLevel(zapcore.DebugLevel)
		}
		l, err := zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
