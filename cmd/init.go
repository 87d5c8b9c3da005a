package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/personaengine/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize personaengine configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure the database, security gate and token budget, and writes the result to the --config path.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.RunWizard(cfgFile)
		if err != nil {
			return err
		}
		fmt.Printf("Security level %s, budget %d tokens. Run `personaengine serve` to start the MCP server.\n",
			cfg.Security.Level, cfg.Tokens.MaxTokens)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
