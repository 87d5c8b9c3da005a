package cmd

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/ziadkadry99/personaengine/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing persona capability, security, delegation and lineage tools to AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, closeDB, err := openEngine()
		if err != nil {
			return err
		}
		defer closeDB()

		// Set version from the cmd package variable.
		mcpserver.Version = Version

		srv := mcpserver.NewServer(e, logger)
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
