package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/personaengine/internal/audit"
)

var (
	verifyAll     bool
	verifyPersona string
)

var verifyCmd = &cobra.Command{
	Use:   "verify [audit-id]",
	Short: "Check merge audit integrity hashes",
	Long: `Recomputes the integrity hash of a merge audit entry and compares it with
the stored one. With --all every entry (optionally only those whose target is
--persona) is checked. Exits non-zero if any entry fails.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if verifyAll == (len(args) == 1) {
			return fmt.Errorf("give either an audit id or --all")
		}

		e, closeDB, err := openEngine()
		if err != nil {
			return err
		}
		defer closeDB()

		ctx := context.Background()
		ids := args
		if verifyAll {
			entries, err := e.Audits().Query(ctx, audit.QueryFilter{PrimaryPersona: verifyPersona})
			if err != nil {
				return err
			}
			ids = nil
			for _, entry := range entries {
				ids = append(ids, entry.ID)
			}
		}

		var results []*audit.Verification
		failed := 0
		for _, id := range ids {
			v, err := e.Audits().Verify(ctx, id)
			if err != nil {
				return err
			}
			if !v.Valid {
				failed++
			}
			results = append(results, v)
		}
		if err := printJSON(os.Stdout, results); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d audit entries failed verification", failed, len(results))
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyAll, "all", false, "verify every merge audit entry")
	verifyCmd.Flags().StringVar(&verifyPersona, "persona", "", "with --all, only entries whose target is this persona")
	rootCmd.AddCommand(verifyCmd)
}
