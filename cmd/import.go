package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ziadkadry99/personaengine/internal/manifest"
	"github.com/ziadkadry99/personaengine/internal/progress"
)

var (
	importGlobs   []string
	importExclude []string
	importDryRun  bool
)

var importCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Import persona manifests",
	Long: `Finds persona manifests (*.persona.yaml) under dir, or the current
directory, and declares their capabilities, roles and lineage. Existing roles
and lineage edges are left alone, so importing twice is safe.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}

		files, err := manifest.Discover(manifest.DiscoverConfig{
			RootDir: root,
			Include: importGlobs,
			Exclude: importExclude,
		})
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Fprintf(os.Stderr, "No persona manifests found under %s\n", root)
			return nil
		}

		manifests := make([]*manifest.Manifest, 0, len(files))
		for _, f := range files {
			m, err := manifest.Load(f)
			if err != nil {
				return err
			}
			logger.Debug("loaded manifest", zap.String("file", f.RelPath), zap.String("hash", f.ContentHash))
			manifests = append(manifests, m)
		}

		if importDryRun {
			for _, m := range manifests {
				fmt.Printf("%s\t%s\t%d role(s)\t%d parent(s)\n", m.Source, m.Persona, len(m.Roles), len(m.Parents))
			}
			return nil
		}

		e, closeDB, err := openEngine()
		if err != nil {
			return err
		}
		defer closeDB()

		im := manifest.NewImporter(e, logger)
		im.SetReporter(progress.NewReporter("Importing personas"))
		sum, err := im.Import(context.Background(), manifests)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, sum)
	},
}

func init() {
	importCmd.Flags().StringSliceVar(&importGlobs, "glob", manifest.DefaultInclude, "manifest glob pattern (repeatable)")
	importCmd.Flags().StringSliceVar(&importExclude, "exclude", nil, "glob pattern to skip (repeatable)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "list the manifests that would be imported")
	rootCmd.AddCommand(importCmd)
}
