package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/beads-core/beads/internal/config"
	"github.com/beads-core/beads/internal/importer"
	"github.com/beads-core/beads/internal/lockfile"
	"github.com/beads-core/beads/internal/mirror"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import issues from the textual mirror",
	Long: `Read the textual mirror and reconcile it against the database,
resolving any collisions per the four-phase rule: external_ref match, then
content-hash match, then last-writer-wins by timestamp, then create.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		createOnly, _ := cmd.Flags().GetBool("create-only")
		rename, _ := cmd.Flags().GetBool("rename")
		keepFirstDup, _ := cmd.Flags().GetBool("keep-first-duplicate-ref")

		workspaceDir := filepath.Dir(dbPath)
		if input == "" {
			input = mirror.Discover(workspaceDir)
		}

		lock, err := lockfile.Acquire(mirror.LockPath(workspaceDir), mirror.DefaultLockTimeout)
		if err != nil {
			return fmt.Errorf("locked: failed to acquire mirror lock: %w", err)
		}
		defer func() { _ = lock.Release() }()

		issues, err := mirror.ReadMirror(input)
		if err != nil {
			return err
		}

		orphanMode := importer.OrphanMode(config.GetString("orphan-handling"))
		result, err := importer.ImportIssues(bgContext(), store, issues, importer.Options{
			DryRun:                        dryRun,
			SkipUpdate:                    createOnly,
			RenameOnImport:                rename,
			OrphanHandling:                orphanMode,
			KeepFirstDuplicateExternalRef: keepFirstDup,
		})
		if err != nil {
			return err
		}

		if !dryRun {
			if err := mirror.RecordImport(bgContext(), store, input); err != nil {
				return fmt.Errorf("failed to record import: %w", err)
			}
		}

		if jsonOutput {
			printJSON(result)
			return nil
		}

		if result.PrefixMismatch {
			fmt.Printf("%s Mirror prefix does not match database prefix %s:\n", color.YellowString("!"), result.ExpectedPrefix)
			for _, p := range importer.GetPrefixList(result.MismatchPrefixes) {
				fmt.Printf("    %s (%d issue(s))\n", p, result.MismatchPrefixes[p])
			}
			fmt.Printf("  pass --rename to rewrite them to %s\n", result.ExpectedPrefix)
			return nil
		}

		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s from %s: %d created, %d updated, %d unchanged, %d skipped, %d renamed\n",
			color.GreenString("✓"), verb, input, result.Created, result.Updated, result.Unchanged, result.Skipped, result.Renamed)
		for _, id := range result.OrphansResurrected {
			fmt.Printf("    resurrected missing parent %s\n", id)
		}
		for _, id := range result.OrphansSkipped {
			fmt.Printf("    skipped edge to missing parent %s\n", id)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringP("input", "i", "", "input file (default: discovered mirror path)")
	importCmd.Flags().Bool("dry-run", false, "preview the import without writing to the database")
	importCmd.Flags().Bool("create-only", false, "skip updating existing issues")
	importCmd.Flags().Bool("rename", false, "rename mismatched-prefix issues to the database's prefix")
	importCmd.Flags().Bool("keep-first-duplicate-ref", false, "on duplicate external_ref within the batch, keep the first and clear the rest instead of failing")
}
