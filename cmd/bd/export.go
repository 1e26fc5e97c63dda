package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/beads-core/beads/internal/mirror"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export issues to the textual mirror",
	Long: `Export issues to JSON Lines format (one JSON object per line),
sorted by ID for consistent diffs.

Writes to the discovered mirror path by default (issues.jsonl next to the
database), or use -o to target a different file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		incremental, _ := cmd.Flags().GetBool("incremental")
		force, _ := cmd.Flags().GetBool("force")
		shared, _ := cmd.Flags().GetBool("shared")

		workspaceDir := filepath.Dir(dbPath)
		result, err := mirror.Export(bgContext(), store, workspaceDir, mirror.ExportOptions{
			Output:      output,
			Incremental: incremental,
			Force:       force,
			SharedMode:  shared,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(map[string]interface{}{
				"path":     result.Path,
				"exported": len(result.ExportedIDs),
			})
			return nil
		}

		if len(result.ExportedIDs) == 0 {
			fmt.Printf("%s Nothing to export, %s is already current\n", color.GreenString("✓"), result.Path)
			return nil
		}
		fmt.Printf("%s Exported %d issue(s) to %s\n", color.GreenString("✓"), len(result.ExportedIDs), result.Path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "output file (default: discovered mirror path)")
	exportCmd.Flags().Bool("incremental", false, "rewrite the mirror only if issues are marked dirty, refreshing bookkeeping for those issues only")
	exportCmd.Flags().Bool("force", false, "override the empty-store safety refusal")
	exportCmd.Flags().Bool("shared", false, "write the mirror with mode 0644 instead of 0600")
}
