// Command bd is a thin CLI entrypoint over the beads-core storage and
// mirror layers. It owns no graph or sync logic itself: every command
// resolves a database handle and delegates straight into internal/.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/beads-core/beads"
	"github.com/beads-core/beads/internal/autoimport"
	"github.com/beads-core/beads/internal/config"
	"github.com/beads-core/beads/internal/importer"
	"github.com/beads-core/beads/internal/storage"
)

var (
	dbPath     string
	actor      string
	jsonOutput bool
	store      storage.Storage
)

var rootCmd = &cobra.Command{
	Use:   "bd",
	Short: "bd - dependency-aware issue tracker",
	Long:  "Issues chained together like beads. A local-first issue tracker with first-class dependency support.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "init" || cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		if dbPath == "" {
			dbPath = beads.FindDatabasePath()
		}
		if dbPath == "" {
			return fmt.Errorf("no beads database found\nhint: run 'bd init' to create one in the current directory")
		}

		s, err := beads.NewSQLiteStorage(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database %s: %w", dbPath, err)
		}
		store = s

		if !config.GetBool("no-auto-import") && cmd.Name() != "import" && cmd.Name() != "export" {
			if _, err := autoimport.IfNewer(bgContext(), store, dbPath, nil, importer.Options{
				OrphanHandling: importer.OrphanMode(config.GetString("orphan-handling")),
			}); err != nil {
				return fmt.Errorf("auto-import failed: %w", err)
			}
		}

		if actor == "" {
			if envActor := os.Getenv("BD_ACTOR"); envActor != "" {
				actor = envActor
			} else if user := os.Getenv("USER"); user != "" {
				actor = user
			} else {
				actor = "unknown"
			}
		}

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if store != nil {
			return store.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the beads database (overrides discovery)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "actor name recorded on events (default: $BD_ACTOR, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(readyCmd)
	rootCmd.AddCommand(blockedCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(depCmd)
	rootCmd.AddCommand(labelCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(staleCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func bgContext() context.Context {
	return context.Background()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
