package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/beads-core/beads/internal/storage/sqlite"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a beads workspace in the current directory",
	Long: `Creates a .beads/ directory and SQLite database, auto-detecting an
issue prefix from the current directory name unless --prefix is given.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")

		if dbPath == "" {
			if envDB := os.Getenv("BEADS_DB"); envDB != "" {
				dbPath = envDB
			}
		}

		if prefix == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get current directory: %w", err)
			}
			prefix = filepath.Base(cwd)
		}
		prefix = strings.TrimRight(prefix, "-")

		initDBPath := dbPath
		if initDBPath == "" {
			initDBPath = filepath.Join(".beads", prefix+".db")
		}

		if err := os.MkdirAll(filepath.Dir(initDBPath), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(initDBPath), err)
		}

		s, err := sqlite.New(initDBPath)
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		defer func() { _ = s.Close() }()

		ctx := context.Background()
		if err := s.SetConfig(ctx, "issue_prefix", prefix); err != nil {
			return fmt.Errorf("failed to set issue prefix: %w", err)
		}

		fmt.Printf("%s Initialized beads workspace at %s\n", color.GreenString("✓"), initDBPath)
		fmt.Printf("  Issue prefix: %s-\n", prefix)
		return nil
	},
}

func init() {
	initCmd.Flags().String("prefix", "", "issue ID prefix (default: current directory name)")
}
