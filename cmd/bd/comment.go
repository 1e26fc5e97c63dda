package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var commentCmd = &cobra.Command{
	Use:   "comment <id> <text>",
	Short: "Add a comment to an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveID(args[0])
		if err != nil {
			return err
		}
		comment, err := store.AddIssueComment(bgContext(), id, actor, args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(comment)
			return nil
		}
		fmt.Printf("%s Added comment to %s\n", color.GreenString("✓"), id)
		return nil
	},
}
