package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var blockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "List issues blocked by open dependencies",
	RunE: func(cmd *cobra.Command, args []string) error {
		issues, err := store.GetBlockedIssues(bgContext())
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(issues)
			return nil
		}

		for _, issue := range issues {
			fmt.Printf("%s  P%d  %s  blocked by: %s\n",
				color.YellowString(issue.ID), issue.Priority, issue.Title, strings.Join(issue.BlockedBy, ", "))
		}
		fmt.Printf("\n%d blocked issue(s)\n", len(issues))
		return nil
	},
}
