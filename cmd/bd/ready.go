package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/beads-core/beads/internal/types"
)

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List issues with no open blockers",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := types.WorkFilter{}
		if p, _ := cmd.Flags().GetInt("priority"); cmd.Flags().Changed("priority") {
			filter.Priority = &p
		}
		if a, _ := cmd.Flags().GetString("assignee"); a != "" {
			filter.Assignee = &a
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			filter.Limit = limit
		}
		if sort, _ := cmd.Flags().GetString("sort"); sort != "" {
			filter.SortPolicy = types.SortPolicy(sort)
		}

		issues, err := store.GetReadyWork(bgContext(), filter)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(issues)
			return nil
		}

		for _, issue := range issues {
			fmt.Printf("%s  P%d  %s\n", color.GreenString(issue.ID), issue.Priority, issue.Title)
		}
		fmt.Printf("\n%d ready issue(s)\n", len(issues))
		return nil
	},
}

func init() {
	readyCmd.Flags().Int("priority", 0, "filter by priority")
	readyCmd.Flags().String("assignee", "", "filter by assignee")
	readyCmd.Flags().Int("limit", 0, "maximum number of results")
	readyCmd.Flags().String("sort", "", "sort policy (hybrid, priority, oldest)")
}
