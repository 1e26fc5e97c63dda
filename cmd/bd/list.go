package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/beads-core/beads/internal/types"
)

var listCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List issues, optionally filtered by status/priority/assignee/label or full-text search",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var query string
		if len(args) > 0 {
			query = args[0]
		}

		filter := types.IssueFilter{}
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			status := types.Status(s)
			filter.Status = &status
		}
		if p, _ := cmd.Flags().GetInt("priority"); cmd.Flags().Changed("priority") {
			filter.Priority = &p
		}
		if a, _ := cmd.Flags().GetString("assignee"); a != "" {
			filter.Assignee = &a
		}
		if l, _ := cmd.Flags().GetStringSlice("labels"); len(l) > 0 {
			filter.Labels = l
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			filter.Limit = limit
		}

		issues, err := store.SearchIssues(bgContext(), query, filter)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(issues)
			return nil
		}

		for _, issue := range issues {
			fmt.Printf("%s  [%s] P%d  %s\n", color.CyanString(issue.ID), issue.Status, issue.Priority, issue.Title)
		}
		fmt.Printf("\n%d issue(s)\n", len(issues))
		return nil
	},
}

func init() {
	listCmd.Flags().String("status", "", "filter by status (open, in_progress, blocked, closed)")
	listCmd.Flags().Int("priority", 0, "filter by priority")
	listCmd.Flags().String("assignee", "", "filter by assignee")
	listCmd.Flags().StringSlice("labels", nil, "filter by labels (AND semantics)")
	listCmd.Flags().Int("limit", 0, "maximum number of results")
}
