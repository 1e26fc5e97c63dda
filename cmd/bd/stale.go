package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/beads-core/beads/internal/types"
)

var staleCmd = &cobra.Command{
	Use:   "stale",
	Short: "List active issues that haven't been touched recently",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		filter := types.StaleFilter{OlderThan: time.Now().AddDate(0, 0, -days)}
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			status := types.Status(s)
			filter.Status = &status
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			filter.Limit = limit
		}

		issues, err := store.GetStaleIssues(bgContext(), filter)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(issues)
			return nil
		}

		for _, issue := range issues {
			fmt.Printf("%s  [%s] last touched %s  %s\n",
				color.MagentaString(issue.ID), issue.Status, issue.UpdatedAt.Format("2006-01-02"), issue.Title)
		}
		fmt.Printf("\n%d stale issue(s)\n", len(issues))
		return nil
	},
}

func init() {
	staleCmd.Flags().Int("days", 30, "consider issues untouched for this many days as stale")
	staleCmd.Flags().String("status", "", "filter by status")
	staleCmd.Flags().Int("limit", 0, "maximum number of results")
}
