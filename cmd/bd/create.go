package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/beads-core/beads/internal/types"
)

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a new issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		design, _ := cmd.Flags().GetString("design")
		acceptance, _ := cmd.Flags().GetString("acceptance")
		priority, _ := cmd.Flags().GetInt("priority")
		issueType, _ := cmd.Flags().GetString("type")
		assignee, _ := cmd.Flags().GetString("assignee")
		labels, _ := cmd.Flags().GetStringSlice("labels")
		parentID, _ := cmd.Flags().GetString("parent")

		issue := &types.Issue{
			Title:              args[0],
			Description:        description,
			Design:             design,
			AcceptanceCriteria: acceptance,
			Priority:           priority,
			IssueType:          types.IssueType(issueType),
			Assignee:           assignee,
			Labels:             labels,
		}
		if parentID != "" {
			childID, err := store.GetNextChildID(bgContext(), parentID)
			if err != nil {
				return fmt.Errorf("failed to allocate child id under %s: %w", parentID, err)
			}
			issue.ID = childID
		}

		if err := store.CreateIssue(bgContext(), issue, actor); err != nil {
			return err
		}

		if jsonOutput {
			printJSON(issue)
			return nil
		}
		fmt.Printf("%s Created %s: %s\n", color.GreenString("✓"), issue.ID, issue.Title)
		return nil
	},
}

func init() {
	createCmd.Flags().String("description", "", "issue description")
	createCmd.Flags().String("design", "", "design notes")
	createCmd.Flags().String("acceptance", "", "acceptance criteria")
	createCmd.Flags().Int("priority", 2, "priority (0=urgent .. 4=low)")
	createCmd.Flags().String("type", "task", "issue type (task, bug, feature, epic, chore, docs, question)")
	createCmd.Flags().String("assignee", "", "assignee")
	createCmd.Flags().StringSlice("labels", nil, "comma-separated labels")
	createCmd.Flags().String("parent", "", "parent issue id (creates a hierarchical child id)")
}
