package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an issue's full detail, including labels, dependencies, and comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveID(args[0])
		if err != nil {
			return err
		}

		issue, err := store.GetIssue(bgContext(), id)
		if err != nil {
			return err
		}
		if issue == nil {
			return fmt.Errorf("issue %s not found", id)
		}

		labels, err := store.GetLabels(bgContext(), id)
		if err != nil {
			return err
		}
		issue.Labels = labels

		deps, err := store.GetDependencyRecords(bgContext(), id)
		if err != nil {
			return err
		}
		issue.Dependencies = deps

		comments, err := store.GetIssueComments(bgContext(), id)
		if err != nil {
			return err
		}
		issue.Comments = comments

		if jsonOutput {
			printJSON(issue)
			return nil
		}

		fmt.Printf("%s  %s\n", color.CyanString(issue.ID), issue.Title)
		fmt.Printf("  status: %s  priority: %d  type: %s\n", issue.Status, issue.Priority, issue.IssueType)
		if issue.Assignee != "" {
			fmt.Printf("  assignee: %s\n", issue.Assignee)
		}
		if issue.Description != "" {
			fmt.Printf("\n%s\n", issue.Description)
		}
		if len(labels) > 0 {
			fmt.Printf("\nlabels: %v\n", labels)
		}
		if len(deps) > 0 {
			fmt.Println("\ndependencies:")
			for _, d := range deps {
				fmt.Printf("  %s -%s-> %s\n", d.IssueID, d.Type, d.DependsOnID)
			}
		}
		if len(comments) > 0 {
			fmt.Println("\ncomments:")
			for _, c := range comments {
				fmt.Printf("  [%s] %s: %s\n", c.CreatedAt.Format("2006-01-02 15:04"), c.Author, c.Text)
			}
		}
		return nil
	},
}
