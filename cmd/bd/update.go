package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields on an existing issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveID(args[0])
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		for _, spec := range []struct {
			flag, column string
		}{
			{"title", "title"},
			{"description", "description"},
			{"design", "design"},
			{"acceptance", "acceptance_criteria"},
			{"status", "status"},
			{"assignee", "assignee"},
			{"owner", "owner"},
			{"type", "issue_type"},
		} {
			if cmd.Flags().Changed(spec.flag) {
				v, _ := cmd.Flags().GetString(spec.flag)
				updates[spec.column] = v
			}
		}
		if cmd.Flags().Changed("priority") {
			p, _ := cmd.Flags().GetInt("priority")
			updates["priority"] = p
		}
		if len(updates) == 0 {
			return fmt.Errorf("no fields specified to update")
		}

		if err := store.UpdateIssue(bgContext(), id, updates, actor); err != nil {
			return err
		}

		if jsonOutput {
			printJSON(map[string]string{"id": id, "status": "updated"})
			return nil
		}
		fmt.Printf("%s Updated %s\n", color.GreenString("✓"), id)
		return nil
	},
}

func init() {
	updateCmd.Flags().String("title", "", "new title")
	updateCmd.Flags().String("description", "", "new description")
	updateCmd.Flags().String("design", "", "new design notes")
	updateCmd.Flags().String("acceptance", "", "new acceptance criteria")
	updateCmd.Flags().String("status", "", "new status")
	updateCmd.Flags().Int("priority", 0, "new priority")
	updateCmd.Flags().String("assignee", "", "new assignee")
	updateCmd.Flags().String("owner", "", "new owner")
	updateCmd.Flags().String("type", "", "new issue type")
}
