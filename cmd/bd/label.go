package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Manage labels on an issue",
}

var labelAddCmd = &cobra.Command{
	Use:   "add <id> <label>",
	Short: "Add a label to an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveID(args[0])
		if err != nil {
			return err
		}
		if err := store.AddLabel(bgContext(), id, args[1], actor); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]string{"id": id, "label": args[1], "status": "added"})
			return nil
		}
		fmt.Printf("%s Added label %q to %s\n", color.GreenString("✓"), args[1], id)
		return nil
	},
}

var labelRemoveCmd = &cobra.Command{
	Use:   "remove <id> <label>",
	Short: "Remove a label from an issue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveID(args[0])
		if err != nil {
			return err
		}
		if err := store.RemoveLabel(bgContext(), id, args[1], actor); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]string{"id": id, "label": args[1], "status": "removed"})
			return nil
		}
		fmt.Printf("%s Removed label %q from %s\n", color.GreenString("✓"), args[1], id)
		return nil
	},
}

func init() {
	labelCmd.AddCommand(labelAddCmd)
	labelCmd.AddCommand(labelRemoveCmd)
}
