package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var closeCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveID(args[0])
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")

		if err := store.CloseIssue(bgContext(), id, reason, actor); err != nil {
			return err
		}

		if jsonOutput {
			printJSON(map[string]string{"id": id, "status": "closed"})
			return nil
		}
		fmt.Printf("%s Closed %s\n", color.GreenString("✓"), id)
		return nil
	},
}

func init() {
	closeCmd.Flags().String("reason", "", "reason for closing")
}
