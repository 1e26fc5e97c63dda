package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beads-core/beads/internal/utils"
)

// resolveID resolves user-supplied, possibly partial, issue ID input to a
// full issue ID using the same exact/prefix/hash-suffix/substring cascade
// the resolve command exposes directly.
func resolveID(input string) (string, error) {
	return utils.ResolveID(bgContext(), store, input)
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <partial-id>",
	Short: "Resolve a partial or ambiguous issue ID to its full form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveID(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]string{"id": id})
			return nil
		}
		fmt.Println(id)
		return nil
	},
}
