package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/beads-core/beads/internal/types"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage dependencies between issues",
}

var depAddCmd = &cobra.Command{
	Use:   "add <id> <depends-on-id>",
	Short: "Add a dependency edge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveID(args[0])
		if err != nil {
			return err
		}
		dependsOn := args[1]
		if !types.IsExternalSentinel(dependsOn) {
			dependsOn, err = resolveID(dependsOn)
			if err != nil {
				return err
			}
		}

		depType, _ := cmd.Flags().GetString("type")
		dep := &types.Dependency{
			IssueID:     id,
			DependsOnID: dependsOn,
			Type:        types.DependencyType(depType),
		}
		if err := store.AddDependency(bgContext(), dep, actor); err != nil {
			return err
		}

		if jsonOutput {
			printJSON(dep)
			return nil
		}
		fmt.Printf("%s %s -%s-> %s\n", color.GreenString("✓"), id, depType, dependsOn)
		return nil
	},
}

var depRemoveCmd = &cobra.Command{
	Use:   "remove <id> <depends-on-id>",
	Short: "Remove a dependency edge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveID(args[0])
		if err != nil {
			return err
		}
		dependsOn := args[1]
		if !types.IsExternalSentinel(dependsOn) {
			dependsOn, err = resolveID(dependsOn)
			if err != nil {
				return err
			}
		}

		if err := store.RemoveDependency(bgContext(), id, dependsOn, actor); err != nil {
			return err
		}

		if jsonOutput {
			printJSON(map[string]string{"status": "removed"})
			return nil
		}
		fmt.Printf("%s Removed %s -> %s\n", color.GreenString("✓"), id, dependsOn)
		return nil
	},
}

var depTreeCmd = &cobra.Command{
	Use:   "tree <id>",
	Short: "Show the dependency tree rooted at an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveID(args[0])
		if err != nil {
			return err
		}
		maxDepth, _ := cmd.Flags().GetInt("depth")
		reverse, _ := cmd.Flags().GetBool("reverse")
		allPaths, _ := cmd.Flags().GetBool("all-paths")

		nodes, err := store.GetDependencyTree(bgContext(), id, maxDepth, allPaths, reverse)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(nodes)
			return nil
		}
		for _, n := range nodes {
			indent := ""
			for i := 0; i < n.Depth; i++ {
				indent += "  "
			}
			title := n.Title
			if n.External {
				title = "(external)"
			}
			fmt.Printf("%s%s  %s\n", indent, color.CyanString(n.ID), title)
		}
		return nil
	},
}

func init() {
	depAddCmd.Flags().String("type", string(types.DepBlocks), "dependency type: "+strconv.Quote(string(types.DepBlocks))+" and others")
	depTreeCmd.Flags().Int("depth", 0, "maximum traversal depth (0 = default)")
	depTreeCmd.Flags().Bool("reverse", false, "walk dependents instead of dependencies")
	depTreeCmd.Flags().Bool("all-paths", false, "show every path instead of deduping visited nodes")

	depCmd.AddCommand(depAddCmd)
	depCmd.AddCommand(depRemoveCmd)
	depCmd.AddCommand(depTreeCmd)
}
