package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/doctrack/doctrack/internal/types"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Document dependency management",
}

var depAddCmd = &cobra.Command{
	Use:   "add <from-id> <to-id>",
	Short: "Add a dependency edge between documents",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		depType, _ := cmd.Flags().GetString("type")
		critical, _ := cmd.Flags().GetBool("critical")

		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := eng.AddDependency(cmd.Context(), actor(), args[0], args[1],
			types.DependencyType(depType), critical)
		if err != nil {
			return err
		}
		return printResult(res, fmt.Sprintf("Added %s dependency %s -> %s", depType, args[0], args[1]))
	},
}

var depRemoveCmd = &cobra.Command{
	Use:   "remove <from-id> <to-id>",
	Short: "Remove the dependency between two documents",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := eng.RemoveDependency(cmd.Context(), actor(), args[0], args[1])
		if err != nil {
			return err
		}
		return printResult(res, fmt.Sprintf("Removed dependency %s -> %s", args[0], args[1]))
	},
}

var depListCmd = &cobra.Command{
	Use:   "list <document-id>",
	Short: "List a document's dependencies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inbound, _ := cmd.Flags().GetBool("inbound")

		_, store, err := buildEngine(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer store.Close()

		var deps []*types.Dependency
		if inbound {
			deps, err = store.GetInboundDependencies(cmd.Context(), args[0], true)
		} else {
			deps, err = store.GetOutboundDependencies(cmd.Context(), args[0], true)
		}
		if err != nil {
			return err
		}
		if jsonOutput() {
			return printResult(deps, "")
		}
		for _, d := range deps {
			marker := ""
			if d.IsCritical {
				marker = " [critical]"
			}
			fmt.Printf("%s -> %s  %s%s\n", d.FromID, d.ToID, d.Type, marker)
		}
		fmt.Printf("%d dependencies\n", len(deps))
		return nil
	},
}

func init() {
	depAddCmd.Flags().String("type", string(types.DepReference), "edge type (implements, supports, template, reference, incorporates)")
	depAddCmd.Flags().Bool("critical", false, "target must be effective before this document can go effective")
	depListCmd.Flags().Bool("inbound", false, "list documents depending on this one")
	depCmd.AddCommand(depAddCmd, depRemoveCmd, depListCmd)
	rootCmd.AddCommand(depCmd)
}
