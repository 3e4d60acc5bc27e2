// Graph command: depth-bounded lineage export around one instance.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var graphDepth int

var graphCmd = &cobra.Command{
	Use:   "graph <euid>",
	Short: "Export the lineage graph around an instance",
	Long:  `Breadth-first expand the lineage graph around an instance up to --depth hops in each direction. Edges point child to parent.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, store, err := openEngine()
		if err != nil {
			sysError("graph: %v", err)
		}
		defer store.Close()

		graph, err := eng.Export(args[0], graphDepth)
		if err != nil {
			userError("graph: %v", err)
		}

		if flagJSON {
			printJSON(graph)
			return nil
		}
		fmt.Printf("graph around %s: %d node(s), %d edge(s)\n", graph.Root, len(graph.Nodes), len(graph.Edges))
		for _, node := range graph.Nodes {
			fmt.Printf("  node %-12s %-24s %s/%s/%s\n", node.EUID, node.Name, node.Category, node.Type, node.Subtype)
		}
		for _, edge := range graph.Edges {
			fmt.Printf("  edge %s -> %s (%s)\n", edge.From, edge.To, edge.Relationship)
		}
		return nil
	},
}

func init() {
	graphCmd.Flags().IntVar(&graphDepth, "depth", 2, "traversal depth in each direction")
}
