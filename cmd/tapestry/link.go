// Link command: create a lineage edge between two instances.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var linkRelationship string

var linkCmd = &cobra.Command{
	Use:   "link <parent-euid> <child-euid>",
	Short: "Link two instances with a lineage edge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, store, err := openEngine()
		if err != nil {
			sysError("link: %v", err)
		}
		defer store.Close()

		edge, err := eng.LinkInstances(args[0], args[1], linkRelationship)
		if err != nil {
			userError("link: %v", err)
		}

		if flagJSON {
			printJSON(edge)
		} else {
			fmt.Printf("Linked %s -> %s (%s): %s\n", args[0], args[1], edge.RelationshipType, edge.EUID)
		}
		return nil
	},
}

func init() {
	linkCmd.Flags().StringVar(&linkRelationship, "relationship", "", `relationship type (default "generic")`)
}
