// Delete command: soft-delete any object by identifier.
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/tapestry/internal/sqlite"
	"github.com/loomworks/tapestry/pkg/types"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete <euid>",
	Short: "Soft-delete an instance, template, or edge",
	Long:  `Mark the object deleted and record a full snapshot in the audit log. The row is never physically removed. Requires --force.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirmForce(deleteForce, "delete")

		store, err := openStore()
		if err != nil {
			sysError("delete: %v", err)
		}
		defer store.Close()

		var kind string
		err = store.WithTx(func(tx *sqlite.Tx) error {
			k, obj, err := lookupByEUID(tx, args[0])
			if err != nil {
				return err
			}
			kind = k
			switch v := obj.(type) {
			case *types.Instance:
				return tx.SoftDeleteInstance(v.UUID)
			case *types.Template:
				return tx.SoftDeleteTemplate(v.UUID)
			case *types.LineageEdge:
				return tx.SoftDeleteEdge(v.UUID)
			}
			return fmt.Errorf("%w: %s", types.ErrNotFound, args[0])
		})
		if errors.Is(err, types.ErrNotFound) {
			userError("delete: no object with identifier %s", args[0])
		}
		if err != nil {
			sysError("delete: %v", err)
		}

		if flagJSON {
			printJSON(map[string]string{"status": "deleted", "kind": kind, "euid": args[0]})
		} else {
			fmt.Printf("Deleted %s %s\n", kind, args[0])
		}
		return nil
	},
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteForce, "force", false, "confirm the delete")
}
