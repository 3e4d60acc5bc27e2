// Show command: fetch any object by identifier, soft-deleted included.
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/tapestry/internal/sqlite"
	"github.com/loomworks/tapestry/pkg/types"
)

// lookupByEUID finds the object behind an identifier in any core table.
// Soft-deleted rows are found too; history stays reachable by identifier.
func lookupByEUID(tx *sqlite.Tx, id string) (kind string, obj any, err error) {
	if inst, err := tx.GetInstanceByEUID(id); err == nil {
		return "instance", inst, nil
	} else if !errors.Is(err, types.ErrNotFound) {
		return "", nil, err
	}
	if tmpl, err := tx.GetTemplateByEUID(id); err == nil {
		return "template", tmpl, nil
	} else if !errors.Is(err, types.ErrNotFound) {
		return "", nil, err
	}
	if edge, err := tx.GetEdgeByEUID(id); err == nil {
		return "edge", edge, nil
	} else if !errors.Is(err, types.ErrNotFound) {
		return "", nil, err
	}
	return "", nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
}

var showCmd = &cobra.Command{
	Use:   "show <euid>",
	Short: "Show an instance, template, or edge by identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			sysError("show: %v", err)
		}
		defer store.Close()

		var kind string
		var obj any
		err = store.WithTx(func(tx *sqlite.Tx) error {
			kind, obj, err = lookupByEUID(tx, args[0])
			return err
		})
		if errors.Is(err, types.ErrNotFound) {
			userError("show: no object with identifier %s", args[0])
		}
		if err != nil {
			sysError("show: %v", err)
		}

		if flagJSON {
			printJSON(map[string]any{"kind": kind, "object": obj})
			return nil
		}

		switch v := obj.(type) {
		case *types.Instance:
			fmt.Printf("instance %s  %s\n", v.EUID, v.Name)
			fmt.Printf("  code:     %s/%s/%s/%s\n", v.Category, v.Type, v.Subtype, v.Version)
			fmt.Printf("  template: %s\n", v.TemplateEUID)
			fmt.Printf("  status:   %s  deleted=%t\n", v.Status, v.IsDeleted)
		case *types.Template:
			fmt.Printf("template %s  %s\n", v.EUID, v.Name)
			fmt.Printf("  code:    %s\n", v.Code())
			fmt.Printf("  prefix:  %s  singleton=%t\n", v.InstancePrefix, v.IsSingleton)
			fmt.Printf("  status:  %s  deleted=%t\n", v.Status, v.IsDeleted)
		case *types.LineageEdge:
			fmt.Printf("edge %s  %s\n", v.EUID, v.Name)
			fmt.Printf("  relationship: %s  deleted=%t\n", v.RelationshipType, v.IsDeleted)
		}
		return nil
	},
}
