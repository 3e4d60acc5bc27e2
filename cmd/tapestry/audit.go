// Audit command: change history for one object.
package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/loomworks/tapestry/internal/sqlite"
	"github.com/loomworks/tapestry/pkg/types"
)

var auditCmd = &cobra.Command{
	Use:   "audit <euid>",
	Short: "Show the audit trail for an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			sysError("audit: %v", err)
		}
		defer store.Close()

		var entries []*types.AuditEntry
		err = store.WithTx(func(tx *sqlite.Tx) error {
			entries, err = tx.AuditFor(args[0])
			return err
		})
		if err != nil {
			sysError("audit: %v", err)
		}
		if len(entries) == 0 {
			userError("audit: no entries for %s", args[0])
		}

		if flagJSON {
			printJSON(entries)
			return nil
		}
		for _, e := range entries {
			stamp := e.ChangedAt.Format(time.RFC3339)
			switch e.Operation {
			case types.OpInsert:
				fmt.Printf("%s  %s  INSERT  by %s\n", stamp, e.EUID, e.Actor)
			case types.OpUpdate:
				fmt.Printf("%s  %s  UPDATE  %s: %q -> %q  by %s\n",
					stamp, e.EUID, e.Column, e.OldValue, e.NewValue, e.Actor)
			case types.OpDelete:
				fmt.Printf("%s  %s  DELETE  (snapshot retained)  by %s\n", stamp, e.EUID, e.Actor)
			}
		}
		return nil
	},
}
