// Status command: row counts per core table.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/tapestry/internal/sqlite"
	"github.com/loomworks/tapestry/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show live and deleted row counts per table",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			sysError("status: %v", err)
		}
		defer store.Close()

		type tableCount struct {
			Table   string `json:"table"`
			Live    int    `json:"live"`
			Deleted int    `json:"deleted"`
		}

		var counts []tableCount
		err = store.WithTx(func(tx *sqlite.Tx) error {
			for _, table := range types.CoreTableNames {
				live, deleted, err := tx.CountRows(table)
				if err != nil {
					return err
				}
				counts = append(counts, tableCount{Table: table, Live: live, Deleted: deleted})
			}
			return nil
		})
		if err != nil {
			sysError("status: %v", err)
		}

		if flagJSON {
			printJSON(counts)
		} else {
			fmt.Printf("%-16s %8s %8s\n", "TABLE", "LIVE", "DELETED")
			for _, c := range counts {
				fmt.Printf("%-16s %8d %8d\n", c.Table, c.Live, c.Deleted)
			}
		}
		return nil
	},
}
