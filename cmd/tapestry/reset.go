// Reset command: drop and recreate the schema.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop all tables and reapply the schema",
	Long:  `Destroy every row, including the audit history, and reapply the schema. Requires --force.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		confirmForce(resetForce, "reset")

		store, err := openStore()
		if err != nil {
			sysError("reset: %v", err)
		}
		defer store.Close()

		if err := store.Reset(); err != nil {
			sysError("reset: %v", err)
		}

		if flagJSON {
			printJSON(map[string]string{"status": "reset", "data_dir": cfgDataDir})
		} else {
			fmt.Println("Tapestry reset in", cfgDataDir)
		}
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "confirm the reset")
}
