// Init command: apply the schema and provision core identifier counters.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the tapestry database",
	Long:  `Create the data directory, apply the schema, and provision the core identifier counters. Idempotent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			sysError("init: %v", err)
		}
		defer store.Close()

		if err := store.Init(); err != nil {
			sysError("init: %v", err)
		}

		if flagJSON {
			printJSON(map[string]string{"status": "initialized", "data_dir": cfgDataDir})
		} else {
			fmt.Println("Tapestry initialized in", cfgDataDir)
		}
		return nil
	},
}
