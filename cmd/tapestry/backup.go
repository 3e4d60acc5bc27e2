// Backup and restore commands: JSONL logical dumps of the core tables.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup <dir>",
	Short: "Dump the core tables to JSONL files",
	Long:  `Write one JSONL file per core table (plus identifier counters) under the given directory, soft-deleted rows included.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			sysError("backup: %v", err)
		}
		defer store.Close()

		if err := store.Backup(args[0]); err != nil {
			sysError("backup: %v", err)
		}

		if flagJSON {
			printJSON(map[string]string{"status": "backed up", "dir": args[0]})
		} else {
			fmt.Println("Backup written to", args[0])
		}
		return nil
	},
}

var restoreForce bool

var restoreCmd = &cobra.Command{
	Use:   "restore <dir>",
	Short: "Restore a JSONL dump into a reset database",
	Long:  `Reset the database, then load a dump produced by backup, preserving every identifier, timestamp, and audit entry. Requires --force because the current contents are destroyed.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirmForce(restoreForce, "restore")

		store, err := openStore()
		if err != nil {
			sysError("restore: %v", err)
		}
		defer store.Close()

		if err := store.Reset(); err != nil {
			sysError("restore: %v", err)
		}
		if err := store.Restore(args[0]); err != nil {
			sysError("restore: %v", err)
		}

		if flagJSON {
			printJSON(map[string]string{"status": "restored", "dir": args[0]})
		} else {
			fmt.Println("Restored from", args[0])
		}
		return nil
	},
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreForce, "force", false, "confirm destroying the current contents")
}
