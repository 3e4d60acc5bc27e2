// Package main provides the tapestry CLI, the ops surface over the
// object-model engine: schema management, template seeding, instance
// creation and linking, lineage inspection, and backup.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUserError)
	}
}
