// Version command for the tapestry CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/tapestry/pkg/tapestry"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		if flagJSON {
			printJSON(map[string]string{"version": tapestry.Version})
			return
		}
		fmt.Println("tapestry", tapestry.Version)
	},
}
