// Root command for the tapestry CLI.
package main

import (
	"github.com/spf13/cobra"

	"github.com/loomworks/tapestry/pkg/tapestry"
)

// Exit codes: 0 success, 1 user error, 2 system error.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Global flag values.
var (
	flagConfigDir string
	flagDataDir   string
	flagActor     string
	flagSandbox   string
	flagJSON      bool
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:     "tapestry",
	Short:   "Tapestry is a template-driven object-model engine",
	Version: tapestry.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: $(CWD)/.tapestry)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default: $(CWD)/.tapestry-db)")
	rootCmd.PersistentFlags().StringVar(&flagActor, "actor", "", "audit actor name (default: config actor or $USER)")
	rootCmd.PersistentFlags().StringVar(&flagSandbox, "sandbox", "", "sandbox identifier prefix (single uppercase letter)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "log engine activity to stderr")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(auditCmd)
}
