// Seed command: validate template documents and upsert them.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/tapestry/internal/sqlite"
	"github.com/loomworks/tapestry/pkg/validation"
)

var seedCmd = &cobra.Command{
	Use:   "seed <document>...",
	Short: "Seed templates from configuration documents",
	Long:  `Validate template documents, then upsert their templates by composite key and provision each template's identifier counter.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			sysError("seed: %v", err)
		}
		defer store.Close()

		totals := map[string]int{"inserted": 0, "updated": 0}
		for _, path := range args {
			doc, err := validation.Load(path)
			if err != nil {
				userError("seed %s: %v", path, err)
			}
			if err := validation.Validate(doc); err != nil {
				userError("seed %s: %v", path, err)
			}
			catalog, err := validation.Templates(doc)
			if err != nil {
				userError("seed %s: %v", path, err)
			}

			err = store.WithTx(func(tx *sqlite.Tx) error {
				inserted, updated, err := tx.SeedTemplates(catalog)
				totals["inserted"] += inserted
				totals["updated"] += updated
				return err
			})
			if err != nil {
				sysError("seed %s: %v", path, err)
			}
		}

		if flagJSON {
			printJSON(totals)
		} else {
			fmt.Printf("Seeded templates: %d inserted, %d updated\n", totals["inserted"], totals["updated"])
		}
		return nil
	},
}
