// Validate command: structural checks on template documents, no database.
package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/tapestry/pkg/validation"
)

var validateCmd = &cobra.Command{
	Use:   "validate <document>...",
	Short: "Validate template documents structurally",
	Long:  `Check template documents (YAML or JSON) for structural problems: missing fields, bad prefixes, duplicate composite keys, malformed layouts. Does not touch the database.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		type report struct {
			Document string                  `json:"document"`
			Valid    bool                    `json:"valid"`
			Errors   []validation.FieldError `json:"errors,omitempty"`
		}

		var reports []report
		failed := false
		for _, path := range args {
			doc, err := validation.Load(path)
			if err != nil {
				userError("validate %s: %v", path, err)
			}

			r := report{Document: path, Valid: true}
			if err := validation.Validate(doc); err != nil {
				failed = true
				r.Valid = false
				var docErr *validation.DocumentError
				if errors.As(err, &docErr) {
					r.Errors = docErr.Errors
				}
			}
			reports = append(reports, r)
		}

		if flagJSON {
			printJSON(reports)
		} else {
			for _, r := range reports {
				if r.Valid {
					fmt.Printf("%s: ok\n", r.Document)
					continue
				}
				fmt.Printf("%s: %d error(s)\n", r.Document, len(r.Errors))
				for _, fe := range r.Errors {
					fmt.Printf("  %s\n", fe)
				}
			}
		}
		if failed {
			userError("validation failed")
		}
		return nil
	},
}
