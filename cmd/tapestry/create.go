// Create command: instantiate a template, cascading its layouts.
package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/tapestry/pkg/engine"
)

var (
	createName       string
	createProperties string
	createNoChildren bool
	createSingleton  bool
)

var createCmd = &cobra.Command{
	Use:   "create <template-code>",
	Short: "Create an instance from a template code",
	Long: `Create an instance from a composite template code
("category/type/subtype/version"), deep-merging --properties over the
template defaults and cascading child creation per the template's layouts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var properties map[string]any
		if createProperties != "" {
			if err := json.Unmarshal([]byte(createProperties), &properties); err != nil {
				userError("create: parsing --properties: %v", err)
			}
		}

		eng, store, err := openEngine()
		if err != nil {
			sysError("create: %v", err)
		}
		defer store.Close()

		req := engine.CreateRequest{
			TemplateCode: args[0],
			Name:         createName,
			Properties:   properties,
			SkipChildren: createNoChildren,
		}

		if createSingleton {
			inst, created, err := eng.GetOrCreateSingleton(req)
			if err != nil {
				userError("create: %v", err)
			}
			if flagJSON {
				printJSON(inst)
			} else if created {
				fmt.Printf("Created %s: %s\n", inst.Name, inst.EUID)
			} else {
				fmt.Printf("Existing %s: %s\n", inst.Name, inst.EUID)
			}
			return nil
		}

		inst, err := eng.CreateInstance(req)
		if err != nil {
			userError("create: %v", err)
		}

		if flagJSON {
			printJSON(inst)
		} else {
			fmt.Printf("Created %s: %s\n", inst.Name, inst.EUID)
		}
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createName, "name", "", "instance name (required)")
	createCmd.Flags().StringVar(&createProperties, "properties", "", "instance properties as a JSON object")
	createCmd.Flags().BoolVar(&createNoChildren, "no-children", false, "skip cascading child creation")
	createCmd.Flags().BoolVar(&createSingleton, "singleton", false, "get or create the template's singleton instance")
	createCmd.MarkFlagRequired("name")
}
