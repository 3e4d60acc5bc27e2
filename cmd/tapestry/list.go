// List commands: instances and templates.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomworks/tapestry/internal/sqlite"
	"github.com/loomworks/tapestry/pkg/types"
)

var (
	listCategory string
	listType     string
	listSubtype  string
	listStatus   string
	listDeleted  bool
	listLimit    int
	listOffset   int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			sysError("list: %v", err)
		}
		defer store.Close()

		var instances []*types.Instance
		err = store.WithTx(func(tx *sqlite.Tx) error {
			instances, err = tx.ListInstances(sqlite.InstanceFilter{
				Category:       listCategory,
				Type:           listType,
				Subtype:        listSubtype,
				Status:         listStatus,
				IncludeDeleted: listDeleted,
				Limit:          listLimit,
				Offset:         listOffset,
			})
			return err
		})
		if err != nil {
			sysError("list: %v", err)
		}

		if flagJSON {
			printJSON(instances)
			return nil
		}
		fmt.Printf("%-12s %-28s %-32s %-10s\n", "EUID", "NAME", "CODE", "STATUS")
		for _, inst := range instances {
			code := fmt.Sprintf("%s/%s/%s/%s", inst.Category, inst.Type, inst.Subtype, inst.Version)
			status := inst.Status
			if inst.IsDeleted {
				status += " (deleted)"
			}
			fmt.Printf("%-12s %-28s %-32s %-10s\n", inst.EUID, inst.Name, code, status)
		}
		return nil
	},
}

var templatesDeleted bool

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			sysError("templates: %v", err)
		}
		defer store.Close()

		var templates []*types.Template
		err = store.WithTx(func(tx *sqlite.Tx) error {
			templates, err = tx.ListTemplates(sqlite.TemplateFilter{
				Category:       listCategory,
				Type:           listType,
				Status:         listStatus,
				IncludeDeleted: templatesDeleted,
			})
			return err
		})
		if err != nil {
			sysError("templates: %v", err)
		}

		if flagJSON {
			printJSON(templates)
			return nil
		}
		fmt.Printf("%-12s %-28s %-32s %-8s %-10s\n", "EUID", "NAME", "CODE", "PREFIX", "STATUS")
		for _, tmpl := range templates {
			status := tmpl.Status
			if tmpl.IsDeleted {
				status += " (deleted)"
			}
			fmt.Printf("%-12s %-28s %-32s %-8s %-10s\n", tmpl.EUID, tmpl.Name, tmpl.Code(), tmpl.InstancePrefix, status)
		}
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{listCmd, templatesCmd} {
		cmd.Flags().StringVar(&listCategory, "category", "", "filter by category")
		cmd.Flags().StringVar(&listType, "type", "", "filter by type")
		cmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	}
	listCmd.Flags().StringVar(&listSubtype, "subtype", "", "filter by subtype")
	listCmd.Flags().BoolVar(&listDeleted, "deleted", false, "include soft-deleted rows")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "page size (0 for all)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "page offset")
	templatesCmd.Flags().BoolVar(&templatesDeleted, "deleted", false, "include soft-deleted rows")
}
