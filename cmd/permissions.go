// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"acctl/cli/internal/accounts"
)

var permPage accounts.PageQuery

var permissionsCmd = &cobra.Command{
	Use:     "permissions",
	Aliases: []string{"perms"},
	Short:   "Inspect the permissions roles can grant",
}

var permissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List permissions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			page, err := spin("Loading permissions", func() (*accounts.Page[accounts.Permission], error) {
				return a.client.ListPermissions(cmd.Context(), permPage)
			})
			if err != nil {
				return a.explain(err, "listing permissions")
			}
			if outputJSON {
				return printJSON(os.Stdout, page)
			}
			if err := renderPermissions(page.Results); err != nil {
				return err
			}
			printPageFooter(len(page.Results), page.Count, page.Next != nil)
			return nil
		})
	},
}

func init() {
	permissionsListCmd.Flags().IntVar(&permPage.Page, "page", 0, "Page number")
	permissionsListCmd.Flags().IntVar(&permPage.PageSize, "page-size", 0, "Results per page")
	permissionsListCmd.Flags().StringVar(&permPage.Ordering, "ordering", "", "Sort field, prefix with - for descending")

	permissionsCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print JSON instead of a table")
	permissionsCmd.AddCommand(permissionsListCmd)
	rootCmd.AddCommand(permissionsCmd)
}
