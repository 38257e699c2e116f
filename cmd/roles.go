// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"acctl/cli/internal/accounts"
)

var (
	rolePage  accounts.PageQuery
	roleName  string
	roleForm  accounts.RoleRequest
	rolePerms []string
)

var rolesCmd = &cobra.Command{
	Use:     "roles",
	Aliases: []string{"role"},
	Short:   "Manage roles and the permissions they grant",
}

var rolesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List roles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := accounts.RoleQuery{PageQuery: rolePage, Name: roleName}
		return withApp(func(a *app) error {
			page, err := spin("Loading roles", func() (*accounts.Page[accounts.Role], error) {
				return a.client.ListRoles(cmd.Context(), q)
			})
			if err != nil {
				return a.explain(err, "listing roles")
			}
			if outputJSON {
				return printJSON(os.Stdout, page)
			}
			rows := make([][]string, 0, len(page.Results))
			for _, r := range page.Results {
				rows = append(rows, []string{r.ID.String(), r.Name, r.Description, strconv.Itoa(len(r.Permissions))})
			}
			if err := renderTable([]string{"ID", "Name", "Description", "Permissions"}, rows, "No roles found"); err != nil {
				return err
			}
			printPageFooter(len(page.Results), page.Count, page.Next != nil)
			return nil
		})
	},
}

var rolesGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one role with its permissions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			r, err := spin("Loading role", func() (*accounts.Role, error) {
				return a.client.GetRole(cmd.Context(), accounts.ID(args[0]))
			})
			if err != nil {
				return a.explain(err, "loading role "+args[0])
			}
			if outputJSON {
				return printJSON(os.Stdout, r)
			}
			pterm.DefaultSection.Println(r.Name)
			if r.Description != "" {
				pterm.Println(r.Description)
			}
			return renderPermissions(r.Permissions)
		})
	},
}

var rolesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a role",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := roleRequest()
		if strings.TrimSpace(req.Name) == "" {
			return fmt.Errorf("--name is required")
		}
		return withApp(func(a *app) error {
			r, err := spin("Creating role", func() (*accounts.Role, error) {
				return a.client.CreateRole(cmd.Context(), req)
			})
			if err != nil {
				return a.explain(err, "creating role")
			}
			return reportRole(r, "Created role")
		})
	},
}

var rolesUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change a role",
	Long: `The update command patches a role. Passing --permission replaces the whole
permission set of the role with the IDs given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := roleRequest()
		return withApp(func(a *app) error {
			r, err := spin("Updating role", func() (*accounts.Role, error) {
				return a.client.UpdateRole(cmd.Context(), accounts.ID(args[0]), req)
			})
			if err != nil {
				return a.explain(err, "updating role "+args[0])
			}
			return reportRole(r, "Updated role")
		})
	},
}

var rolesDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a role",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := a.client.DeleteRole(cmd.Context(), accounts.ID(args[0])); err != nil {
				return a.explain(err, "deleting role "+args[0])
			}
			pterm.Success.Printf("Deleted role %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rolesListCmd.Flags().IntVar(&rolePage.Page, "page", 0, "Page number")
	rolesListCmd.Flags().IntVar(&rolePage.PageSize, "page-size", 0, "Results per page")
	rolesListCmd.Flags().StringVar(&rolePage.Ordering, "ordering", "", "Sort field, prefix with - for descending")
	rolesListCmd.Flags().StringVar(&roleName, "name", "", "Filter by name")

	for _, c := range []*cobra.Command{rolesCreateCmd, rolesUpdateCmd} {
		c.Flags().StringVar(&roleForm.Name, "name", "", "Role name")
		c.Flags().StringVar(&roleForm.Description, "description", "", "Role description")
		c.Flags().StringSliceVar(&rolePerms, "permission", nil, "Permission ID (repeatable)")
	}

	rolesCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print JSON instead of a table")
	rolesCmd.AddCommand(rolesListCmd, rolesGetCmd, rolesCreateCmd, rolesUpdateCmd, rolesDeleteCmd)
	rootCmd.AddCommand(rolesCmd)
}

func roleRequest() accounts.RoleRequest {
	req := roleForm
	for _, p := range rolePerms {
		req.Permissions = append(req.Permissions, accounts.ID(p))
	}
	return req
}

func reportRole(r *accounts.Role, verb string) error {
	if outputJSON {
		return printJSON(os.Stdout, r)
	}
	pterm.Success.Printf("%s %s (id %s)\n", verb, r.Name, r.ID)
	return nil
}

func renderPermissions(perms []accounts.Permission) error {
	rows := make([][]string, 0, len(perms))
	for _, p := range perms {
		rows = append(rows, []string{p.ID.String(), p.Codename, p.Name, p.ContentType})
	}
	return renderTable([]string{"ID", "Codename", "Name", "Applies to"}, rows, "No permissions")
}
