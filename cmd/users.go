// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"acctl/cli/internal/accounts"
)

var (
	outputJSON bool

	userPage     accounts.PageQuery
	userEmail    string
	userUsername string
	userActive   bool
	userInactive bool

	userForm      accounts.UserRequest
	userRoles     []string
	userSetActive bool
)

var usersCmd = &cobra.Command{
	Use:     "users",
	Aliases: []string{"user"},
	Short:   "Manage user accounts",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := accounts.UserQuery{PageQuery: userPage, Email: userEmail, Username: userUsername}
		switch {
		case userActive && userInactive:
			return fmt.Errorf("--active and --inactive are mutually exclusive")
		case userActive:
			q.IsActive = boolPtr(true)
		case userInactive:
			q.IsActive = boolPtr(false)
		}
		return withApp(func(a *app) error {
			page, err := spin("Loading users", func() (*accounts.Page[accounts.User], error) {
				return a.client.ListUsers(cmd.Context(), q)
			})
			if err != nil {
				return a.explain(err, "listing users")
			}
			if outputJSON {
				return printJSON(os.Stdout, page)
			}
			rows := make([][]string, 0, len(page.Results))
			for _, u := range page.Results {
				rows = append(rows, []string{u.ID.String(), u.Username, u.Email, yesNo(u.IsActive), u.DateJoined})
			}
			if err := renderTable([]string{"ID", "Username", "Email", "Active", "Joined"}, rows, "No users found"); err != nil {
				return err
			}
			printPageFooter(len(page.Results), page.Count, page.Next != nil)
			return nil
		})
	},
}

var usersGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			u, err := spin("Loading user", func() (*accounts.UserDetail, error) {
				return a.client.GetUser(cmd.Context(), accounts.ID(args[0]))
			})
			if err != nil {
				return a.explain(err, "loading user "+args[0])
			}
			if outputJSON {
				return printJSON(os.Stdout, u)
			}
			printUser(u)
			return nil
		})
	},
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := userRequest(cmd)
		if req.Email == "" && req.Username == "" {
			return fmt.Errorf("--email or --username is required")
		}
		return withApp(func(a *app) error {
			u, err := spin("Creating user", func() (*accounts.User, error) {
				return a.client.CreateUser(cmd.Context(), req)
			})
			if err != nil {
				return a.explain(err, "creating user")
			}
			return reportUser(u, "Created user")
		})
	},
}

var usersUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change fields of a user",
	Long: `The update command patches a user. Only the flags you pass are sent, so
'acctl users update 7 --first-name Ada' leaves every other field unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := userRequest(cmd)
		return withApp(func(a *app) error {
			u, err := spin("Updating user", func() (*accounts.User, error) {
				return a.client.UpdateUser(cmd.Context(), accounts.ID(args[0]), req)
			})
			if err != nil {
				return a.explain(err, "updating user "+args[0])
			}
			return reportUser(u, "Updated user")
		})
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := a.client.DeleteUser(cmd.Context(), accounts.ID(args[0])); err != nil {
				return a.explain(err, "deleting user "+args[0])
			}
			pterm.Success.Printf("Deleted user %s\n", args[0])
			return nil
		})
	},
}

// userActionCmd builds the activate, deactivate and reset-password commands,
// which share a shape: one ID in, one user out.
func userActionCmd(use, short, verb string, action func(*accounts.Client, context.Context, accounts.ID) (*accounts.User, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app) error {
				u, err := action(a.client, cmd.Context(), accounts.ID(args[0]))
				if err != nil {
					return a.explain(err, use+" for user "+args[0])
				}
				return reportUser(u, verb)
			})
		},
	}
}

func init() {
	usersListCmd.Flags().IntVar(&userPage.Page, "page", 0, "Page number")
	usersListCmd.Flags().IntVar(&userPage.PageSize, "page-size", 0, "Results per page")
	usersListCmd.Flags().StringVar(&userPage.Ordering, "ordering", "", "Sort field, prefix with - for descending")
	usersListCmd.Flags().StringVar(&userEmail, "email", "", "Filter by email")
	usersListCmd.Flags().StringVar(&userUsername, "username", "", "Filter by username")
	usersListCmd.Flags().BoolVar(&userActive, "active", false, "Only active users")
	usersListCmd.Flags().BoolVar(&userInactive, "inactive", false, "Only inactive users")

	for _, c := range []*cobra.Command{usersCreateCmd, usersUpdateCmd} {
		c.Flags().StringVar(&userForm.Email, "email", "", "Email address")
		c.Flags().StringVar(&userForm.Username, "username", "", "Username")
		c.Flags().StringVar(&userForm.Password, "password", "", "Password")
		c.Flags().StringVar(&userForm.FirstName, "first-name", "", "First name")
		c.Flags().StringVar(&userForm.LastName, "last-name", "", "Last name")
		c.Flags().StringSliceVar(&userRoles, "role", nil, "Role ID (repeatable)")
		c.Flags().BoolVar(&userSetActive, "active", true, "Whether the account can sign in")
	}

	activate := userActionCmd("activate", "Allow a user to sign in", "Activated user", (*accounts.Client).ActivateUser)
	deactivate := userActionCmd("deactivate", "Stop a user from signing in", "Deactivated user", (*accounts.Client).DeactivateUser)
	reset := userActionCmd("reset-password", "Send a password reset to a user", "Reset password for", (*accounts.Client).ResetPassword)

	usersCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print JSON instead of a table")
	usersCmd.AddCommand(usersListCmd, usersGetCmd, usersCreateCmd, usersUpdateCmd, usersDeleteCmd, activate, deactivate, reset)
	rootCmd.AddCommand(usersCmd)
}

// userRequest collects the form flags. On update only changed flags are sent.
func userRequest(cmd *cobra.Command) accounts.UserRequest {
	req := userForm
	for _, r := range userRoles {
		req.Roles = append(req.Roles, accounts.ID(r))
	}
	if cmd.Flags().Changed("active") {
		req.IsActive = boolPtr(userSetActive)
	}
	return req
}

func reportUser(u *accounts.User, verb string) error {
	if outputJSON {
		return printJSON(os.Stdout, u)
	}
	name := u.Username
	if name == "" {
		name = u.Email
	}
	pterm.Success.Printf("%s %s (id %s)\n", verb, name, u.ID)
	return nil
}

func printUser(u *accounts.UserDetail) {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, r.Name)
	}
	rows := [][]string{
		{"ID", u.ID.String()},
		{"Name", u.DisplayName()},
		{"Username", u.Username},
		{"Email", u.Email},
		{"Active", yesNo(u.IsActive)},
		{"Staff", yesNo(u.IsStaff)},
		{"Roles", strings.Join(roles, ", ")},
		{"Joined", u.DateJoined},
		{"Last login", u.LastLogin},
	}
	_ = pterm.DefaultTable.WithData(rows).Render()
}

// printPageFooter tells the user how much of the list they are seeing.
func printPageFooter(shown, total int, more bool) {
	if more {
		pterm.Println(pterm.Gray(fmt.Sprintf("Showing %d of %d. Use --page to see more.", shown, total)))
		return
	}
	pterm.Println(pterm.Gray(fmt.Sprintf("%d total", total)))
}

func boolPtr(b bool) *bool { return &b }
