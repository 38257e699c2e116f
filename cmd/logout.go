// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// logoutCmd ends the session on the server and removes it from the keychain.
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the saved session",
	Long: `The logout command ends the session on the server and removes the saved
session cookies from the system keychain. The local session is cleared even
when the server cannot be reached.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := a.auth.Logout(cmd.Context()); err != nil {
				return fmt.Errorf("clear saved session: %w", err)
			}
			fmt.Println("👋 Logged out")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
