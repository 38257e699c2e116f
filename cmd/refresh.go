// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// refreshCmd renews the session without waiting for a request to expire it.
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Renew the saved session now",
	Long: `The refresh command asks the accounts API to renew the current session and
saves the rotated cookies. Other commands refresh automatically when the session
expires, so this is mostly useful to keep a session alive from a scheduled job.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := requireSession(a); err != nil {
				return err
			}
			if _, err := spin("Refreshing session", func() (struct{}, error) {
				return struct{}{}, a.auth.Refresh(cmd.Context())
			}); err != nil {
				return err
			}
			fmt.Println("🔄 Session refreshed")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
