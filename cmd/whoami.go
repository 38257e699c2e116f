// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	acerrors "acctl/cli/internal/errors"
)

// whoamiCmd represents the whoami command for displaying current authentication state.
// It validates the saved session against the profile endpoint, refreshing it when
// needed, and falls back to the saved account when the API is unreachable.
var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	Aliases: []string{"me"},
	Short:   "Show current authenticated account",
	Long: `The whoami command displays the currently authenticated account.
It validates the session with the accounts API, refreshing it if it expired.

If the API cannot be reached, the account saved at login is shown instead.
This command is useful for verifying authentication status in scripts: it exits
with status 3 when nobody is signed in.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := requireSession(a); err != nil {
				return err
			}

			account, offline, err := a.auth.WhoAmI(cmd.Context())
			switch acerrors.KindOf(err) {
			case "":
			case acerrors.NotLoggedIn:
				printNotLoggedIn()
				return err
			case acerrors.SessionExpired:
				// The navigator already printed the advice.
				return err
			default:
				return a.explain(err, "checking your session")
			}

			fmt.Println(getRandomWhoAmIPhrase(account))
			if offline {
				pterm.Println(pterm.Gray("   (offline: showing the account saved at login)"))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

// getRandomWhoAmIPhrase returns a friendly phrase with the user's identifier
func getRandomWhoAmIPhrase(identifier string) string {
	return fmt.Sprintf("👤 Current user: %s", identifier)
}
