// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"acctl/cli/internal/accounts"
	"acctl/cli/internal/backend"
	acerrors "acctl/cli/internal/errors"
	"acctl/cli/internal/terminal"
)

var (
	loginUser          string
	loginPasswordStdin bool
)

// loginCmd signs in with a username or email and a password.
// The password is read without echo, or from stdin with --password-stdin.
var loginCmd = &cobra.Command{
	Use:     "login",
	Aliases: []string{"auth"},
	Short:   "Sign in to the accounts API",
	Long: `The login command signs in with a username or email address and a password.
The session cookies are stored in the system keychain, so later commands reuse the
session and refresh it automatically when it expires.

If you are already signed in with a valid session, the command says so and exits.
Use --password-stdin to read the password from standard input in scripts.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			ctx := cmd.Context()

			// If already logged in with a valid session, short-circuit
			if a.gw.Session().Authenticated() {
				if account, offline, err := a.auth.WhoAmI(ctx); err == nil && !offline {
					fmt.Printf("Already logged in as %s\n", account)
					return nil
				}
			}

			creds, err := readCredentials(os.Stdin, os.Stdout)
			if err != nil {
				return err
			}

			u, err := spin("Signing in", func() (*accounts.UserDetail, error) {
				return a.auth.Login(ctx, creds)
			})
			if err != nil {
				return a.explain(err, "signing in")
			}
			fmt.Println(getRandomLoginGreeting(u.DisplayName()))
			return nil
		})
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUser, "user", "u", "", "Username or email address")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "Read the password from stdin")
	rootCmd.AddCommand(loginCmd)
}

// readCredentials prompts for whatever the flags did not provide.
func readCredentials(in io.Reader, out io.Writer) (accounts.Credentials, error) {
	r := bufio.NewReader(in)
	user := strings.TrimSpace(loginUser)
	if user == "" {
		if !terminal.Interactive() {
			return accounts.Credentials{}, errors.New("--user is required when stdin is not a terminal")
		}
		prompt := "Username or email: "
		line, err := terminal.ReadLine(r, out, prompt)
		if err != nil {
			return accounts.Credentials{}, err
		}
		terminal.ClearPreviousLines(len(prompt) + len(line))
		user = line
	}

	var password string
	if loginPasswordStdin {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return accounts.Credentials{}, fmt.Errorf("read password from stdin: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	} else {
		p, err := terminal.ReadPassword(out, "Password: ")
		if err != nil {
			return accounts.Credentials{}, fmt.Errorf("read password: %w (use --password-stdin in scripts)", err)
		}
		password = p
	}

	return credentialsFor(user, password), nil
}

// credentialsFor sends an email address as email and anything else as username.
func credentialsFor(user, password string) accounts.Credentials {
	if strings.Contains(user, "@") {
		return accounts.Credentials{Email: user, Password: password}
	}
	return accounts.Credentials{Username: user, Password: password}
}

// getRandomLoginGreeting returns a random greeting phrase with the user's identifier
func getRandomLoginGreeting(identifier string) string {
	greetings := []string{
		"🎉 Welcome back, %s!",
		"✨ Great to see you, %s!",
		"🚀 You're all set, %s!",
		"💫 Successfully authenticated as %s",
		"🌟 Welcome aboard, %s!",
		"✅ Authentication complete! Hi %s!",
		"🎯 You're in, %s!",
		"🔓 Access granted! Welcome %s!",
	}
	return fmt.Sprintf(greetings[rand.Intn(len(greetings))], identifier)
}

// requireSession fails early when the saved state says nobody is signed in.
func requireSession(a *app) error {
	if a.gw.Session().Current() == backend.StatusUnauthenticated {
		printNotLoggedIn()
		return acerrors.New(acerrors.NotLoggedIn, "not logged in")
	}
	return nil
}

func printNotLoggedIn() {
	fmt.Println("🔒 You're not logged in yet!")
	fmt.Println("   Run 'acctl login' to get started.")
}
