// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface for the Acctl CLI application.
// It implements subcommands for signing in, managing users, roles and permissions,
// and calling arbitrary accounts API endpoints through the session gateway, using
// the Cobra CLI framework.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	acerrors "acctl/cli/internal/errors"
)

var (
	showVersion bool
	verbose     bool
	baseURLFlag string
	metricsAddr string
)

// rootCmd represents the base command when called without any subcommands.
// It serves as the entry point for the Acctl CLI application.
var rootCmd = &cobra.Command{
	Use:   "acctl",
	Short: "Acctl CLI for the accounts API",
	Long: `Acctl is a command-line client for the accounts API. It keeps your session in the
system keychain, refreshes it transparently when it expires, and retries the
requests that were waiting for the refresh.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			printVersion()
			return nil
		}
		// If no flag is set, show help
		return cmd.Help()
	},
}

// Execute runs the CLI application.
// It executes the root command and handles any errors that occur during execution.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Explained errors were already printed with their advice.
		var e *acerrors.E
		if !errors.As(err, &e) || e.Kind == acerrors.ConfigInvalid {
			fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps error kinds onto process exit codes so scripts can tell a
// lost session from a failed request.
func exitCode(err error) int {
	switch acerrors.KindOf(err) {
	case acerrors.NotLoggedIn, acerrors.SessionExpired:
		return 3
	case acerrors.ConfigInvalid:
		return 2
	default:
		return 1
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show CLI version information")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log requests and session changes to stderr")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "Accounts API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")
}
