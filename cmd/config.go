// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"acctl/cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change CLI settings",
	Long: `Settings live in config.json under the acctl config directory. The ACCTL_BASE_URL,
ACCTL_LOG_LEVEL, ACCTL_TIMEOUT, ACCTL_CSRF_HEADER and ACCTL_CSRF_COOKIE environment
variables override the file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if p, err := config.Path(); err == nil {
			pterm.Println(pterm.Gray("# " + p))
		}
		return printJSON(os.Stdout, cfg)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Change one setting",
	Long: `The set command changes one setting and saves the file. Nested keys use dots,
for example 'acctl config set endpoints.refresh /api/auth/refresh/'.`,
	Args: cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return config.Keys(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := config.Path()
		if err != nil {
			return err
		}
		cfg, err := config.LoadFrom(p)
		if err != nil {
			return err
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return err
		}
		if err := config.SaveTo(p, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		pterm.Success.Printf("Set %s = %s\n", args[0], args[1])
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := config.Path()
		if err != nil {
			return err
		}
		fmt.Println(p)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}
