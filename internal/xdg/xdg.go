// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package xdg provides helpers to resolve XDG Base Directory paths for acctl.
// It implements the XDG Base Directory specification for determining appropriate
// locations for configuration files and state data.
//
// The package handles fallback to traditional locations when XDG environment
// variables are not set and creates directories with private permissions, since
// the state directory may hold the file keyring.
package xdg

import (
	"os"
	"path/filepath"
)

// AppName is the directory name used under each XDG base.
const AppName = "acctl"

// ConfigDir returns the XDG config directory for acctl.
// The directory is created with private permissions (0700) if missing.
// It falls back to ~/.config/acctl when XDG_CONFIG_HOME is unset.
func ConfigDir() (string, error) {
	return appDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the XDG state directory for acctl.
// It falls back to ~/.local/state/acctl when XDG_STATE_HOME is unset.
func StateDir() (string, error) {
	return appDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func appDir(env, fallback string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, fallback)
	}
	dir := filepath.Join(base, AppName)
	if err := os.MkdirAll(dir, 0o700); err != nil { // private dir
		return "", err
	}
	return dir, nil
}
