// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package auth keeps the CLI's session across invocations. It persists the
// session flag and the session cookies in the OS keychain, restores them into
// a fresh gateway, and wraps login, logout and whoami for the commands.
package auth

import "acctl/cli/internal/backend"

// State represents persisted authentication state for the current user.
type State struct {
	LoggedIn bool   `json:"logged_in"`
	Account  string `json:"account,omitempty"`
	// Known is false until a login or an expired session has been recorded.
	Known bool `json:"known"`
}

// Status maps the saved state onto the gateway's session flag. A saved
// login is trusted optimistically; the first 401 will refresh or drop it.
func (s State) Status() backend.Status {
	switch {
	case !s.Known:
		return backend.StatusUnknown
	case s.LoggedIn:
		return backend.StatusAuthenticated
	default:
		return backend.StatusUnauthenticated
	}
}
