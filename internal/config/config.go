// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads and stores CLI configuration in the XDG config dir.
// Only non-secret settings are kept here; the session lives in the OS keychain.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"acctl/cli/internal/backend"
	acerrors "acctl/cli/internal/errors"
	"acctl/cli/internal/xdg"
)

// Config holds non-sensitive CLI settings.
type Config struct {
	BaseURL     string    `json:"base_url"`
	LogLevel    string    `json:"log_level"`
	Timeout     string    `json:"timeout"`
	Endpoints   Endpoints `json:"endpoints"`
	CSRF        CSRF      `json:"csrf"`
	MetricsAddr string    `json:"metrics_addr,omitempty"`
}

// Endpoints are the API paths used by the CLI.
type Endpoints struct {
	Login       string `json:"login"`
	Logout      string `json:"logout"`
	Refresh     string `json:"refresh"`
	Profile     string `json:"profile"`
	Users       string `json:"users"`
	Roles       string `json:"roles"`
	Permissions string `json:"permissions"`
}

// CSRF names the anti-forgery header and the cookie it is read from.
type CSRF struct {
	Header string `json:"header"`
	Cookie string `json:"cookie"`
}

// Environment variables that override the file.
const (
	EnvBaseURL    = "ACCTL_BASE_URL"
	EnvLogLevel   = "ACCTL_LOG_LEVEL"
	EnvTimeout    = "ACCTL_TIMEOUT"
	EnvCSRFHeader = "ACCTL_CSRF_HEADER"
	EnvCSRFCookie = "ACCTL_CSRF_COOKIE"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL:  "http://localhost:8000",
		LogLevel: "info",
		Timeout:  backend.DefaultTimeout.String(),
		Endpoints: Endpoints{
			Login:       backend.DefaultLoginPath,
			Logout:      backend.DefaultLogoutPath,
			Refresh:     backend.DefaultRefreshPath,
			Profile:     backend.DefaultProfilePath,
			Users:       "/api/accounts/users/",
			Roles:       "/api/accounts/roles/",
			Permissions: "/api/accounts/permissions/",
		},
		CSRF: CSRF{
			Header: backend.DefaultCSRFHeader,
			Cookie: backend.DefaultCSRFCookie,
		},
	}
}

// Path returns the path to the config file.
func Path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration; a missing file yields defaults. Environment
// overrides are applied last.
func Load() (Config, error) {
	p, err := Path()
	if err != nil {
		return Default(), err
	}
	return LoadFrom(p)
}

// LoadFrom reads configuration from p.
func LoadFrom(p string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(p)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return c, err
	default:
		if err := json.Unmarshal(data, &c); err != nil {
			return c, acerrors.Wrap(acerrors.ConfigInvalid, "cannot parse "+p, err)
		}
	}
	c.applyEnv()
	return c, nil
}

func (c *Config) applyEnv() {
	for env, dst := range map[string]*string{
		EnvBaseURL:    &c.BaseURL,
		EnvLogLevel:   &c.LogLevel,
		EnvTimeout:    &c.Timeout,
		EnvCSRFHeader: &c.CSRF.Header,
		EnvCSRFCookie: &c.CSRF.Cookie,
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}
}

// Validate reports settings the CLI cannot work with.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return acerrors.New(acerrors.ConfigInvalid, fmt.Sprintf("base_url %q must be an absolute URL", c.BaseURL))
	}
	if c.Endpoints.Login == "" || c.Endpoints.Refresh == "" {
		return acerrors.New(acerrors.ConfigInvalid, "endpoints.login and endpoints.refresh must be set")
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return acerrors.Wrap(acerrors.ConfigInvalid, fmt.Sprintf("timeout %q is not a duration", c.Timeout), err)
	}
	return nil
}

// TimeoutDuration parses Timeout; empty means the default.
func (c Config) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return backend.DefaultTimeout, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

// GatewayEndpoints returns the paths the gateway treats specially.
func (c Config) GatewayEndpoints() backend.Endpoints {
	return backend.Endpoints{
		Login:   c.Endpoints.Login,
		Logout:  c.Endpoints.Logout,
		Refresh: c.Endpoints.Refresh,
		Profile: c.Endpoints.Profile,
	}
}

// settable maps `config set` keys onto fields.
func (c *Config) settable() map[string]*string {
	return map[string]*string{
		"base_url":              &c.BaseURL,
		"log_level":             &c.LogLevel,
		"timeout":               &c.Timeout,
		"metrics_addr":          &c.MetricsAddr,
		"csrf.header":           &c.CSRF.Header,
		"csrf.cookie":           &c.CSRF.Cookie,
		"endpoints.login":       &c.Endpoints.Login,
		"endpoints.logout":      &c.Endpoints.Logout,
		"endpoints.refresh":     &c.Endpoints.Refresh,
		"endpoints.profile":     &c.Endpoints.Profile,
		"endpoints.users":       &c.Endpoints.Users,
		"endpoints.roles":       &c.Endpoints.Roles,
		"endpoints.permissions": &c.Endpoints.Permissions,
	}
}

// Keys lists the keys accepted by Set.
func Keys() []string {
	var c Config
	keys := make([]string, 0, 16)
	for k := range c.settable() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns a value by dotted key.
func (c *Config) Set(key, value string) error {
	dst, ok := c.settable()[key]
	if !ok {
		return acerrors.New(acerrors.ConfigInvalid, fmt.Sprintf("unknown key %q (valid: %s)", key, strings.Join(Keys(), ", ")))
	}
	*dst = value
	return nil
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(p, c)
}

// SaveTo writes configuration to p with 0600 permissions.
func SaveTo(p string, c Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}
