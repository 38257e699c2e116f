// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/99designs/keyring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"

	"acctl/cli/internal/accounts"
	"acctl/cli/internal/auth"
	"acctl/cli/internal/backend"
	"acctl/cli/internal/config"
	acerrors "acctl/cli/internal/errors"
	"acctl/cli/internal/httperrors"
	"acctl/cli/internal/keychain"
	"acctl/cli/internal/logging"
)

// app is everything a command needs to talk to the accounts API.
type app struct {
	cfg     config.Config
	logger  zerolog.Logger
	gw      *backend.Gateway
	client  *accounts.Client
	auth    *auth.Service
	host    string
	metrics *http.Server
}

// cliNavigator tells the user to sign in again when the session is lost.
type cliNavigator struct{}

func (cliNavigator) ToLogin(context.Context) {
	pterm.Warning.Println("Your session has expired.")
	pterm.Println("   Run 'acctl login' to sign in again.")
}

// newApp loads configuration, restores the saved session and wires the gateway.
// Callers must defer close.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if baseURLFlag != "" {
		cfg.BaseURL = baseURLFlag
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if verbose || os.Getenv("ACCTL_VERBOSE") == "1" {
		level = "debug"
	}
	logger := logging.New(level, os.Stderr)

	km, err := keychain.GetManager()
	if err != nil {
		// Keep working for this process; the session just won't survive it.
		logger.Warn().Err(err).Msg("system keychain unavailable, session will not be saved")
		km = keychain.NewManagerWithRing(keyring.NewArrayKeyring(nil))
	}
	store := auth.NewStore(km, logger)
	st, err := store.Load()
	if err != nil {
		logger.Debug().Err(err).Msg("saved session unreadable, starting signed out")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := backend.NewMetrics(registry)

	gw, err := backend.New(cfg.BaseURL,
		backend.WithSession(backend.NewSession(st.Status(), store)),
		backend.WithEndpoints(cfg.GatewayEndpoints()),
		backend.WithCSRFHeader(cfg.CSRF.Header),
		backend.WithCSRFCookie(cfg.CSRF.Cookie),
		backend.WithNavigator(cliNavigator{}),
		backend.WithLogger(logger),
		backend.WithMetrics(metrics),
		backend.WithTimeout(timeout),
		backend.WithUserAgent("acctl/"+Version),
	)
	if err != nil {
		return nil, acerrors.Wrap(acerrors.ConfigInvalid, "invalid base_url", err)
	}

	client := accounts.New(gw, accounts.Paths{
		Login:       cfg.Endpoints.Login,
		Logout:      cfg.Endpoints.Logout,
		Profile:     cfg.Endpoints.Profile,
		Users:       cfg.Endpoints.Users,
		Roles:       cfg.Endpoints.Roles,
		Permissions: cfg.Endpoints.Permissions,
	}, logger)
	svc := auth.NewService(gw, client, store, logger)
	if err := svc.Restore(); err != nil {
		logger.Debug().Err(err).Msg("could not restore session cookies")
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		gw:     gw,
		client: client,
		auth:   svc,
		host:   httperrors.ExtractHostFromURL(cfg.BaseURL),
	}
	if cfg.MetricsAddr != "" {
		a.serveMetrics(registry)
	}
	return a, nil
}

// serveMetrics exposes the registry until close is called.
func (a *app) serveMetrics(registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	a.metrics = &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn().Err(err).Str("addr", a.cfg.MetricsAddr).Msg("metrics server stopped")
		}
	}()
	a.logger.Debug().Str("addr", a.cfg.MetricsAddr).Msg("serving metrics")
}

// close saves rotated cookies and stops the metrics server.
func (a *app) close() {
	if err := a.auth.Persist(); err != nil {
		a.logger.Warn().Err(err).Msg("could not save session")
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metrics.Shutdown(ctx)
	}
}

// explain prints err for the user and returns it with a kind attached.
func (a *app) explain(err error, context string) error {
	err = httperrors.Explain(err, context, a.host)
	if err != nil && acerrors.KindOf(err) == "" {
		return acerrors.Wrap(acerrors.RequestFailed, context, err)
	}
	return err
}

// withApp builds the app, runs fn and closes the app afterwards.
func withApp(fn func(a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}
