// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"acctl/cli/internal/accounts"
	"acctl/cli/internal/backend"
	acerrors "acctl/cli/internal/errors"
)

// Service centralizes authentication-related operations against the accounts
// API and the saved session.
type Service struct {
	gw     *backend.Gateway
	client *accounts.Client
	store  *Store
	logger zerolog.Logger
}

// NewService wires a service. The gateway should have been built with a
// session persisted by store.
func NewService(gw *backend.Gateway, client *accounts.Client, store *Store, logger zerolog.Logger) *Service {
	return &Service{gw: gw, client: client, store: store, logger: logger}
}

// Restore loads the saved cookies into the gateway's jar.
func (s *Service) Restore() error {
	n, err := s.store.RestoreCookies(s.gw.Jar(), s.gw.BaseURL())
	if err != nil {
		return err
	}
	s.logger.Debug().Int("cookies", n).Msg("session cookies restored")
	return nil
}

// Persist saves the current cookies if the session is still usable. The
// server may have rotated them during a refresh.
func (s *Service) Persist() error {
	if s.gw.Session().Current() == backend.StatusUnauthenticated {
		return nil
	}
	return s.store.SaveCookies(s.gw.Jar(), s.gw.BaseURL())
}

// Login signs in and saves the session.
func (s *Service) Login(ctx context.Context, creds accounts.Credentials) (*accounts.UserDetail, error) {
	u, err := s.client.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetAccount(accountName(u)); err != nil {
		s.logger.Warn().Err(err).Msg("could not save session state")
	}
	if err := s.store.SaveCookies(s.gw.Jar(), s.gw.BaseURL()); err != nil {
		return u, err
	}
	return u, nil
}

// Logout performs remote logout (best-effort) and clears the saved session.
func (s *Service) Logout(ctx context.Context) error {
	remoteErr := s.client.Logout(ctx)
	if remoteErr != nil {
		s.logger.Debug().Err(remoteErr).Msg("remote logout failed")
	}
	return s.store.Clear()
}

// WhoAmI returns the signed-in account. When the API is unreachable it falls
// back to the saved state and reports offline as true.
func (s *Service) WhoAmI(ctx context.Context) (account string, offline bool, err error) {
	u, err := s.client.Profile(ctx)
	if err == nil {
		name := accountName(u)
		if saveErr := s.store.SetAccount(name); saveErr != nil {
			s.logger.Debug().Err(saveErr).Msg("could not update saved account")
		}
		return name, false, nil
	}

	var f *backend.Failure
	if errors.As(err, &f) && f.Kind == backend.KindNetworkOrServer {
		st, loadErr := s.store.Load()
		if loadErr == nil && st.LoggedIn && st.Account != "" {
			return st.Account, true, nil
		}
		return "", false, acerrors.Wrap(acerrors.RequestFailed, "could not reach the accounts API", err)
	}
	if errors.Is(err, backend.ErrRefreshFailed) {
		return "", false, acerrors.Wrap(acerrors.SessionExpired, "session expired", err)
	}
	return "", false, acerrors.Wrap(acerrors.NotLoggedIn, "not logged in", err)
}

// Refresh renews the session explicitly and saves the rotated cookies.
func (s *Service) Refresh(ctx context.Context) error {
	if err := s.gw.Refresh(ctx); err != nil {
		return acerrors.Wrap(acerrors.SessionExpired, "session could not be refreshed", err)
	}
	return s.Persist()
}

func accountName(u *accounts.UserDetail) string {
	switch {
	case u.Email != "":
		return u.Email
	case u.Username != "":
		return u.Username
	case u.ID != "":
		return "user " + u.ID.String()
	default:
		return "user"
	}
}
