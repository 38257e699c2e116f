// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/99designs/keyring"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acctl/cli/internal/accounts"
	"acctl/cli/internal/backend"
	acerrors "acctl/cli/internal/errors"
	"acctl/cli/internal/keychain"
)

// sessionAPI issues a "sessionid" cookie on login and accepts the profile
// only while that cookie is present and valid.
func sessionAPI(t *testing.T, valid *atomic.Bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case backend.DefaultLoginPath:
			http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "abc", Path: "/"})
			w.WriteHeader(http.StatusOK)
		case backend.DefaultLogoutPath:
			w.WriteHeader(http.StatusOK)
		case backend.DefaultRefreshPath:
			if !valid.Load() {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		case backend.DefaultProfilePath:
			c, err := r.Cookie("sessionid")
			if err != nil || c.Value != "abc" || !valid.Load() {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": true,
				"data":   map[string]any{"id": 1, "email": "ada@example.com"},
			})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newService(t *testing.T, baseURL string, store *Store) *Service {
	t.Helper()
	st, err := store.Load()
	require.NoError(t, err)
	session := backend.NewSession(st.Status(), store)
	gw, err := backend.New(baseURL, backend.WithSession(session))
	require.NoError(t, err)
	svc := NewService(gw, accounts.New(gw, accounts.Paths{}, zerolog.Nop()), store, zerolog.Nop())
	require.NoError(t, svc.Restore())
	return svc
}

func TestLoginPersistsAcrossProcesses(t *testing.T) {
	var valid atomic.Bool
	valid.Store(true)
	srv := sessionAPI(t, &valid)
	store := NewStore(keychain.NewManagerWithRing(keyring.NewArrayKeyring(nil)), zerolog.Nop())
	ctx := context.Background()

	first := newService(t, srv.URL, store)
	u, err := first.Login(ctx, accounts.Credentials{Email: "ada@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)

	st, err := store.Load()
	require.NoError(t, err)
	assert.True(t, st.LoggedIn)
	assert.Equal(t, "ada@example.com", st.Account)

	second := newService(t, srv.URL, store)
	assert.Equal(t, backend.StatusAuthenticated, second.gw.Session().Current())
	account, offline, err := second.WhoAmI(ctx)
	require.NoError(t, err)
	assert.False(t, offline)
	assert.Equal(t, "ada@example.com", account)
}

func TestWhoAmIFallsBackToSavedStateWhenOffline(t *testing.T) {
	store := NewStore(keychain.NewManagerWithRing(keyring.NewArrayKeyring(nil)), zerolog.Nop())
	require.NoError(t, store.SetAccount("ada@example.com"))

	svc := newService(t, "http://127.0.0.1:1", store)
	account, offline, err := svc.WhoAmI(context.Background())
	require.NoError(t, err)
	assert.True(t, offline)
	assert.Equal(t, "ada@example.com", account)
}

func TestExpiredSessionClearsSavedState(t *testing.T) {
	var valid atomic.Bool
	valid.Store(true)
	srv := sessionAPI(t, &valid)
	store := NewStore(keychain.NewManagerWithRing(keyring.NewArrayKeyring(nil)), zerolog.Nop())
	ctx := context.Background()

	svc := newService(t, srv.URL, store)
	_, err := svc.Login(ctx, accounts.Credentials{Username: "ada", Password: "pw"})
	require.NoError(t, err)

	valid.Store(false)
	_, _, err = svc.WhoAmI(ctx)
	require.Error(t, err)
	assert.Equal(t, acerrors.SessionExpired, acerrors.KindOf(err))

	st, err := store.Load()
	require.NoError(t, err)
	assert.False(t, st.LoggedIn)
	assert.Equal(t, backend.StatusUnauthenticated, st.Status())

	cookies, err := keychainCookies(store)
	require.NoError(t, err)
	assert.Nil(t, cookies)
	require.NoError(t, svc.Persist(), "nothing is saved for a lost session")
	cookies, err = keychainCookies(store)
	require.NoError(t, err)
	assert.Nil(t, cookies)
}

func TestLogoutClearsSession(t *testing.T) {
	var valid atomic.Bool
	valid.Store(true)
	srv := sessionAPI(t, &valid)
	store := NewStore(keychain.NewManagerWithRing(keyring.NewArrayKeyring(nil)), zerolog.Nop())
	ctx := context.Background()

	svc := newService(t, srv.URL, store)
	_, err := svc.Login(ctx, accounts.Credentials{Username: "ada", Password: "pw"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx))
	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, State{}, st)
	assert.Equal(t, backend.StatusUnauthenticated, svc.gw.Session().Current())
}

func TestStateStatus(t *testing.T) {
	assert.Equal(t, backend.StatusUnknown, State{}.Status())
	assert.Equal(t, backend.StatusAuthenticated, State{Known: true, LoggedIn: true}.Status())
	assert.Equal(t, backend.StatusUnauthenticated, State{Known: true}.Status())
}

func keychainCookies(s *Store) ([]byte, error) {
	return s.km.LoadSessionCookies()
}
