// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog"

	"acctl/cli/internal/backend"
	"acctl/cli/internal/keychain"
)

// Store persists session state and cookies in the keychain. It implements
// backend.StatePersister.
type Store struct {
	km     *keychain.Manager
	logger zerolog.Logger

	mu sync.Mutex
}

// NewStore returns a store backed by km.
func NewStore(km *keychain.Manager, logger zerolog.Logger) *Store {
	return &Store{km: km, logger: logger}
}

// Load reads the auth state from the keychain. Missing state yields zero value.
func (s *Store) Load() (State, error) {
	var st State
	data, err := s.km.LoadSessionState()
	if err != nil {
		s.logger.Debug().Err(err).Msg("load session state")
		return st, err
	}
	if len(data) == 0 {
		s.logger.Debug().Msg("no saved session state")
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, err
	}
	s.logger.Debug().Bool("logged_in", st.LoggedIn).Str("account", st.Account).Msg("session state loaded")
	return st, nil
}

// Save writes the auth state to the keychain.
func (s *Store) Save(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(st)
}

func (s *Store) save(st State) error {
	st.Known = true
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := s.km.SaveSessionState(b); err != nil {
		s.logger.Debug().Err(err).Msg("save session state")
		return err
	}
	return nil
}

// SaveStatus records a session transition. Losing the session also drops
// the saved cookies.
func (s *Store) SaveStatus(status backend.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.Load()
	if err != nil {
		st = State{}
	}
	switch status {
	case backend.StatusAuthenticated:
		st.LoggedIn = true
	case backend.StatusUnauthenticated:
		st = State{}
		if err := s.km.ClearSession(); err != nil {
			return err
		}
	default:
		return nil
	}
	return s.save(st)
}

// SetAccount records the display name of the signed-in user.
func (s *Store) SetAccount(account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.Load()
	if err != nil {
		return err
	}
	st.LoggedIn = true
	st.Account = account
	return s.save(st)
}

// Clear removes the saved session.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.km.ClearSession()
}

// savedCookie is the persisted form of a cookie. A jar only reveals name and
// value, so the cookie is restored host-wide.
type savedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SaveCookies snapshots the jar's cookies for u.
func (s *Store) SaveCookies(jar http.CookieJar, u *url.URL) error {
	cookies := jar.Cookies(u)
	saved := make([]savedCookie, 0, len(cookies))
	for _, c := range cookies {
		saved = append(saved, savedCookie{Name: c.Name, Value: c.Value})
	}
	b, err := json.Marshal(saved)
	if err != nil {
		return err
	}
	s.logger.Debug().Int("cookies", len(saved)).Msg("saving session cookies")
	return s.km.SaveSessionCookies(b)
}

// RestoreCookies loads saved cookies into jar for u. It reports how many were restored.
func (s *Store) RestoreCookies(jar http.CookieJar, u *url.URL) (int, error) {
	data, err := s.km.LoadSessionCookies()
	if err != nil || len(data) == 0 {
		return 0, err
	}
	var saved []savedCookie
	if err := json.Unmarshal(data, &saved); err != nil {
		return 0, err
	}
	cookies := make([]*http.Cookie, 0, len(saved))
	for _, c := range saved {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	root := *u
	root.Path = "/"
	jar.SetCookies(&root, cookies)
	return len(cookies), nil
}
