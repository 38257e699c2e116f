// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import "sync"

// Status is the process-wide session flag.
type Status int

const (
	// StatusUnknown means no call has established or denied the session yet.
	StatusUnknown Status = iota
	// StatusAuthenticated follows a successful login or profile fetch.
	StatusAuthenticated
	// StatusUnauthenticated follows a failed refresh or an explicit logout.
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// StatePersister stores the session flag across process runs.
type StatePersister interface {
	SaveStatus(Status) error
}

// Session holds the session flag. Readers use Current and Subscribe; the
// Gateway that owns the session is its only writer.
type Session struct {
	mu        sync.RWMutex
	status    Status
	subs      map[int]chan Status
	nextSub   int
	persister StatePersister
}

// NewSession returns a session starting at initial. persister may be nil.
func NewSession(initial Status, persister StatePersister) *Session {
	return &Session{
		status:    initial,
		subs:      make(map[int]chan Status),
		persister: persister,
	}
}

// Current returns the current flag.
func (s *Session) Current() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Authenticated reports whether the flag is StatusAuthenticated.
func (s *Session) Authenticated() bool {
	return s.Current() == StatusAuthenticated
}

// Subscribe returns a channel receiving each new status. The channel holds
// only the latest value: a slow reader sees the most recent state, not every
// intermediate one. Call the returned func to unsubscribe.
func (s *Session) Subscribe() (<-chan Status, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Status, 1)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// set changes the flag and notifies subscribers. It reports whether the value
// changed and returns the persister's error, if any.
func (s *Session) set(next Status) (bool, error) {
	s.mu.Lock()
	if s.status == next {
		s.mu.Unlock()
		return false, nil
	}
	s.status = next
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
	persister := s.persister
	s.mu.Unlock()

	if persister != nil {
		return true, persister.SaveStatus(next)
	}
	return true, nil
}
