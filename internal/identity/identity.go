// Package identity exposes the current user to the parts of the core that
// need one (analytics, download ownership). Absence of a user is a valid
// state and must silently disable analytics.
package identity

import "sync"

// Provider yields the current user id. ok is false when nobody is signed in.
type Provider interface {
	CurrentUserID() (id string, ok bool)
}

// Static is a Provider with a fixed (possibly empty) user id, settable at
// runtime when the host app signs a user in or out.
type Static struct {
	mu sync.RWMutex
	id string
}

func NewStatic(id string) *Static {
	return &Static{id: id}
}

func (s *Static) CurrentUserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, s.id != ""
}

func (s *Static) SetUserID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
}
