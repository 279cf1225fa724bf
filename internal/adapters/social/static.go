package social

import (
	"context"
	"sync"
)

// Static serves friend lists from memory. Used when no social service is
// configured and in tests.
type Static struct {
	mu      sync.RWMutex
	friends map[string][]string
}

// NewStatic returns an empty Static; every account starts without friends.
func NewStatic() *Static {
	return &Static{friends: make(map[string][]string)}
}

// Set replaces the friends of account in gamespace.
func (s *Static) Set(gamespace, account string, friends ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friends[gamespace+"/"+account] = append([]string(nil), friends...)
}

// ListFriends returns a copy of the stored list.
func (s *Static) ListFriends(_ context.Context, gamespace, account string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.friends[gamespace+"/"+account]...), nil
}
