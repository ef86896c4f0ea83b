package webvh

import "sync"

// Sessions serializes mutating operations per identifier: exactly one
// submission may be in flight per (namespace, alias) key, while operations
// on different identifiers proceed in parallel. Lock entries are reference
// counted and removed once the last holder releases them, so the map does
// not grow with the number of identifiers ever seen.
type Sessions struct {
	mu    sync.Mutex
	locks map[sessionKey]*sessionLock
}

type sessionKey struct {
	namespace string
	alias     string
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewSessions() *Sessions {
	return &Sessions{locks: map[sessionKey]*sessionLock{}}
}

// Lock acquires the identifier's lock and returns its release func.
func (s *Sessions) Lock(namespace, alias string) func() {
	key := sessionKey{namespace, alias}

	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &sessionLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
