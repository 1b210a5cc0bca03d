package session

import (
	"strings"
	"sync"
	"time"

	"github.com/gatewarden/internal/domain"
)

// Store is the in-memory registry of active purgatory sessions, keyed by the
// normalized claimed name. Expiry is evaluated lazily on every read; the
// periodic sweep exists only to bound memory.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.PurgatorySession

	// now is swappable for tests
	now func() time.Time
}

// NewStore creates an empty session store
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*domain.PurgatorySession),
		now:      time.Now,
	}
}

// Key normalizes a claimed name for use as a session key
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Put stores a session, replacing any existing session for the same name
func (s *Store) Put(sess *domain.PurgatorySession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[Key(sess.Name)] = sess
}

// Get returns a copy of the active session for a name. Expired sessions are
// removed on access and reported as absent.
func (s *Store) Get(name string) (domain.PurgatorySession, bool) {
	key := Key(name)

	s.mu.RLock()
	sess, ok := s.sessions[key]
	s.mu.RUnlock()
	if !ok {
		return domain.PurgatorySession{}, false
	}

	if sess.Expired(s.now()) {
		s.mu.Lock()
		// Re-check under the write lock; the session may have been replaced
		if cur, ok := s.sessions[key]; ok && cur.Expired(s.now()) {
			delete(s.sessions, key)
		}
		s.mu.Unlock()
		return domain.PurgatorySession{}, false
	}

	return *sess, true
}

// IncrementAttempts bumps the attempt counter for a name's session and
// returns the new count. Returns false if no active session exists.
func (s *Store) IncrementAttempts(name string) (int, bool) {
	key := Key(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok || sess.Expired(s.now()) {
		return 0, false
	}
	sess.Attempts++
	return sess.Attempts, true
}

// Remove deletes the session for a name, expired or not. It reports whether a
// session was present.
func (s *Store) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(name)
	_, ok := s.sessions[key]
	delete(s.sessions, key)
	return ok
}

// SweepExpired removes all expired sessions and returns the removed count
func (s *Store) SweepExpired() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, including not-yet-swept expired ones
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SetNowFunc overrides the store's clock. Tests only.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
