package challenge

import (
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

// DefaultTTL bounds how long a ceremony may stay pending.
const DefaultTTL = 5 * time.Minute

type entry struct {
	session   webauthn.SessionData
	subject   string
	createdAt time.Time
}

// Store holds pending WebAuthn session data keyed by purpose-scoped key
// ("reg:<user_id>" or "auth:<email>"). Entries are single-use: Pop removes
// what it returns. Losing the map on restart only forces a ceremony retry,
// so nothing is persisted.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry

	now func() time.Time
}

func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Store{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Store purges expired entries, then inserts or overwrites key.
func (s *Store) Store(key string, session webauthn.SessionData, subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanup()

	s.entries[key] = entry{
		session:   session,
		subject:   subject,
		createdAt: s.now(),
	}
}

// Pop removes and returns the entry for key. A second Pop with the same key,
// or a Pop past the TTL, reports absent. Expiry is checked here too, not
// only during cleanup, so a stale entry can never be accepted.
func (s *Store) Pop(key string) (webauthn.SessionData, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanup()

	e, ok := s.entries[key]
	if !ok {
		return webauthn.SessionData{}, "", false
	}

	delete(s.entries, key)

	if s.now().Sub(e.createdAt) > s.ttl {
		return webauthn.SessionData{}, "", false
	}

	return e.session, e.subject, true
}

// cleanup is opportunistic: it runs under the caller's lock on every access
// rather than on a timer. Under zero traffic expired entries linger until
// the next call.
func (s *Store) cleanup() {
	now := s.now()
	for k, e := range s.entries {
		if now.Sub(e.createdAt) > s.ttl {
			delete(s.entries, k)
		}
	}
}
