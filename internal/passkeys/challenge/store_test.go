package challenge

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePopOnce(t *testing.T) {
	s := New(time.Minute)

	s.Store("reg:user-1", webauthn.SessionData{Challenge: "abc"}, "user-1")

	session, subject, ok := s.Pop("reg:user-1")
	require.True(t, ok)
	assert.Equal(t, "abc", session.Challenge)
	assert.Equal(t, "user-1", subject)

	_, _, ok = s.Pop("reg:user-1")
	assert.False(t, ok)
}

func TestPop_UnknownKey(t *testing.T) {
	s := New(time.Minute)

	_, _, ok := s.Pop("auth:nobody@example.com")
	assert.False(t, ok)
}

func TestStore_Overwrite(t *testing.T) {
	s := New(time.Minute)

	s.Store("auth:user@example.com", webauthn.SessionData{Challenge: "first"}, "user@example.com")
	s.Store("auth:user@example.com", webauthn.SessionData{Challenge: "second"}, "user@example.com")

	session, _, ok := s.Pop("auth:user@example.com")
	require.True(t, ok)
	assert.Equal(t, "second", session.Challenge)
}

func TestPop_Expired(t *testing.T) {
	s := New(time.Minute)

	now := time.Now()
	s.now = func() time.Time { return now }

	s.Store("reg:user-1", webauthn.SessionData{Challenge: "abc"}, "user-1")

	s.now = func() time.Time { return now.Add(time.Minute + time.Second) }

	_, _, ok := s.Pop("reg:user-1")
	assert.False(t, ok)
}

func TestPop_WithinTTL(t *testing.T) {
	s := New(time.Minute)

	now := time.Now()
	s.now = func() time.Time { return now }

	s.Store("reg:user-1", webauthn.SessionData{Challenge: "abc"}, "user-1")

	s.now = func() time.Time { return now.Add(59 * time.Second) }

	_, _, ok := s.Pop("reg:user-1")
	assert.True(t, ok)
}

func TestCleanup_DropsOnlyExpired(t *testing.T) {
	s := New(time.Minute)

	now := time.Now()
	s.now = func() time.Time { return now }

	s.Store("reg:old", webauthn.SessionData{}, "old")

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	s.Store("reg:fresh", webauthn.SessionData{}, "fresh")

	_, _, ok := s.Pop("reg:old")
	assert.False(t, ok)

	_, _, ok = s.Pop("reg:fresh")
	assert.True(t, ok)
}

func TestStore_ZeroTTL(t *testing.T) {
	s := New(0)
	assert.Equal(t, DefaultTTL, s.ttl)
}

func TestStore_Concurrent(t *testing.T) {
	s := New(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			key := fmt.Sprintf("reg:user-%d", i)
			s.Store(key, webauthn.SessionData{Challenge: key}, key)

			session, _, ok := s.Pop(key)
			assert.True(t, ok)
			assert.Equal(t, key, session.Challenge)
		}(i)
	}
	wg.Wait()
}
