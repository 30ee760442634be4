package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cipherline/internal/domain"
)

type fakeClock struct {
	sync.Mutex
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.Lock()
	defer c.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.Lock()
	c.t = c.t.Add(d)
	c.Unlock()
}

type recordingSink struct {
	sync.Mutex
	events []domain.SecurityEvent
}

func (r *recordingSink) RecordEvent(e domain.SecurityEvent) {
	r.Lock()
	r.events = append(r.events, e)
	r.Unlock()
}

func (r *recordingSink) types() []string {
	r.Lock()
	defer r.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestStore(t *testing.T) (*Store, *fakeClock, *recordingSink) {
	t.Helper()
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	sink := new(recordingSink)
	s := New(DefaultConfig(), WithClock(clk.Now), WithEventSink(sink))
	return s, clk, sink
}

func TestCreate_AssignsFields(t *testing.T) {
	require := require.New(t)
	s, clk, _ := newTestStore(t)

	sess, err := s.Create("alice", domain.Ed25519Public{1}, domain.SymmetricKey{2})
	require.NoError(err)
	require.Len(string(sess.ID), 64)
	require.Equal(domain.UserID("alice"), sess.UserID)
	require.Equal(clk.Now(), sess.CreatedAt)
	require.Equal(clk.Now().Add(24*time.Hour), sess.ExpiresAt)
	require.False(sess.Keyed)
	require.Equal(1, s.Count())
}

func TestCreate_EvictsLeastRecentlyActive(t *testing.T) {
	require := require.New(t)
	s, clk, sink := newTestStore(t)

	var ids []domain.SessionID
	for i := 0; i < 3; i++ {
		sess, err := s.Create("alice", domain.Ed25519Public{}, domain.SymmetricKey{})
		require.NoError(err)
		ids = append(ids, sess.ID)
		clk.Advance(time.Second)
	}

	// Touch the oldest so the second becomes least recently active.
	_, err := s.Lookup(ids[0])
	require.NoError(err)
	clk.Advance(time.Second)

	fourth, err := s.Create("alice", domain.Ed25519Public{}, domain.SymmetricKey{})
	require.NoError(err)
	require.Equal(3, s.CountForUser("alice"))

	_, err = s.Lookup(ids[1])
	require.ErrorIs(err, ErrSessionNotFound)
	for _, id := range []domain.SessionID{ids[0], ids[2], fourth.ID} {
		_, err := s.Lookup(id)
		require.NoError(err)
	}
	require.Contains(sink.types(), EventEvicted)
}

func TestCreate_CapIsPerUser(t *testing.T) {
	require := require.New(t)
	s, _, _ := newTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := s.Create("alice", domain.Ed25519Public{}, domain.SymmetricKey{})
		require.NoError(err)
		_, err = s.Create("bob", domain.Ed25519Public{}, domain.SymmetricKey{})
		require.NoError(err)
	}
	require.Equal(3, s.CountForUser("alice"))
	require.Equal(3, s.CountForUser("bob"))
	require.Equal(6, s.Count())
}

func TestLookup_AbsoluteExpiry(t *testing.T) {
	require := require.New(t)
	s, clk, sink := newTestStore(t)

	sess, err := s.Create("alice", domain.Ed25519Public{}, domain.SymmetricKey{})
	require.NoError(err)

	// Keep it active so only the absolute deadline applies.
	for i := 0; i < 60; i++ {
		clk.Advance(29 * time.Minute)
		if _, err := s.Lookup(sess.ID); err != nil {
			break
		}
	}
	_, err = s.Lookup(sess.ID)
	require.Error(err)
	require.Equal(0, s.Count())
	require.Contains(sink.types(), EventExpired)
}

func TestLookup_IdleTimeout(t *testing.T) {
	require := require.New(t)
	s, clk, _ := newTestStore(t)

	sess, err := s.Create("alice", domain.Ed25519Public{}, domain.SymmetricKey{})
	require.NoError(err)

	clk.Advance(29 * time.Minute)
	_, err = s.Lookup(sess.ID)
	require.NoError(err)

	clk.Advance(31 * time.Minute)
	_, err = s.Lookup(sess.ID)
	require.ErrorIs(err, ErrSessionExpired)

	_, err = s.Lookup(sess.ID)
	require.ErrorIs(err, ErrSessionNotFound)
}

func TestPeek_DoesNotTouch(t *testing.T) {
	require := require.New(t)
	s, clk, _ := newTestStore(t)

	sess, err := s.Create("alice", domain.Ed25519Public{}, domain.SymmetricKey{})
	require.NoError(err)

	clk.Advance(20 * time.Minute)
	_, err = s.Peek(sess.ID)
	require.NoError(err)

	clk.Advance(20 * time.Minute)
	_, err = s.Peek(sess.ID)
	require.ErrorIs(err, ErrSessionExpired)
}

func TestUpdateKey(t *testing.T) {
	require := require.New(t)
	s, _, sink := newTestStore(t)

	sess, err := s.Create("alice", domain.Ed25519Public{}, domain.SymmetricKey{1})
	require.NoError(err)

	require.NoError(s.UpdateKey(sess.ID, domain.SymmetricKey{9}))
	got, err := s.Lookup(sess.ID)
	require.NoError(err)
	require.True(got.Keyed)
	require.Equal(domain.SymmetricKey{9}, got.Key)
	require.Contains(sink.types(), EventKeyUpdated)

	require.ErrorIs(s.UpdateKey("missing", domain.SymmetricKey{}), ErrSessionNotFound)
}

func TestEndAndEndAll(t *testing.T) {
	require := require.New(t)
	s, _, _ := newTestStore(t)

	a1, _ := s.Create("alice", domain.Ed25519Public{}, domain.SymmetricKey{})
	_, _ = s.Create("alice", domain.Ed25519Public{}, domain.SymmetricKey{})
	_, _ = s.Create("bob", domain.Ed25519Public{}, domain.SymmetricKey{})

	s.End(a1.ID)
	s.End(a1.ID)
	require.Equal(1, s.CountForUser("alice"))

	require.Equal(1, s.EndAll("alice"))
	require.Equal(0, s.CountForUser("alice"))
	require.Equal(1, s.Count())
}

func TestSweep(t *testing.T) {
	require := require.New(t)
	s, clk, _ := newTestStore(t)

	old, _ := s.Create("alice", domain.Ed25519Public{}, domain.SymmetricKey{})
	clk.Advance(20 * time.Minute)
	fresh, _ := s.Create("bob", domain.Ed25519Public{}, domain.SymmetricKey{})
	clk.Advance(15 * time.Minute)

	require.Equal(1, s.Sweep(clk.Now()))
	_, err := s.Peek(old.ID)
	require.ErrorIs(err, ErrSessionNotFound)
	_, err = s.Peek(fresh.ID)
	require.NoError(err)
}

func TestLookup_ReturnsCopy(t *testing.T) {
	require := require.New(t)
	s, _, _ := newTestStore(t)

	sess, _ := s.Create("alice", domain.Ed25519Public{}, domain.SymmetricKey{1})
	got, _ := s.Lookup(sess.ID)
	got.Key = domain.SymmetricKey{7}

	again, _ := s.Lookup(sess.ID)
	require.Equal(domain.SymmetricKey{1}, again.Key)
}

func TestConcurrentCreateRespectsCap(t *testing.T) {
	s, _, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Create("alice", domain.Ed25519Public{}, domain.SymmetricKey{})
		}()
	}
	wg.Wait()
	require.Equal(t, 3, s.CountForUser("alice"))
}
