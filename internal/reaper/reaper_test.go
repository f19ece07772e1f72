package reaper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdulhaseeb2115/quizzio/internal/store"
)

type stubIndex struct {
	mu       sync.Mutex
	released bool
}

func (s *stubIndex) Search(context.Context, string, int) ([]string, error) { return nil, nil }
func (s *stubIndex) Len() int                                              { return 0 }
func (s *stubIndex) Dimension() int                                        { return 0 }
func (s *stubIndex) Vectors() [][]float32                                  { return nil }

func (s *stubIndex) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
}

func (s *stubIndex) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestRunEvictsIdleSessions(t *testing.T) {
	c := &clock{t: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	sessions := store.NewSessionStore(store.WithClock(c.Now))
	r := New(sessions, 30*time.Minute, c.Now, zap.NewNop())

	oldIdx := &stubIndex{}
	old, err := sessions.Create(oldIdx)
	require.NoError(t, err)

	c.Advance(20 * time.Minute)
	freshIdx := &stubIndex{}
	fresh, err := sessions.Create(freshIdx)
	require.NoError(t, err)

	c.Advance(11 * time.Minute)
	require.NoError(t, r.Run(context.Background()))

	_, err = sessions.Get(old)
	assert.Error(t, err)
	assert.True(t, oldIdx.isReleased())

	_, err = sessions.Get(fresh)
	assert.NoError(t, err)
	assert.False(t, freshIdx.isReleased())
}

func TestRunKeepsTouchedSession(t *testing.T) {
	c := &clock{t: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	sessions := store.NewSessionStore(store.WithClock(c.Now))
	r := New(sessions, 30*time.Minute, c.Now, zap.NewNop())

	idx := &stubIndex{}
	id, err := sessions.Create(idx)
	require.NoError(t, err)

	c.Advance(29 * time.Minute)
	require.NoError(t, sessions.Touch(id))
	c.Advance(29 * time.Minute)
	require.NoError(t, r.Run(context.Background()))

	_, err = sessions.Get(id)
	assert.NoError(t, err)
	assert.False(t, idx.isReleased())
}

func TestRunBoundaryIsExclusive(t *testing.T) {
	c := &clock{t: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	sessions := store.NewSessionStore(store.WithClock(c.Now))
	r := New(sessions, 30*time.Minute, c.Now, zap.NewNop())

	id, err := sessions.Create(&stubIndex{})
	require.NoError(t, err)

	c.Advance(30 * time.Minute)
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 1, sessions.Len())

	c.Advance(time.Second)
	require.NoError(t, r.Run(context.Background()))
	assert.Zero(t, sessions.Len())

	// already gone: nothing to do, no error
	sessions.Delete(id)
	require.NoError(t, r.Run(context.Background()))
}

func TestRunStopsOnCancel(t *testing.T) {
	c := &clock{t: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	sessions := store.NewSessionStore(store.WithClock(c.Now))
	r := New(sessions, time.Minute, c.Now, zap.NewNop())

	_, err := sessions.Create(&stubIndex{})
	require.NoError(t, err)
	c.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
	assert.Equal(t, 1, sessions.Len())
}

func TestName(t *testing.T) {
	assert.Equal(t, "session_reaper", New(store.NewSessionStore(), time.Minute, nil, zap.NewNop()).Name())
}
