package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPollPoolExpiresIdleEntries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pool := NewPollPool()
	pool.now = func() time.Time { return now }

	pool.Register("stale", PollMeta{CreatorID: 1})
	now = now.Add(DefaultPollTTL - time.Hour)
	pool.Register("fresh", PollMeta{CreatorID: 2})
	require.Equal(t, 2, pool.Len())

	now = now.Add(time.Hour + time.Minute)
	_, ok := pool.Lookup("fresh")
	require.True(t, ok)
	_, ok = pool.Lookup("stale")
	require.False(t, ok, "idle entry must fall out after the TTL")
	require.Equal(t, 1, pool.Len())
}

func TestPollPoolLookupRefreshesTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pool := NewPollPool()
	pool.now = func() time.Time { return now }

	pool.Register("p1", PollMeta{CreatorID: 1})
	now = now.Add(DefaultPollTTL - time.Hour)
	_, ok := pool.Lookup("p1")
	require.True(t, ok)

	// The vote above reset the idle clock, so the entry survives past the
	// original registration TTL.
	now = now.Add(DefaultPollTTL - time.Hour)
	_, ok = pool.Lookup("p1")
	require.True(t, ok)
}

func TestPollPoolRemove(t *testing.T) {
	pool := NewPollPool()
	pool.Register("p1", PollMeta{CreatorID: 1})
	pool.Remove("p1")
	_, ok := pool.Lookup("p1")
	require.False(t, ok)
	require.Equal(t, 0, pool.Len())
}
