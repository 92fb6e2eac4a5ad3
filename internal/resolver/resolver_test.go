package resolver

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/anonlounge/anonlounge/internal/platform/telegram"
)

type stubLookup struct {
	ids   map[string]int64
	calls int
}

func (s *stubLookup) ResolveUsername(_ context.Context, username string) (int64, error) {
	s.calls++
	id, ok := s.ids[username]
	if !ok {
		return 0, errors.New("chat not found")
	}
	return id, nil
}

func newFixture(t *testing.T, ids map[string]int64) (*Resolver, *stubLookup) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	lookup := &stubLookup{ids: ids}
	return NewResolver(lookup, rdb, time.Hour, slog.New(slog.DiscardHandler)), lookup
}

func TestResolveNumericToken(t *testing.T) {
	r, lookup := newFixture(t, nil)

	id, err := r.Resolve(context.Background(), "1234")
	require.NoError(t, err)
	require.EqualValues(t, 1234, id)
	require.Zero(t, lookup.calls)
}

func TestResolveUsernameCached(t *testing.T) {
	r, lookup := newFixture(t, map[string]int64{"alice": 77})

	for _, raw := range []string{"@alice", "alice", "@Alice"} {
		id, err := r.Resolve(context.Background(), raw)
		require.NoError(t, err, raw)
		require.EqualValues(t, 77, id, raw)
	}
	require.Equal(t, 1, lookup.calls, "later lookups must come from cache")
}

func TestResolveUnknownUsername(t *testing.T) {
	r, _ := newFixture(t, nil)

	_, err := r.Resolve(context.Background(), "@nobody")
	require.ErrorIs(t, err, ErrUnresolvedTarget)
}

func TestResolveEmptyToken(t *testing.T) {
	r, _ := newFixture(t, nil)

	_, err := r.Resolve(context.Background(), "  ")
	require.ErrorIs(t, err, ErrUnresolvedTarget)
}

func TestTargetFromMessagePrefersReply(t *testing.T) {
	r, lookup := newFixture(t, map[string]int64{"bob": 9})

	msg := &telegram.Message{
		Text:     "/ban @bob",
		Entities: []telegram.Entity{{Type: "bot_command", Offset: 0, Length: 4}},
		ReplyTo:  &telegram.Message{From: telegram.UserRef{ID: 55}},
	}
	id, err := r.TargetFromMessage(context.Background(), msg, 0)
	require.NoError(t, err)
	require.EqualValues(t, 55, id)
	require.Zero(t, lookup.calls)
}

func TestTargetFromMessageArgument(t *testing.T) {
	r, _ := newFixture(t, map[string]int64{"bob": 9})

	msg := &telegram.Message{
		Text:     "/ban @bob",
		Entities: []telegram.Entity{{Type: "bot_command", Offset: 0, Length: 4}},
	}
	id, err := r.TargetFromMessage(context.Background(), msg, 0)
	require.NoError(t, err)
	require.EqualValues(t, 9, id)

	_, err = r.TargetFromMessage(context.Background(), msg, 5)
	require.ErrorIs(t, err, ErrUnresolvedTarget)
}
