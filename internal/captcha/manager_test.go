package captcha_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonlounge/anonlounge/internal/captcha"
	"github.com/anonlounge/anonlounge/internal/users"
)

type memStore struct {
	statuses map[int64]users.CaptchaStatus
	saves    int
}

func (s *memStore) CaptchaStatus(_ context.Context, id int64) (users.CaptchaStatus, error) {
	return s.statuses[id], nil
}

func (s *memStore) SaveCaptchaStatus(_ context.Context, st users.CaptchaStatus) error {
	s.statuses[st.UserID] = st
	s.saves++
	return nil
}

type recordingModerator struct {
	bans  []time.Time
	kicks int
}

func (m *recordingModerator) Ban(_ context.Context, _ int64, _ string, end time.Time) error {
	m.bans = append(m.bans, end)
	return nil
}

func (m *recordingModerator) Kick(_ context.Context, _ int64) error {
	m.kicks++
	return nil
}

type stubRenderer struct{ rendered []string }

func (r *stubRenderer) Render(code string) ([]byte, error) {
	r.rendered = append(r.rendered, code)
	return []byte("png:" + code), nil
}

type fixture struct {
	manager   *captcha.Manager
	store     *memStore
	moderator *recordingModerator
	renderer  *stubRenderer
	now       time.Time
}

func newFixture(t *testing.T, cfg captcha.Config) *fixture {
	t.Helper()
	f := &fixture{
		store:     &memStore{statuses: map[int64]users.CaptchaStatus{42: {UserID: 42}}},
		moderator: &recordingModerator{},
		renderer:  &stubRenderer{},
		now:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	codes := []string{"AAAA1111", "BBBB2222", "CCCC3333", "DDDD4444"}
	next := 0
	f.manager = captcha.NewManager(cfg, f.store, f.moderator, f.renderer, slog.Default()).
		WithClock(func() time.Time { return f.now }).
		WithCodeSource(func() string {
			code := codes[next%len(codes)]
			next++
			return code
		})
	return f
}

func defaultConfig() captcha.Config {
	return captcha.Config{
		FailuresPerNewChallenge: 3,
		Expiry:                  10 * time.Minute,
		MinDelay:                5 * time.Second,
		MaxTries:                4,
		LockoutAction:           captcha.ActionBan,
		LockoutBanFor:           24 * time.Hour,
	}
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func TestStartSessionGeneratesFreshChallenge(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	ch, err := f.manager.StartSession(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, []byte("png:AAAA1111"), ch.Image)
	assert.Equal(t, "AAAA1111", f.store.statuses[42].CurrentValue)
	assert.Equal(t, f.now, f.store.statuses[42].CreationTime)
}

func TestStartSessionRepromptsExistingChallenge(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, 42)
	require.NoError(t, err)
	// One failure: not a multiple of 3, not expired, so no regeneration.
	f.advance(10 * time.Second)
	_, err = f.manager.Submit(ctx, 42, "wrong")
	require.NoError(t, err)

	ch, err := f.manager.StartSession(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, ch, "caller re-prompts the existing challenge")
	assert.Equal(t, "AAAA1111", f.store.statuses[42].CurrentValue)
}

func TestStartSessionRegeneratesExpiredChallenge(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, 42)
	require.NoError(t, err)
	f.advance(10 * time.Second)
	_, err = f.manager.Submit(ctx, 42, "wrong")
	require.NoError(t, err)

	f.advance(11 * time.Minute)
	ch, err := f.manager.StartSession(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, "BBBB2222", f.store.statuses[42].CurrentValue)
}

func TestSubmitPassesCaseInsensitively(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, 42)
	require.NoError(t, err)
	f.advance(10 * time.Second)

	res, err := f.manager.Submit(ctx, 42, "aaaa1111")
	require.NoError(t, err)
	assert.True(t, res.Passed)

	st := f.store.statuses[42]
	assert.True(t, st.Passed)
	assert.Empty(t, st.CurrentValue)
	assert.Equal(t, 0, st.FailedAttempts)
}

func TestSubmitFloodMutatesNothing(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, 42)
	require.NoError(t, err)
	f.advance(10 * time.Second)

	_, err = f.manager.Submit(ctx, 42, "wrong")
	require.NoError(t, err)
	before := f.store.statuses[42]
	savesBefore := f.store.saves

	f.advance(2 * time.Second)
	_, err = f.manager.Submit(ctx, 42, "wrong")
	assert.ErrorIs(t, err, captcha.ErrCaptchaFlood)
	assert.Equal(t, before, f.store.statuses[42], "second call changes no state")
	assert.Equal(t, savesBefore, f.store.saves)
}

func TestSubmitLockoutBanFiresOnce(t *testing.T) {
	f := newFixture(t, defaultConfig())
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, 42)
	require.NoError(t, err)

	var last captcha.Result
	for i := 0; i < 4; i++ {
		f.advance(10 * time.Second)
		last, err = f.manager.Submit(ctx, 42, "nope")
		require.NoError(t, err)
	}

	require.NotNil(t, last.Lockout)
	assert.True(t, last.Lockout.IsBan)
	assert.Equal(t, f.now.Add(24*time.Hour), last.Lockout.EndDate)
	require.Len(t, f.moderator.bans, 1, "lockout fires exactly once")

	st := f.store.statuses[42]
	assert.Equal(t, 0, st.FailedAttempts, "counter resets on lockout")
	assert.Empty(t, st.CurrentValue)
	assert.Equal(t, 4, st.TotalFailedAttempts, "total counter keeps growing")
}

func TestSubmitLockoutKick(t *testing.T) {
	cfg := defaultConfig()
	cfg.LockoutAction = captcha.ActionKick
	cfg.MaxTries = 2
	f := newFixture(t, cfg)
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, 42)
	require.NoError(t, err)

	var last captcha.Result
	for i := 0; i < 2; i++ {
		f.advance(10 * time.Second)
		last, err = f.manager.Submit(ctx, 42, "nope")
		require.NoError(t, err)
	}
	require.NotNil(t, last.Lockout)
	assert.True(t, last.Lockout.IsKick)
	assert.False(t, last.Lockout.IsBan)
	assert.Equal(t, 1, f.moderator.kicks)
	assert.Empty(t, f.moderator.bans)
}

func TestSubmitLockoutNone(t *testing.T) {
	cfg := defaultConfig()
	cfg.LockoutAction = captcha.ActionNone
	cfg.MaxTries = 2
	f := newFixture(t, cfg)
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, 42)
	require.NoError(t, err)

	var last captcha.Result
	for i := 0; i < 2; i++ {
		f.advance(10 * time.Second)
		last, err = f.manager.Submit(ctx, 42, "nope")
		require.NoError(t, err)
	}
	require.NotNil(t, last.Lockout)
	assert.False(t, last.Lockout.IsBan)
	assert.False(t, last.Lockout.IsKick)
	assert.Empty(t, f.moderator.bans)
	assert.Equal(t, 0, f.moderator.kicks)
}

func TestTotalFailedAttemptsMonotonicAcrossLockouts(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxTries = 2
	cfg.FailuresPerNewChallenge = 2
	f := newFixture(t, cfg)
	ctx := context.Background()

	prev := 0
	for round := 0; round < 3; round++ {
		_, err := f.manager.StartSession(ctx, 42)
		require.NoError(t, err)
		for i := 0; i < 2; i++ {
			f.advance(10 * time.Second)
			_, err = f.manager.Submit(ctx, 42, "nope")
			require.NoError(t, err)
		}
		total := f.store.statuses[42].TotalFailedAttempts
		assert.Greater(t, total, prev)
		prev = total
	}
	assert.Equal(t, 6, prev)
}
