package jobs

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type recordingPurger struct {
	cutoffs []time.Time
}

func (p *recordingPurger) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	return 5, nil
}

type recordingSweeper struct {
	cutoffs []time.Time
}

func (s *recordingSweeper) ExpireStaleChallenges(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoffs = append(s.cutoffs, cutoff)
	return 2, nil
}

func TestMessageLogPurgeHandler(t *testing.T) {
	purger := &recordingPurger{}
	handler := NewMessageLogPurgeHandler(purger, slog.New(slog.DiscardHandler))

	task, err := NewMessageLogPurgeTask(MessageLogPurgePayload{Retention: 14 * 24 * time.Hour})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))

	require.Len(t, purger.cutoffs, 1)
	require.WithinDuration(t, time.Now().Add(-14*24*time.Hour), purger.cutoffs[0], time.Minute)
}

func TestMessageLogPurgeHandlerRejectsBadPayload(t *testing.T) {
	purger := &recordingPurger{}
	handler := NewMessageLogPurgeHandler(purger, slog.New(slog.DiscardHandler))

	err := handler(context.Background(), asynq.NewTask(TaskMessageLogPurge, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, purger.cutoffs)

	task, err := NewMessageLogPurgeTask(MessageLogPurgePayload{})
	require.NoError(t, err)
	require.ErrorIs(t, handler(context.Background(), task), asynq.SkipRetry)
	require.Empty(t, purger.cutoffs, "a zero retention must never purge everything")
}

func TestCaptchaSweepHandler(t *testing.T) {
	sweeper := &recordingSweeper{}
	handler := NewCaptchaSweepHandler(sweeper, slog.New(slog.DiscardHandler))

	task, err := NewCaptchaSweepTask(CaptchaSweepPayload{MaxAge: time.Hour})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))

	require.Len(t, sweeper.cutoffs, 1)
	require.WithinDuration(t, time.Now().Add(-time.Hour), sweeper.cutoffs[0], time.Minute)
}
