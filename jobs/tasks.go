// Package jobs runs the scheduled maintenance of the lounge: purging aged
// delivery log rows and expiring stale captcha challenges.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMessageLogPurge removes delivery log rows past retention.
	TaskMessageLogPurge = "messagelog:purge"
	// TaskCaptchaSweep expires challenges that sat unanswered too long.
	TaskCaptchaSweep = "captcha:sweep"
)

// MessageLogPurgePayload bounds the purge to rows older than Retention.
type MessageLogPurgePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewMessageLogPurgeTask constructs an Asynq task.
func NewMessageLogPurgeTask(payload MessageLogPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMessageLogPurge, data), nil
}

// CaptchaSweepPayload bounds the sweep to challenges older than MaxAge.
type CaptchaSweepPayload struct {
	MaxAge time.Duration `json:"max_age"`
}

// NewCaptchaSweepTask constructs an Asynq task.
func NewCaptchaSweepTask(payload CaptchaSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCaptchaSweep, data), nil
}

// MessagePurger deletes delivery log rows sent before a cutoff.
type MessagePurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ChallengeSweeper clears challenge values issued before a cutoff.
type ChallengeSweeper interface {
	ExpireStaleChallenges(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewMessageLogPurgeHandler processes TaskMessageLogPurge tasks.
func NewMessageLogPurgeHandler(store MessagePurger, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload MessageLogPurgePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Retention <= 0 {
			return asynq.SkipRetry
		}
		removed, err := store.PurgeOlderThan(ctx, time.Now().Add(-payload.Retention))
		if err != nil {
			return err
		}
		logger.Info("message log purged",
			slog.Int64("rows", removed),
			slog.Duration("retention", payload.Retention))
		return nil
	}
}

// NewCaptchaSweepHandler processes TaskCaptchaSweep tasks.
func NewCaptchaSweepHandler(store ChallengeSweeper, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload CaptchaSweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.MaxAge <= 0 {
			return asynq.SkipRetry
		}
		cleared, err := store.ExpireStaleChallenges(ctx, time.Now().Add(-payload.MaxAge))
		if err != nil {
			return err
		}
		logger.Info("stale captcha challenges expired", slog.Int64("rows", cleared))
		return nil
	}
}
