package captcha

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/anonlounge/anonlounge/internal/users"
)

// ErrCaptchaFlood indicates a submission inside the inter-attempt delay.
// The offending submission mutates nothing.
var ErrCaptchaFlood = errors.New("captcha: attempts too close together")

const (
	codeLength   = 8
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Action is the configured lockout consequence.
type Action string

const (
	ActionBan  Action = "ban"
	ActionKick Action = "kick"
	ActionNone Action = "none"
)

// Config holds the captcha thresholds. All values come from startup
// configuration and stay fixed for the process lifetime.
type Config struct {
	// FailuresPerNewChallenge regenerates the challenge value every time
	// the consecutive failure count is a multiple of this.
	FailuresPerNewChallenge int
	// Expiry invalidates a challenge this long after generation.
	Expiry time.Duration
	// MinDelay is the minimum pause between two submissions.
	MinDelay time.Duration
	// MaxTries is the consecutive failure budget before lockout.
	MaxTries int
	// LockoutAction fires when the budget is exhausted.
	LockoutAction Action
	// LockoutBanFor bounds the ban issued by ActionBan.
	LockoutBanFor time.Duration
}

// Store loads and saves per-user captcha records.
type Store interface {
	CaptchaStatus(ctx context.Context, id int64) (users.CaptchaStatus, error)
	SaveCaptchaStatus(ctx context.Context, st users.CaptchaStatus) error
}

// Moderator applies the lockout consequence.
type Moderator interface {
	Ban(ctx context.Context, id int64, reason string, end time.Time) error
	Kick(ctx context.Context, id int64) error
}

// Renderer turns a challenge code into an image. Treated as a black box.
type Renderer interface {
	Render(code string) ([]byte, error)
}

// Challenge is a freshly generated challenge ready to show the user.
type Challenge struct {
	Image []byte
}

// Lockout describes the consequence applied after the retry budget ran out.
type Lockout struct {
	IsBan   bool
	IsKick  bool
	EndDate time.Time
}

// Result is the outcome of one submission. Exactly one of Passed or a
// failure state applies; Lockout is set when this submission exhausted the
// budget.
type Result struct {
	Passed         bool
	FailedAttempts int
	MaxTries       int
	Lockout        *Lockout
}

// Manager drives the per-user challenge lifecycle. Submissions for the same
// user are serialized: failure counting and lockout are check-then-act.
type Manager struct {
	cfg       Config
	store     Store
	moderator Moderator
	renderer  Renderer
	logger    *slog.Logger
	locks     *keyedMutex
	now       func() time.Time
	newCode   func() string
}

// NewManager constructs a Manager.
func NewManager(cfg Config, store Store, moderator Moderator, renderer Renderer, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     store,
		moderator: moderator,
		renderer:  renderer,
		logger:    logger,
		locks:     newKeyedMutex(),
		now:       time.Now,
		newCode:   newChallengeCode,
	}
}

// WithClock overrides the time source. Test hook.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// WithCodeSource overrides challenge code generation. Test hook.
func (m *Manager) WithCodeSource(newCode func() string) *Manager {
	m.newCode = newCode
	return m
}

// newChallengeCode draws 8 characters from [A-Z0-9]. Anti-bot friction, not
// a security boundary.
func newChallengeCode() string {
	var b strings.Builder
	b.Grow(codeLength)
	for range codeLength {
		b.WriteByte(codeAlphabet[rand.IntN(len(codeAlphabet))])
	}
	return b.String()
}

// StartSession generates a fresh challenge when due: the consecutive
// failure count is a multiple of the configured threshold, or the current
// challenge has expired. Otherwise it returns nil and the caller re-prompts
// with the existing challenge.
func (m *Manager) StartSession(ctx context.Context, userID int64) (*Challenge, error) {
	m.locks.lock(userID)
	defer m.locks.unlock(userID)

	st, err := m.store.CaptchaStatus(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	expired := now.Sub(st.CreationTime) > m.cfg.Expiry
	due := st.FailedAttempts%m.cfg.FailuresPerNewChallenge == 0
	if st.CurrentValue != "" && !due && !expired {
		return nil, nil
	}

	st.CurrentValue = m.newCode()
	st.CreationTime = now
	if err := m.store.SaveCaptchaStatus(ctx, st); err != nil {
		return nil, err
	}
	m.logger.Debug("captcha challenge generated",
		slog.Int64("user_id", userID),
		slog.String("value", st.CurrentValue))

	image, err := m.renderer.Render(st.CurrentValue)
	if err != nil {
		return nil, fmt.Errorf("captcha: render challenge: %w", err)
	}
	return &Challenge{Image: image}, nil
}

// Submit evaluates one answer. Comparison is case-insensitive. Submissions
// inside MinDelay fail with ErrCaptchaFlood and change nothing. Exhausting
// the retry budget resets the counter, clears the challenge and applies the
// configured lockout action exactly once.
func (m *Manager) Submit(ctx context.Context, userID int64, answer string) (Result, error) {
	m.locks.lock(userID)
	defer m.locks.unlock(userID)

	st, err := m.store.CaptchaStatus(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	now := m.now()
	if now.Sub(st.LastTryTime) <= m.cfg.MinDelay {
		return Result{}, ErrCaptchaFlood
	}
	st.LastTryTime = now

	if st.CurrentValue != "" && strings.EqualFold(st.CurrentValue, strings.TrimSpace(answer)) {
		st.Passed = true
		st.FailedAttempts = 0
		st.CurrentValue = ""
		if err := m.store.SaveCaptchaStatus(ctx, st); err != nil {
			return Result{}, err
		}
		m.logger.Debug("captcha passed", slog.Int64("user_id", userID))
		return Result{Passed: true, MaxTries: m.cfg.MaxTries}, nil
	}

	st.FailedAttempts++
	st.TotalFailedAttempts++
	m.logger.Debug("captcha failed",
		slog.Int64("user_id", userID),
		slog.Int("failed_attempts", st.FailedAttempts),
		slog.Int("total", st.TotalFailedAttempts))

	if st.FailedAttempts < m.cfg.MaxTries {
		if err := m.store.SaveCaptchaStatus(ctx, st); err != nil {
			return Result{}, err
		}
		return Result{FailedAttempts: st.FailedAttempts, MaxTries: m.cfg.MaxTries}, nil
	}

	// Budget exhausted: reset and fire the lockout action once.
	failed := st.FailedAttempts
	st.FailedAttempts = 0
	st.CurrentValue = ""
	if err := m.store.SaveCaptchaStatus(ctx, st); err != nil {
		return Result{}, err
	}

	lockout := &Lockout{}
	switch m.cfg.LockoutAction {
	case ActionBan:
		lockout.IsBan = true
		lockout.EndDate = now.Add(m.cfg.LockoutBanFor)
		if err := m.moderator.Ban(ctx, userID, "captcha retry budget exhausted", lockout.EndDate); err != nil {
			return Result{}, err
		}
	case ActionKick:
		lockout.IsKick = true
		if err := m.moderator.Kick(ctx, userID); err != nil {
			return Result{}, err
		}
	}
	m.logger.Warn("captcha lockout",
		slog.Int64("user_id", userID),
		slog.Int("failed_attempts", failed),
		slog.String("action", string(m.cfg.LockoutAction)))

	return Result{FailedAttempts: failed, MaxTries: m.cfg.MaxTries, Lockout: lockout}, nil
}
