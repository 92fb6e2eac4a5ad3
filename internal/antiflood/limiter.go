package antiflood

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultIdleTTL drops a user's entry after this much silence.
	DefaultIdleTTL = time.Hour
	// DefaultSweepEvery bounds how often idle entries are swept.
	DefaultSweepEvery = 10 * time.Minute
)

// Verdict is the outcome of one admission check. Warn is set at most once
// per flooding streak so a burst of N messages produces one notice, not N.
type Verdict struct {
	Admit bool
	Warn  bool
}

type entry struct {
	last   time.Time
	warned bool
}

// Limiter is a per-user sliding-delay gate. State is in-process only: a
// restart forgives the current delay window, which is acceptable for flood
// friction. Idle entries are swept opportunistically to bound memory.
type Limiter struct {
	mu           sync.Mutex
	entries      map[int64]*entry
	defaultDelay time.Duration
	idleTTL      time.Duration
	sweepEvery   time.Duration
	lastSweep    time.Time
	logger       *slog.Logger
	now          func() time.Time
}

// NewLimiter constructs a Limiter. defaultDelay applies to users without a
// chat-delay override; entries idle longer than idleTTL are dropped during
// sweeps which run at most every sweepEvery.
func NewLimiter(defaultDelay, idleTTL, sweepEvery time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{
		entries:      make(map[int64]*entry),
		defaultDelay: defaultDelay,
		idleTTL:      idleTTL,
		sweepEvery:   sweepEvery,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check gates one message. bypass skips the limiter entirely; override,
// when non-nil, replaces the global delay for this user.
func (l *Limiter) Check(userID int64, override *time.Duration, bypass bool) Verdict {
	if bypass {
		return Verdict{Admit: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeSweep(now)

	delay := l.defaultDelay
	if override != nil {
		delay = *override
	}

	e, ok := l.entries[userID]
	if !ok {
		l.entries[userID] = &entry{last: now}
		return Verdict{Admit: true}
	}
	if now.Sub(e.last) >= delay {
		e.last = now
		e.warned = false
		return Verdict{Admit: true}
	}
	if !e.warned {
		e.warned = true
		l.logger.Debug("flooding user warned", slog.Int64("user_id", userID))
		return Verdict{Warn: true}
	}
	return Verdict{}
}

// maybeSweep drops idle entries. Caller holds the mutex.
func (l *Limiter) maybeSweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.sweepEvery {
		return
	}
	l.lastSweep = now
	for id, e := range l.entries {
		if now.Sub(e.last) > l.idleTTL {
			delete(l.entries, id)
		}
	}
}

// Len reports the number of tracked users.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
