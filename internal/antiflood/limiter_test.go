package antiflood_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/anonlounge/anonlounge/internal/antiflood"
)

type clock struct{ now time.Time }

func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newLimiter(defaultDelay time.Duration) (*antiflood.Limiter, *clock) {
	c := &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := antiflood.NewLimiter(defaultDelay, time.Hour, time.Hour, slog.Default()).
		WithClock(func() time.Time { return c.now })
	return l, c
}

func TestBurstAdmitsOneAndWarnsOnce(t *testing.T) {
	l, c := newLimiter(10 * time.Second)

	admits, warns := 0, 0
	for i := 0; i < 5; i++ {
		v := l.Check(42, nil, false)
		if v.Admit {
			admits++
		}
		if v.Warn {
			warns++
		}
		c.advance(time.Second)
	}
	assert.Equal(t, 1, admits)
	assert.Equal(t, 1, warns)
}

func TestAdmitAfterDelayElapsed(t *testing.T) {
	l, c := newLimiter(10 * time.Second)

	assert.True(t, l.Check(42, nil, false).Admit)
	c.advance(10 * time.Second)
	assert.True(t, l.Check(42, nil, false).Admit)
}

func TestWarnedFlagClearsOnAdmission(t *testing.T) {
	l, c := newLimiter(10 * time.Second)

	l.Check(42, nil, false)
	c.advance(time.Second)
	assert.True(t, l.Check(42, nil, false).Warn)

	c.advance(10 * time.Second)
	assert.True(t, l.Check(42, nil, false).Admit)

	// A fresh flood streak warns again.
	c.advance(time.Second)
	assert.True(t, l.Check(42, nil, false).Warn)
}

func TestBypassPermission(t *testing.T) {
	l, _ := newLimiter(10 * time.Second)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Check(42, nil, true).Admit)
	}
	assert.Equal(t, 0, l.Len(), "bypassed users are not tracked")
}

func TestPerUserOverride(t *testing.T) {
	l, c := newLimiter(10 * time.Second)
	short := 2 * time.Second

	assert.True(t, l.Check(42, &short, false).Admit)
	c.advance(3 * time.Second)
	assert.True(t, l.Check(42, &short, false).Admit, "override shortens the window")

	assert.True(t, l.Check(7, nil, false).Admit)
	c.advance(3 * time.Second)
	assert.False(t, l.Check(7, nil, false).Admit, "default window still applies")
}

func TestUsersAreIndependent(t *testing.T) {
	l, _ := newLimiter(10 * time.Second)

	assert.True(t, l.Check(1, nil, false).Admit)
	assert.True(t, l.Check(2, nil, false).Admit)
	assert.False(t, l.Check(1, nil, false).Admit)
	assert.False(t, l.Check(2, nil, false).Admit)
}

func TestSweepDropsIdleEntries(t *testing.T) {
	c := &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := antiflood.NewLimiter(time.Second, 30*time.Minute, 10*time.Minute, slog.Default()).
		WithClock(func() time.Time { return c.now })

	l.Check(1, nil, false)
	c.advance(31 * time.Minute)
	l.Check(2, nil, false)

	assert.Equal(t, 1, l.Len(), "idle entry swept, fresh one kept")
}
