package broadcast

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Queue serializes every outbound platform call behind a single worker and a
// global rate cap. The platform throttles bots around 30 messages per
// second; staying just under keeps relays from tripping it.
type Queue struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewQueue constructs a Queue sending at most perSecond calls per second.
func NewQueue(perSecond float64) *Queue {
	return &Queue{limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Do runs fn once the rate budget allows. Calls run strictly one at a time
// in arrival order at the mutex.
func (q *Queue) Do(ctx context.Context, fn func() error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.limiter.Wait(ctx); err != nil {
		return err
	}
	return fn()
}
