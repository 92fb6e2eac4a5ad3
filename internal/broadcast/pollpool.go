package broadcast

import (
	"sync"
	"time"
)

// Pool retention defaults. Votes touch the entry, so only polls nobody has
// voted on for the TTL fall out.
const (
	DefaultPollTTL        = 48 * time.Hour
	DefaultPollSweepEvery = 10 * time.Minute
)

// PollMeta links a relayed poll back to its anonymous creator.
type PollMeta struct {
	CreatorID int64
}

type pollEntry struct {
	meta PollMeta
	last time.Time
}

// PollPool tracks polls currently circulating in the lounge so that vote
// events can be correlated. Entries live in memory and expire after the
// idle TTL; a restart simply stops correlating old polls.
type PollPool struct {
	mu         sync.Mutex
	polls      map[string]pollEntry
	idleTTL    time.Duration
	sweepEvery time.Duration
	lastSweep  time.Time
	now        func() time.Time
}

// NewPollPool constructs an empty pool with default retention.
func NewPollPool() *PollPool {
	return &PollPool{
		polls:      make(map[string]pollEntry),
		idleTTL:    DefaultPollTTL,
		sweepEvery: DefaultPollSweepEvery,
		now:        time.Now,
	}
}

// Register records the creator of a freshly relayed poll.
func (p *PollPool) Register(pollID string, meta PollMeta) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	p.maybeSweep(now)
	p.polls[pollID] = pollEntry{meta: meta, last: now}
}

// Lookup returns the metadata of a circulating poll and refreshes its TTL.
func (p *PollPool) Lookup(pollID string) (PollMeta, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	p.maybeSweep(now)
	e, ok := p.polls[pollID]
	if !ok {
		return PollMeta{}, false
	}
	e.last = now
	p.polls[pollID] = e
	return e.meta, true
}

// Remove drops a poll from the pool once it stops circulating.
func (p *PollPool) Remove(pollID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.polls, pollID)
}

// Len reports the number of tracked polls.
func (p *PollPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.polls)
}

// maybeSweep drops idle entries. Caller holds the mutex.
func (p *PollPool) maybeSweep(now time.Time) {
	if now.Sub(p.lastSweep) < p.sweepEvery {
		return
	}
	p.lastSweep = now
	for id, e := range p.polls {
		if now.Sub(e.last) > p.idleTTL {
			delete(p.polls, id)
		}
	}
}
