package dispatcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type pacerEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// GuildPacer spaces outgoing moderation calls per guild so a burst of
// punishments in one guild cannot exhaust the shared REST budget.
type GuildPacer struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*pacerEntry
}

// NewGuildPacer allows perSecond calls per guild with the given burst. A
// non-positive rate disables pacing.
func NewGuildPacer(perSecond float64, burst int) *GuildPacer {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &GuildPacer{limit: limit, burst: burst, limiters: make(map[string]*pacerEntry)}
}

func (gp *GuildPacer) limiter(guildID string) *rate.Limiter {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	e, ok := gp.limiters[guildID]
	if !ok {
		e = &pacerEntry{limiter: rate.NewLimiter(gp.limit, gp.burst)}
		gp.limiters[guildID] = e
	}
	e.lastUsed = time.Now()
	return e.limiter
}

// Wait blocks until the guild may issue another call or ctx ends.
func (gp *GuildPacer) Wait(ctx context.Context, guildID string) error {
	return gp.limiter(guildID).Wait(ctx)
}

// Sweep drops limiters idle for longer than idle.
func (gp *GuildPacer) Sweep(idle time.Duration) int {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	removed := 0
	for id, e := range gp.limiters {
		if e.lastUsed.Before(cutoff) {
			delete(gp.limiters, id)
			removed++
		}
	}
	return removed
}
