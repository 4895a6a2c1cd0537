package state

import (
	"sync"
	"time"
)

// DefaultDedupeTTL is how long an attributed event id suppresses repeats.
const DefaultDedupeTTL = 10 * time.Second

type dedupeShard struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

// Deduplicator is a short lived set of (guild, correlation id) pairs. It is
// a reentrancy guard only and is lost on restart.
type Deduplicator struct {
	clock  Clock
	ttl    time.Duration
	shards [shardCount]dedupeShard
}

func NewDeduplicator(ttl time.Duration, clock Clock) *Deduplicator {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	if clock == nil {
		clock = SystemClock
	}
	d := &Deduplicator{clock: clock, ttl: ttl}
	for i := range d.shards {
		d.shards[i].expires = make(map[string]time.Time)
	}
	return d
}

// Seen returns false the first time a pair is offered and marks it for the
// TTL; later calls inside the TTL return true.
func (d *Deduplicator) Seen(guildID, correlationID string) bool {
	key := guildID + "-" + correlationID
	shard := &d.shards[shardFor(key)]
	now := d.clock.Now()

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if exp, ok := shard.expires[key]; ok && now.Before(exp) {
		return true
	}
	shard.expires[key] = now.Add(d.ttl)
	return false
}

// Sweep drops expired entries and returns how many were removed.
func (d *Deduplicator) Sweep() int {
	now := d.clock.Now()
	removed := 0
	for i := range d.shards {
		shard := &d.shards[i]
		shard.mu.Lock()
		for key, exp := range shard.expires {
			if !now.Before(exp) {
				delete(shard.expires, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

func (d *Deduplicator) Len() int {
	n := 0
	for i := range d.shards {
		shard := &d.shards[i]
		shard.mu.Lock()
		n += len(shard.expires)
		shard.mu.Unlock()
	}
	return n
}
