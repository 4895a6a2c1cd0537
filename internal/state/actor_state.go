package state

import (
	"hash/maphash"
	"sync"
	"time"

	"go-antinuke-guard/internal/models"
)

const shardCount = 64

var seed = maphash.MakeSeed()

func shardFor(key string) int {
	return int(maphash.String(seed, key) % shardCount)
}

// ActorKey identifies one (guild, actor, action) sliding window.
type ActorKey struct {
	GuildID string
	ActorID string
	Action  models.ActionType
}

func (k ActorKey) String() string {
	return k.GuildID + ":" + k.ActorID + ":" + string(k.Action)
}

// actorWindow holds arrival ordered timestamps for one key. Its mutex is the
// only lock held while the sequence is modified.
type actorWindow struct {
	mu     sync.Mutex
	stamps []time.Time
	// dead is set when Sweep unlinks the window; writers then retry on a
	// fresh window so no occurrence is recorded into an orphan.
	dead bool
}

type windowShard struct {
	mu      sync.Mutex
	windows map[ActorKey]*actorWindow
}

// WindowCounter counts actor occurrences inside a trailing window. Keys are
// spread over shards and each key owns its own lock, so unrelated keys never
// wait on one another for longer than a map lookup.
type WindowCounter struct {
	clock  Clock
	shards [shardCount]windowShard
}

func NewWindowCounter(clock Clock) *WindowCounter {
	if clock == nil {
		clock = SystemClock
	}
	wc := &WindowCounter{clock: clock}
	for i := range wc.shards {
		wc.shards[i].windows = make(map[ActorKey]*actorWindow)
	}
	return wc
}

func (wc *WindowCounter) window(key ActorKey, create bool) *actorWindow {
	shard := &wc.shards[shardFor(key.String())]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	w, ok := shard.windows[key]
	if !ok && create {
		w = &actorWindow{}
		shard.windows[key] = w
	}
	return w
}

// Record appends the current time for key, drops timestamps older than
// window and returns the resulting count.
func (wc *WindowCounter) Record(key ActorKey, window time.Duration) uint {
	for {
		w := wc.window(key, true)

		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}
		now := wc.clock.Now()
		w.stamps = prune(w.stamps, now, window)
		w.stamps = append(w.stamps, now)
		n := uint(len(w.stamps))
		w.mu.Unlock()
		return n
	}
}

// Count returns the number of timestamps for key inside window without
// recording a new one.
func (wc *WindowCounter) Count(key ActorKey, window time.Duration) uint {
	w := wc.window(key, false)
	if w == nil {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.stamps = prune(w.stamps, wc.clock.Now(), window)
	return uint(len(w.stamps))
}

// prune removes timestamps that fell out of the window. A timestamp exactly
// window old is already outside it.
func prune(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := 0
	for cutoff < len(stamps) && now.Sub(stamps[cutoff]) >= window {
		cutoff++
	}
	if cutoff == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[cutoff:]...)
}

// unlink removes key from shard; the caller holds shard.mu.
func unlink(shard *windowShard, key ActorKey) {
	w := shard.windows[key]
	w.mu.Lock()
	w.dead = true
	w.mu.Unlock()
	delete(shard.windows, key)
}

// Reset forgets every window for an actor in a guild, e.g. after a rejoin.
func (wc *WindowCounter) Reset(guildID, actorID string) {
	for i := range wc.shards {
		shard := &wc.shards[i]
		shard.mu.Lock()
		for key := range shard.windows {
			if key.GuildID == guildID && key.ActorID == actorID {
				unlink(shard, key)
			}
		}
		shard.mu.Unlock()
	}
}

// ClearGuild drops every window belonging to a guild.
func (wc *WindowCounter) ClearGuild(guildID string) {
	for i := range wc.shards {
		shard := &wc.shards[i]
		shard.mu.Lock()
		for key := range shard.windows {
			if key.GuildID == guildID {
				unlink(shard, key)
			}
		}
		shard.mu.Unlock()
	}
}

// Sweep removes keys whose newest timestamp is older than maxAge. Windows
// never exceed the largest configured rule, so passing that bound is safe.
func (wc *WindowCounter) Sweep(maxAge time.Duration) int {
	now := wc.clock.Now()
	removed := 0
	for i := range wc.shards {
		shard := &wc.shards[i]
		shard.mu.Lock()
		for key, w := range shard.windows {
			w.mu.Lock()
			stale := len(w.stamps) == 0 || now.Sub(w.stamps[len(w.stamps)-1]) >= maxAge
			if stale {
				w.dead = true
				delete(shard.windows, key)
				removed++
			}
			w.mu.Unlock()
		}
		shard.mu.Unlock()
	}
	return removed
}

// Len reports the number of tracked keys.
func (wc *WindowCounter) Len() int {
	n := 0
	for i := range wc.shards {
		shard := &wc.shards[i]
		shard.mu.Lock()
		n += len(shard.windows)
		shard.mu.Unlock()
	}
	return n
}
