package state

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeduplicatorSeen(t *testing.T) {
	clock := NewManualClock(epoch)
	d := NewDeduplicator(10*time.Second, clock)

	assert.False(t, d.Seen("g1", "entry-1"))
	assert.True(t, d.Seen("g1", "entry-1"))
	assert.False(t, d.Seen("g2", "entry-1"), "guilds are separate namespaces")
	assert.False(t, d.Seen("g1", "entry-2"))

	clock.Advance(9 * time.Second)
	assert.True(t, d.Seen("g1", "entry-1"))

	clock.Advance(time.Second)
	assert.False(t, d.Seen("g1", "entry-1"), "entry expires after the ttl")
	assert.True(t, d.Seen("g1", "entry-1"))
}

func TestDeduplicatorSweep(t *testing.T) {
	clock := NewManualClock(epoch)
	d := NewDeduplicator(time.Second, clock)
	d.Seen("g1", "a")
	d.Seen("g1", "b")
	clock.Advance(500 * time.Millisecond)
	d.Seen("g1", "c")
	clock.Advance(600 * time.Millisecond)

	assert.Equal(t, 2, d.Sweep())
	assert.Equal(t, 1, d.Len())
}

func TestDeduplicatorDefaultTTL(t *testing.T) {
	d := NewDeduplicator(0, nil)
	assert.Equal(t, DefaultDedupeTTL, d.ttl)
}

func TestDeduplicatorConcurrentFirstWins(t *testing.T) {
	d := NewDeduplicator(time.Minute, nil)
	var firsts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !d.Seen("g1", "same") {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), firsts.Load())
}
