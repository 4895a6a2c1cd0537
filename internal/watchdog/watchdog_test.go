package watchdog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOnceTracksHealth(t *testing.T) {
	w := NewWatchdog(time.Second)
	var calls int
	fail := true
	w.Register("prune", func(context.Context) (int, error) {
		calls++
		if fail {
			return 0, errors.New("database is locked")
		}
		return 4, nil
	})
	w.Register("sweep", func(context.Context) (int, error) { return 0, nil })

	ctx := context.Background()
	for i := 0; i < alertThreshold; i++ {
		w.RunOnce(ctx)
	}
	assert.Equal(t, alertThreshold, calls)
	assert.False(t, w.IsHealthy("prune"))
	assert.True(t, w.IsHealthy("sweep"))
	assert.False(t, w.IsHealthy("missing"))

	fail = false
	w.RunOnce(ctx)
	assert.Equal(t, map[string]bool{"prune": true, "sweep": true}, w.GetStatus())
}

func TestPanickingTaskDoesNotStopOthers(t *testing.T) {
	w := NewWatchdog(time.Second)
	ran := false
	w.Register("boom", func(context.Context) (int, error) { panic("nil map") })
	w.Register("after", func(context.Context) (int, error) {
		ran = true
		return 1, nil
	})

	w.RunOnce(context.Background())
	assert.True(t, ran)
}

func TestServeStopsOnCancel(t *testing.T) {
	w := NewWatchdog(5 * time.Millisecond)
	ticks := make(chan struct{}, 1)
	w.Register("tick", func(context.Context) (int, error) {
		select {
		case ticks <- struct{}{}:
		default:
		}
		return 0, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
