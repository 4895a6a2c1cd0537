// Package watchdog runs the engine's periodic housekeeping and tracks
// whether each task keeps succeeding.
package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-antinuke-guard/internal/logging"
)

// alertThreshold is how many consecutive failures mark a task unhealthy.
const alertThreshold = 3

// TaskFunc is one housekeeping step. The returned count is only logged.
type TaskFunc func(ctx context.Context) (int, error)

type task struct {
	name     string
	run      TaskFunc
	failures int
	lastRun  time.Time
}

// Watchdog runs registered tasks every interval. It implements
// suture.Service.
type Watchdog struct {
	interval time.Duration
	now      func() time.Time

	mu    sync.Mutex
	tasks []*task
}

func NewWatchdog(checkInterval time.Duration) *Watchdog {
	if checkInterval <= 0 {
		checkInterval = 30 * time.Second
	}
	return &Watchdog{interval: checkInterval, now: time.Now}
}

// Register adds a task. Tasks run in registration order.
func (w *Watchdog) Register(name string, fn TaskFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tasks = append(w.tasks, &task{name: name, run: fn})
}

func (w *Watchdog) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *Watchdog) String() string { return "watchdog" }

// RunOnce runs every task a single time. A panicking task counts as a
// failure and does not stop the rest.
func (w *Watchdog) RunOnce(ctx context.Context) {
	w.mu.Lock()
	tasks := append([]*task(nil), w.tasks...)
	w.mu.Unlock()

	for _, t := range tasks {
		if ctx.Err() != nil {
			return
		}
		n, err := safeRun(ctx, t.run)

		w.mu.Lock()
		t.lastRun = w.now()
		if err != nil {
			t.failures++
		} else {
			t.failures = 0
		}
		failures := t.failures
		w.mu.Unlock()

		switch {
		case err != nil && failures >= alertThreshold:
			logging.Error().Err(err).Str("task", t.name).Int("failures", failures).Msg("watchdog task unhealthy")
		case err != nil:
			logging.Warn().Err(err).Str("task", t.name).Msg("watchdog task failed")
		case n > 0:
			logging.Debug().Str("task", t.name).Int("count", n).Msg("watchdog task done")
		}
	}
}

func safeRun(ctx context.Context, fn TaskFunc) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// IsHealthy reports whether the task is below the failure threshold.
// Unknown tasks are unhealthy.
func (w *Watchdog) IsHealthy(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.tasks {
		if t.name == name {
			return t.failures < alertThreshold
		}
	}
	return false
}

func (w *Watchdog) GetStatus() map[string]bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	status := make(map[string]bool, len(w.tasks))
	for _, t := range w.tasks {
		status[t.name] = t.failures < alertThreshold
	}
	return status
}
