package metrics

import (
	"sync/atomic"
	"time"
)

// PipelineHealth tracks liveness of the event pipeline for /healthz.
type PipelineHealth struct {
	processed   atomic.Uint64
	punished    atomic.Uint64
	lastEventNs atomic.Int64
	startedAt   time.Time
}

func NewPipelineHealth() *PipelineHealth {
	return &PipelineHealth{startedAt: time.Now()}
}

func (ph *PipelineHealth) RecordEvent() {
	ph.processed.Add(1)
	ph.lastEventNs.Store(time.Now().UnixNano())
}

func (ph *PipelineHealth) RecordPunishment() {
	ph.punished.Add(1)
}

// Snapshot is the JSON body of the pipeline section of /healthz.
type Snapshot struct {
	Processed       uint64  `json:"events_processed"`
	Punished        uint64  `json:"punishments"`
	EventsPerSecond float64 `json:"events_per_second"`
	LastEvent       string  `json:"last_event,omitempty"`
	Uptime          string  `json:"uptime"`
}

func (ph *PipelineHealth) Snapshot() Snapshot {
	uptime := time.Since(ph.startedAt)
	processed := ph.processed.Load()

	s := Snapshot{
		Processed: processed,
		Punished:  ph.punished.Load(),
		Uptime:    uptime.Truncate(time.Second).String(),
	}
	if secs := uptime.Seconds(); secs > 0 {
		s.EventsPerSecond = float64(processed) / secs
	}
	if last := ph.lastEventNs.Load(); last != 0 {
		s.LastEvent = time.Unix(0, last).UTC().Format(time.RFC3339)
	}
	return s
}
