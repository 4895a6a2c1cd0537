package forensics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	gobreaker "github.com/sony/gobreaker/v2"

	"go-antinuke-guard/internal/logging"
	"go-antinuke-guard/internal/metrics"
)

// BreakerSettings tunes the audit log circuit breakers.
type BreakerSettings struct {
	// MinRequests is the sample size before the failure ratio is considered.
	MinRequests  uint32
	FailureRatio float64
	Interval     time.Duration
	OpenTimeout  time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:  10,
		FailureRatio: 0.6,
		Interval:     time.Minute,
		OpenTimeout:  30 * time.Second,
	}
}

type breakerEntry struct {
	cb       *gobreaker.CircuitBreaker[[]AuditEntry]
	lastUsed time.Time
}

// BreakingAuditLog guards an AuditLog with one circuit breaker per guild so
// a failing audit API is answered immediately instead of stalling every
// event for the whole retry budget. A guild that keeps failing only opens
// its own breaker.
type BreakingAuditLog struct {
	next     AuditLog
	settings BreakerSettings
	now      func() time.Time

	mu       sync.Mutex
	breakers map[string]*breakerEntry
}

const breakerName = "audit-log"

func NewBreakingAuditLog(next AuditLog, s BreakerSettings) *BreakingAuditLog {
	metrics.OpenCircuitBreakers.WithLabelValues(breakerName).Set(0)
	return &BreakingAuditLog{
		next:     next,
		settings: s,
		now:      time.Now,
		breakers: make(map[string]*breakerEntry),
	}
}

func (b *BreakingAuditLog) breaker(guildID string) *gobreaker.CircuitBreaker[[]AuditEntry] {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.breakers[guildID]
	if !ok {
		e = &breakerEntry{cb: b.newBreaker(guildID)}
		b.breakers[guildID] = e
	}
	e.lastUsed = b.now()
	return e.cb
}

func (b *BreakingAuditLog) newBreaker(guildID string) *gobreaker.CircuitBreaker[[]AuditEntry] {
	s := b.settings
	return gobreaker.NewCircuitBreaker[[]AuditEntry](gobreaker.Settings{
		Name:        breakerName + ":" + guildID,
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			switch {
			case to == gobreaker.StateOpen:
				metrics.OpenCircuitBreakers.WithLabelValues(breakerName).Inc()
			case from == gobreaker.StateOpen:
				metrics.OpenCircuitBreakers.WithLabelValues(breakerName).Dec()
			}
		},
		IsSuccessful: countsAsHealthy,
	})
}

// countsAsHealthy keeps errors that say nothing about the API's health out
// of the trip count: a cancelled caller, and a missing permission or a
// deleted guild, which no amount of waiting will fix.
func countsAsHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}
	return false
}

func (b *BreakingAuditLog) FetchRecent(ctx context.Context, guildID string, actionCode, limit int) ([]AuditEntry, error) {
	return b.breaker(guildID).Execute(func() ([]AuditEntry, error) {
		return b.next.FetchRecent(ctx, guildID, actionCode, limit)
	})
}

// State reports the guild's breaker state. Guilds never seen are closed.
func (b *BreakingAuditLog) State(guildID string) gobreaker.State {
	b.mu.Lock()
	e, ok := b.breakers[guildID]
	b.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return e.cb.State()
}

// Sweep drops breakers idle for longer than idle.
func (b *BreakingAuditLog) Sweep(idle time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-idle)
	removed := 0
	for id, e := range b.breakers {
		if e.lastUsed.Before(cutoff) {
			if e.cb.State() == gobreaker.StateOpen {
				metrics.OpenCircuitBreakers.WithLabelValues(breakerName).Dec()
			}
			delete(b.breakers, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked guild breakers.
func (b *BreakingAuditLog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.breakers)
}
