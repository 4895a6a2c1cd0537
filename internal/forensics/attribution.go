package forensics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-antinuke-guard/internal/logging"
	"go-antinuke-guard/internal/metrics"
	"go-antinuke-guard/internal/models"
	"go-antinuke-guard/internal/state"
)

// ErrAttributionMiss is returned when no qualifying audit entry appeared
// within the retry budget. The event is dropped.
var ErrAttributionMiss = errors.New("forensics: no matching audit entry")

// ResolverConfig is the attribution retry budget.
type ResolverConfig struct {
	Attempts       int
	Delay          time.Duration
	MaxAge         time.Duration
	AttemptTimeout time.Duration
	FetchLimit     int
}

func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		Attempts:       3,
		Delay:          500 * time.Millisecond,
		MaxAge:         10 * time.Second,
		AttemptTimeout: 3 * time.Second,
		FetchLimit:     10,
	}
}

// AttributionResolver maps an observed mutation to the actor recorded in the
// audit log.
type AttributionResolver struct {
	log     AuditLog
	matcher *AuditMatcher
	clock   state.Clock
	cfg     ResolverConfig
}

func NewAttributionResolver(log AuditLog, cfg ResolverConfig, clock state.Clock) *AttributionResolver {
	def := DefaultResolverConfig()
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = def.FetchLimit
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if clock == nil {
		clock = state.SystemClock
	}
	return &AttributionResolver{
		log:     log,
		matcher: NewAuditMatcher(cfg.MaxAge),
		clock:   clock,
		cfg:     cfg,
	}
}

// Resolve looks up who performed action on targetID. An empty targetID
// accepts any fresh entry for the action. The audit log may lag the event,
// so lookups are retried Attempts times, Delay apart.
func (r *AttributionResolver) Resolve(ctx context.Context, guildID string, action models.ActionType, targetID string) (*models.Attribution, error) {
	code := action.AuditCode()
	if code == 0 {
		return nil, fmt.Errorf("forensics: action %s is not audited", action)
	}

	start := time.Now()
	defer func() {
		metrics.AttributionDuration.Observe(time.Since(start).Seconds())
	}()

	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, r.cfg.Delay); err != nil {
				return nil, err
			}
		}

		entry, err := r.lookup(ctx, guildID, code, targetID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.Debug().Err(err).Str("guild", guildID).Str("action", string(action)).Int("attempt", attempt).Msg("audit lookup failed")
			continue
		}
		if entry != nil {
			return &models.Attribution{
				Actor:     models.Actor{ID: entry.UserID, Tag: entry.UserTag, Bot: entry.UserBot},
				EntryID:   entry.ID,
				TargetID:  entry.TargetID,
				CreatedAt: entry.CreatedAt,
			}, nil
		}
	}
	return nil, ErrAttributionMiss
}

func (r *AttributionResolver) lookup(ctx context.Context, guildID string, code int, targetID string) (*AuditEntry, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()

	entries, err := r.log.FetchRecent(attemptCtx, guildID, code, r.cfg.FetchLimit)
	if err != nil {
		return nil, err
	}
	return r.matcher.Match(entries, targetID, r.clock.Now()), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
