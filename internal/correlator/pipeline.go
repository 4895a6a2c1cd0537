package correlator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-antinuke-guard/internal/decision"
	"go-antinuke-guard/internal/dispatcher"
	"go-antinuke-guard/internal/forensics"
	"go-antinuke-guard/internal/logging"
	"go-antinuke-guard/internal/metrics"
	"go-antinuke-guard/internal/models"
	"go-antinuke-guard/internal/notifier"
	"go-antinuke-guard/internal/state"
)

// Attributor finds the actor behind an audited mutation.
type Attributor interface {
	Resolve(ctx context.Context, guildID string, action models.ActionType, targetID string) (*models.Attribution, error)
}

// Evaluator decides what an attributed event means for its actor.
type Evaluator interface {
	Evaluate(ctx context.Context, guildID string, actor models.Actor, action models.ActionType) (models.Decision, error)
}

// Enforcer reverts and punishes.
type Enforcer interface {
	Execute(ctx context.Context, req dispatcher.Request) dispatcher.Outcome
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Attribution Attributor
	Dedupe      *state.Deduplicator
	Evaluator   Evaluator
	Policies    decision.PolicySource
	Enforcer    Enforcer
	Sink        notifier.Sink
	Health      *metrics.PipelineHealth
	// TimeoutFor is only used to label timeout notices.
	TimeoutFor time.Duration
}

// Pipeline runs one raw event through dedupe, attribution, evaluation,
// enforcement and notification.
type Pipeline struct {
	d Deps
}

func NewPipeline(d Deps) *Pipeline {
	if d.TimeoutFor <= 0 {
		d.TimeoutFor = dispatcher.DefaultTimeout
	}
	if d.Health == nil {
		d.Health = metrics.NewPipelineHealth()
	}
	return &Pipeline{d: d}
}

// Process handles ev to completion. It is safe to call from many goroutines.
func (p *Pipeline) Process(ctx context.Context, ev models.RawEvent) {
	metrics.EventsReceived.WithLabelValues(string(ev.Action)).Inc()
	p.d.Health.RecordEvent()

	log := logging.With("correlator")

	attr, err := p.attribute(ctx, ev)
	if err != nil {
		switch {
		case errors.Is(err, forensics.ErrAttributionMiss):
			metrics.AttributionMisses.WithLabelValues(string(ev.Action)).Inc()
			log.Debug().Str("guild", ev.GuildID).Str("action", string(ev.Action)).Str("target", ev.TargetID).Msg("no audit entry, dropping event")
		case ctx.Err() != nil:
		default:
			log.Warn().Err(err).Str("guild", ev.GuildID).Str("action", string(ev.Action)).Msg("attribution failed")
		}
		return
	}

	if attr.EntryID != "" && p.d.Dedupe.Seen(ev.GuildID, attr.EntryID) {
		metrics.EventsDeduplicated.Inc()
		return
	}

	dec, err := p.d.Evaluator.Evaluate(ctx, ev.GuildID, attr.Actor, ev.Action)
	if err != nil {
		log.Error().Err(err).Str("guild", ev.GuildID).Str("actor", attr.Actor.ID).Str("action", string(ev.Action)).Msg("policy evaluation failed")
		return
	}
	metrics.Decisions.WithLabelValues(string(ev.Action), dec.Kind.String()).Inc()

	switch dec.Kind {
	case models.DecisionNoOp:
		return
	case models.DecisionExempt:
		// the engine's own actions are not worth a notice
		if dec.Exemption == models.ProtectedSelf {
			return
		}
		rec := p.record(models.LogWhitelisted, ev, attr)
		rec.Reason = string(dec.Exemption)
		p.notify(ctx, ev.GuildID, rec)
	case models.DecisionWarning:
		rec := p.record(models.LogDetected, ev, attr)
		rec.Count, rec.Limit = dec.Count, dec.Limit
		p.notify(ctx, ev.GuildID, rec)
	case models.DecisionExceeded:
		p.enforce(ctx, ev, attr, dec)
	}
}

func (p *Pipeline) attribute(ctx context.Context, ev models.RawEvent) (*models.Attribution, error) {
	if ev.Author != nil {
		return &models.Attribution{
			Actor:     *ev.Author,
			EntryID:   ev.CorrelationID,
			TargetID:  ev.TargetID,
			CreatedAt: ev.ReceivedAt,
		}, nil
	}
	return p.d.Attribution.Resolve(ctx, ev.GuildID, ev.Action, ev.TargetID)
}

func (p *Pipeline) enforce(ctx context.Context, ev models.RawEvent, attr *models.Attribution, dec models.Decision) {
	cfg := p.config(ctx, ev.GuildID)

	reason := fmt.Sprintf("%s spam detected", ev.Action)
	req := dispatcher.Request{
		GuildID:          ev.GuildID,
		Actor:            attr.Actor,
		Punishment:       dec.Punishment,
		Reason:           reason,
		QuarantineRoleID: cfg.QuarantineRoleID,
	}
	if ev.Revert != nil {
		revert := ev.Revert
		req.Revert = func(ctx context.Context) error { return revert(ctx, attr) }
	}

	out := p.d.Enforcer.Execute(ctx, req)

	if ev.Revert != nil {
		outcome := "ok"
		if out.RevertErr != nil {
			outcome = "failed"
		}
		metrics.Reverts.WithLabelValues(string(ev.Action), outcome).Inc()
	}
	if out.Reverted {
		p.notify(ctx, ev.GuildID, p.record(models.LogReverted, ev, attr))
	}

	if out.Err != nil {
		rec := p.record(models.LogError, ev, attr)
		rec.Punishment = dec.Punishment
		rec.Err = out.Err.Error()
		rec.Reason = dec.Punishment.String()
		p.notify(ctx, ev.GuildID, rec)
		return
	}

	p.d.Health.RecordPunishment()
	rec := p.record(models.LogPunished, ev, attr)
	rec.Punishment = dec.Punishment
	rec.Count, rec.Limit = dec.Count, dec.Limit
	rec.Reason = reason
	if dec.Punishment == models.PunishTimeout {
		rec.Reason += " (" + shortDuration(p.d.TimeoutFor) + ")"
	}
	rec.RolesSaved = out.RolesSaved
	p.notify(ctx, ev.GuildID, rec)

	logging.Info().
		Str("guild", ev.GuildID).
		Str("actor", attr.Actor.ID).
		Str("action", string(ev.Action)).
		Str("punishment", dec.Punishment.String()).
		Uint("count", dec.Count).
		Int("failed_steps", len(out.FailedSteps())).
		Msg("actor punished")
}

func (p *Pipeline) record(kind models.LogKind, ev models.RawEvent, attr *models.Attribution) models.Record {
	rec := notifier.NewRecord(kind, ev.GuildID)
	actor := attr.Actor
	rec.Actor = &actor
	rec.Action = ev.Action
	rec.Target = ev.Target
	if rec.Target == "" {
		rec.Target = ev.TargetID
	}
	return rec
}

// config returns the guild config or an empty one when it cannot be loaded;
// the ledger still records notices for guilds without a log channel.
func (p *Pipeline) config(ctx context.Context, guildID string) models.TenantProtectionConfig {
	policy, err := p.d.Policies.LoadPolicy(ctx, guildID)
	if err != nil || policy == nil || policy.Config == nil {
		if err != nil {
			logging.Warn().Err(err).Str("guild", guildID).Msg("policy unavailable for notice")
		}
		return models.TenantProtectionConfig{GuildID: guildID}
	}
	return *policy.Config
}

func (p *Pipeline) notify(ctx context.Context, guildID string, rec models.Record) {
	ctx = context.WithoutCancel(ctx)
	p.d.Sink.Send(ctx, p.config(ctx, guildID).LogChannelID, rec)
}

func shortDuration(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return d.String()
	}
}
