package decision

import (
	"context"

	"go-antinuke-guard/internal/database"
	"go-antinuke-guard/internal/models"
	"go-antinuke-guard/internal/state"
)

// PolicySource loads a guild's protection policy.
type PolicySource interface {
	LoadPolicy(ctx context.Context, guildID string) (*database.GuildPolicy, error)
}

// PolicyEvaluator turns an attributed event into a Decision.
type PolicyEvaluator struct {
	policies   PolicySource
	protection *ProtectionResolver
	counter    *state.WindowCounter
}

func NewPolicyEvaluator(policies PolicySource, protection *ProtectionResolver, counter *state.WindowCounter) *PolicyEvaluator {
	return &PolicyEvaluator{policies: policies, protection: protection, counter: counter}
}

// Evaluate decides what to do about actor performing action in guildID.
// The actor is only counted once the guild is enabled, the actor is not
// protected and a rule exists. A policy load failure is returned and the
// event is not counted.
func (pe *PolicyEvaluator) Evaluate(ctx context.Context, guildID string, actor models.Actor, action models.ActionType) (models.Decision, error) {
	policy, err := pe.policies.LoadPolicy(ctx, guildID)
	if err != nil {
		return models.Decision{}, err
	}

	cfg := policy.Config
	if cfg == nil || !cfg.Enabled || !cfg.FeatureEnabled(action) {
		return models.Decision{Kind: models.DecisionNoOp}, nil
	}

	if p := pe.protection.IsProtected(ctx, policy, guildID, actor.ID); p.Protected {
		return models.Decision{Kind: models.DecisionExempt, Exemption: p.Reason}, nil
	}

	rule, ok := policy.Limits[action]
	if !ok {
		return models.Decision{Kind: models.DecisionNoOp}, nil
	}

	n := pe.counter.Record(state.ActorKey{GuildID: guildID, ActorID: actor.ID, Action: action}, rule.Window)
	return classify(n, rule), nil
}

func classify(n uint, rule models.LimitRule) models.Decision {
	switch {
	case n >= rule.Count:
		return models.Decision{Kind: models.DecisionExceeded, Count: n, Limit: rule.Count, Punishment: rule.Punishment}
	case n >= rule.WarnAt():
		return models.Decision{Kind: models.DecisionWarning, Count: n, Limit: rule.Count}
	default:
		return models.Decision{Kind: models.DecisionNoOp, Count: n, Limit: rule.Count}
	}
}
