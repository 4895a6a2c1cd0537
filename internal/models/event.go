package models

import (
	"context"
	"time"
)

// RevertFunc undoes the effect of a detected mutation. attr is the resolved
// audit entry, which names the created entity for events whose payload does
// not (webhooks).
type RevertFunc func(ctx context.Context, attr *Attribution) error

// RawEvent is a mutation notification as delivered by the gateway, before
// the responsible actor is known.
type RawEvent struct {
	GuildID  string
	Action   ActionType
	TargetID string
	// Target is a human readable description of the affected entity.
	Target string
	// Author is set for events that carry their own actor (mentionSpam) and
	// skip attribution.
	Author *Actor
	// CorrelationID dedupes events that carry their own author.
	CorrelationID string
	Revert        RevertFunc
	ReceivedAt    time.Time
}

// Actor is the identity attributed as responsible for an event.
type Actor struct {
	ID  string
	Tag string
	Bot bool
}

func (a *Actor) Display() string {
	if a == nil {
		return "unknown"
	}
	if a.Tag != "" {
		return a.Tag
	}
	return a.ID
}

// Attribution is a resolved audit log entry.
type Attribution struct {
	Actor     Actor
	EntryID   string
	TargetID  string
	CreatedAt time.Time
}
