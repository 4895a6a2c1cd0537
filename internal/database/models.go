package database

import (
	"context"
	"time"

	"go-antinuke-guard/internal/models"
)

// WhitelistKind distinguishes whitelisted users from roles.
type WhitelistKind string

const (
	WhitelistUser WhitelistKind = "user"
	WhitelistRole WhitelistKind = "role"
)

// GuildPolicy is everything the evaluator needs about a guild, loaded at once.
type GuildPolicy struct {
	Config      *models.TenantProtectionConfig
	Limits      map[models.ActionType]models.LimitRule
	Whitelist   models.Whitelist
	ExtraOwners []string
}

// IsExtraOwner reports whether userID is a delegated administrator.
func (p *GuildPolicy) IsExtraOwner(userID string) bool {
	for _, id := range p.ExtraOwners {
		if id == userID {
			return true
		}
	}
	return false
}

// ExtraOwner is one delegated administrator.
type ExtraOwner struct {
	UserID  string
	AddedBy string
	AddedAt time.Time
}

// Incident is a persisted notification record.
type Incident struct {
	ID         string
	GuildID    string
	Kind       models.LogKind
	ActorID    string
	Action     models.ActionType
	Target     string
	Punishment string
	Reason     string
	Err        string
	CreatedAt  time.Time
}

// Store is the configuration store used by the engine and the admin
// commands. Reads for guilds that never ran setup return ErrNotProvisioned
// or empty values; they never fail for that reason alone.
type Store interface {
	LoadPolicy(ctx context.Context, guildID string) (*GuildPolicy, error)

	GuildConfig(ctx context.Context, guildID string) (*models.TenantProtectionConfig, error)
	SaveGuildConfig(ctx context.Context, cfg *models.TenantProtectionConfig) error
	SetEnabled(ctx context.Context, guildID string, enabled bool) error
	SetFeature(ctx context.Context, guildID string, action models.ActionType, enabled bool) error

	Limits(ctx context.Context, guildID string) (map[models.ActionType]models.LimitRule, error)
	SetLimit(ctx context.Context, guildID string, action models.ActionType, rule models.LimitRule) error
	SeedDefaultLimits(ctx context.Context, guildID string) error

	Whitelist(ctx context.Context, guildID string) (models.Whitelist, error)
	AddWhitelist(ctx context.Context, guildID, targetID string, kind WhitelistKind) error
	RemoveWhitelist(ctx context.Context, guildID, targetID string, kind WhitelistKind) (bool, error)

	ExtraOwners(ctx context.Context, guildID string) ([]ExtraOwner, error)
	AddExtraOwner(ctx context.Context, guildID, userID, addedBy string) error
	RemoveExtraOwner(ctx context.Context, guildID, userID string) (bool, error)

	SaveQuarantine(ctx context.Context, guildID string, rec *models.QuarantineRecord) error
	Quarantine(ctx context.Context, guildID, userID string) (*models.QuarantineRecord, error)
	DeleteQuarantine(ctx context.Context, guildID, userID string) error

	RecordIncident(ctx context.Context, rec models.Record) error
	RecentIncidents(ctx context.Context, guildID string, limit int) ([]Incident, error)
}

var _ Store = (*SQLiteStore)(nil)
