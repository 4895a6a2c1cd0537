package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Bounds for a limit rule window.
const (
	MinWindow = time.Second
	MaxWindow = time.Hour
)

// MaxCount is the largest per-window count an administrator may configure.
const MaxCount = 50

// LimitRule caps how many times an actor may perform an action inside Window.
type LimitRule struct {
	Count      uint
	Window     time.Duration
	Punishment PunishmentKind
}

func (r LimitRule) Validate() error {
	if r.Count < 1 {
		return errors.New("limit count must be at least 1")
	}
	if r.Count > MaxCount {
		return fmt.Errorf("limit count must be at most %d", MaxCount)
	}
	if r.Window < MinWindow || r.Window > MaxWindow {
		return fmt.Errorf("limit window must be between %s and %s", MinWindow, MaxWindow)
	}
	if r.Punishment.String() == "unknown" {
		return fmt.Errorf("invalid punishment %d", r.Punishment)
	}
	return nil
}

// WarnAt is the count at which an early notice is emitted: ceil(Count/2).
func (r LimitRule) WarnAt() uint {
	return (r.Count + 1) / 2
}

// DefaultLimits returns the rules seeded when a guild runs setup.
func DefaultLimits() map[ActionType]LimitRule {
	fast := LimitRule{Count: 3, Window: 10 * time.Second, Punishment: PunishQuarantine}
	// permission edits are routine moderation; they only warn by default
	perms := LimitRule{Count: 5, Window: 10 * time.Second, Punishment: PunishWarn}
	slow := func(count uint) LimitRule {
		return LimitRule{Count: count, Window: time.Minute, Punishment: PunishQuarantine}
	}
	return map[ActionType]LimitRule{
		ActionChannelCreate:     fast,
		ActionChannelDelete:     fast,
		ActionChannelPermUpdate: perms,
		ActionRoleCreate:        fast,
		ActionRoleDelete:        fast,
		ActionRolePermUpdate:    perms,
		ActionBanAdd:            slow(5),
		ActionKickAdd:           slow(5),
		ActionBotAdd:            slow(1),
		ActionWebhookCreate:     slow(3),
		ActionMemberRoleUpdate:  {Count: 5, Window: 10 * time.Second, Punishment: PunishQuarantine},
		ActionEmojiCreate:       slow(5),
		ActionEmojiDelete:       slow(5),
		ActionStickerCreate:     slow(5),
		ActionStickerDelete:     slow(5),
		ActionMentionSpam:       slow(3),
	}
}

// TenantProtectionConfig is the per guild protection state.
type TenantProtectionConfig struct {
	GuildID          string
	Enabled          bool
	FeatureOverrides map[ActionType]bool
	OwnerID          string
	QuarantineRoleID string
	LogChannelID     string
	CreatedAt        time.Time
}

// FeatureEnabled reports whether the action is enforced. Absent overrides
// default to enabled.
func (c *TenantProtectionConfig) FeatureEnabled(action ActionType) bool {
	if c.FeatureOverrides == nil {
		return true
	}
	enabled, ok := c.FeatureOverrides[action]
	return !ok || enabled
}

// Whitelist holds exempt users and roles for a guild.
type Whitelist struct {
	Users []string
	Roles []string
}

func (w Whitelist) HasUser(id string) bool {
	return slices.Contains(w.Users, id)
}

// HasAnyRole reports whether any of roleIDs is whitelisted.
func (w Whitelist) HasAnyRole(roleIDs []string) bool {
	for _, id := range roleIDs {
		if slices.Contains(w.Roles, id) {
			return true
		}
	}
	return false
}

// QuarantineRecord is the role backup taken before a member is quarantined.
type QuarantineRecord struct {
	UserID     string
	SavedRoles []string
	Reason     string
	Timestamp  time.Time
	Manual     bool
}
