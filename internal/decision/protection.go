package decision

import (
	"context"

	"go-antinuke-guard/internal/database"
	"go-antinuke-guard/internal/logging"
	"go-antinuke-guard/internal/models"
)

// GuildDirectory answers live membership questions about a guild.
type GuildDirectory interface {
	// GuildOwner returns the current owner id, or "" when unknown.
	GuildOwner(ctx context.Context, guildID string) (string, error)
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
}

// Protection is the result of a protection check.
type Protection struct {
	Protected bool
	Reason    models.ProtectionReason
}

// ProtectionResolver decides whether an actor is exempt from enforcement.
type ProtectionResolver struct {
	selfID    string
	directory GuildDirectory
}

func NewProtectionResolver(selfID string, directory GuildDirectory) *ProtectionResolver {
	return &ProtectionResolver{selfID: selfID, directory: directory}
}

// IsProtected checks owner, engine identity, extra owners, whitelisted users
// and whitelisted roles, in that order. The member fetch for role checks
// happens last; if it fails the actor is not protected by role.
func (pr *ProtectionResolver) IsProtected(ctx context.Context, policy *database.GuildPolicy, guildID, actorID string) Protection {
	if owner := pr.owner(ctx, policy, guildID); owner != "" && actorID == owner {
		return Protection{Protected: true, Reason: models.ProtectedOwner}
	}
	if pr.selfID != "" && actorID == pr.selfID {
		return Protection{Protected: true, Reason: models.ProtectedSelf}
	}
	if policy.IsExtraOwner(actorID) {
		return Protection{Protected: true, Reason: models.ProtectedExtraOwner}
	}
	if policy.Whitelist.HasUser(actorID) {
		return Protection{Protected: true, Reason: models.ProtectedWhitelistedUser}
	}
	if len(policy.Whitelist.Roles) == 0 || pr.directory == nil {
		return Protection{}
	}

	roles, err := pr.directory.MemberRoles(ctx, guildID, actorID)
	if err != nil {
		logging.Debug().Err(err).Str("guild", guildID).Str("actor", actorID).Msg("member fetch for role whitelist failed")
		return Protection{}
	}
	if policy.Whitelist.HasAnyRole(roles) {
		return Protection{Protected: true, Reason: models.ProtectedWhitelistedRole}
	}
	return Protection{}
}

func (pr *ProtectionResolver) owner(ctx context.Context, policy *database.GuildPolicy, guildID string) string {
	if pr.directory != nil {
		if id, err := pr.directory.GuildOwner(ctx, guildID); err == nil && id != "" {
			return id
		}
	}
	if policy.Config != nil {
		return policy.Config.OwnerID
	}
	return ""
}
