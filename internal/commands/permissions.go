package commands

import (
	"context"

	"go-antinuke-guard/internal/database"
	"go-antinuke-guard/internal/logging"
)

// owner returns the live guild owner, falling back to the owner recorded at
// setup when the lookup fails.
func (h *Handler) owner(ctx context.Context, guildID, recorded string) string {
	if h.owners != nil {
		id, err := h.owners.GuildOwner(ctx, guildID)
		if err == nil && id != "" {
			return id
		}
		if err != nil {
			logging.Debug().Err(err).Str("guild", guildID).Msg("owner lookup failed")
		}
	}
	return recorded
}

// authorize admits the guild owner and, unless requireOwner is set, extra
// owners.
func (h *Handler) authorize(ctx context.Context, inv Invocation, policy *database.GuildPolicy, requireOwner bool) (Reply, bool) {
	isOwner := inv.UserID == h.owner(ctx, inv.GuildID, policy.Config.OwnerID)
	if isOwner {
		return Reply{}, true
	}
	if requireOwner {
		return denied("Only the server owner can do this."), false
	}
	if !policy.IsExtraOwner(inv.UserID) {
		return denied("Only the server owner or extra owners can do this."), false
	}
	return Reply{}, true
}
