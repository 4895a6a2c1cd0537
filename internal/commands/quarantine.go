package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go-antinuke-guard/internal/database"
	"go-antinuke-guard/internal/dispatcher"
)

// maxIncidents caps the incidents listing to keep the embed under the
// description limit.
const maxIncidents = 25

const defaultManualReason = "Manual quarantine"

func (h *Handler) quarantine(ctx context.Context, inv Invocation, policy *database.GuildPolicy) (Reply, error) {
	user := inv.str("user")
	if user == "" {
		return Reply{}, invalid("Provide a user")
	}
	reason := inv.str("reason")
	if reason == "" {
		reason = defaultManualReason
	}

	out, err := h.quarantines.Quarantine(ctx, inv.GuildID, user, policy.Config.QuarantineRoleID, reason, true)
	switch {
	case errors.Is(err, dispatcher.ErrMemberNotFound):
		return Reply{}, invalid("User not found")
	case errors.Is(err, dispatcher.ErrNoQuarantineRole):
		return Reply{}, invalid("No quarantine role configured, run setup again")
	case err != nil:
		return Reply{}, err
	}

	desc := fmt.Sprintf("**User:** <@%s>\n**Reason:** %s\n**Roles:** %d saved", user, reason, out.RolesSaved)
	if failed := out.FailedSteps(); len(failed) > 0 {
		desc += fmt.Sprintf("\n**Failed steps:** %d", len(failed))
	}
	return reply(colorError, "🚨 Quarantined", desc), nil
}

func (h *Handler) unquarantine(ctx context.Context, inv Invocation, policy *database.GuildPolicy) (Reply, error) {
	user := inv.str("user")
	if user == "" {
		return Reply{}, invalid("Provide a user")
	}

	out, err := h.quarantines.Unquarantine(ctx, inv.GuildID, user, policy.Config.QuarantineRoleID)
	switch {
	case errors.Is(err, dispatcher.ErrNotQuarantined):
		return Reply{}, invalid("<@%s> is not quarantined", user)
	case errors.Is(err, dispatcher.ErrMemberNotFound):
		return Reply{}, invalid("<@%s> is not in the server; their saved roles are kept", user)
	case err != nil:
		return Reply{}, err
	}

	desc := fmt.Sprintf("**User:** <@%s>\n**Roles:** %d restored", user, out.RolesSaved)
	if failed := out.FailedSteps(); len(failed) > 0 {
		desc += fmt.Sprintf("\n**Failed steps:** %d", len(failed))
	}
	return reply(colorSuccess, "✅ Unquarantined", desc), nil
}

func (h *Handler) incidents(ctx context.Context, inv Invocation) (Reply, error) {
	limit := int(inv.integer("limit", 10))
	if limit < 1 || limit > maxIncidents {
		return Reply{}, invalid("Limit must be between 1 and %d", maxIncidents)
	}

	list, err := h.store.RecentIncidents(ctx, inv.GuildID, limit)
	if err != nil {
		return Reply{}, err
	}
	if len(list) == 0 {
		return reply(colorInfo, "📜 Recent Incidents", "None"), nil
	}

	lines := make([]string, 0, len(list))
	for _, in := range list {
		line := fmt.Sprintf("<t:%d:R> **%s** %s by <@%s>", in.CreatedAt.Unix(), in.Kind, in.Action, in.ActorID)
		if in.Punishment != "" {
			line += " → " + in.Punishment
		}
		lines = append(lines, line)
	}
	return reply(colorInfo, "📜 Recent Incidents", strings.Join(lines, "\n")), nil
}
