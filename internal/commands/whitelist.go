package commands

import (
	"context"
	"fmt"
	"strings"

	"go-antinuke-guard/internal/database"
)

type whitelistType string

const (
	whitelistUsers whitelistType = "users"
	whitelistRoles whitelistType = "roles"
)

func (t whitelistType) kind() database.WhitelistKind {
	if t == whitelistRoles {
		return database.WhitelistRole
	}
	return database.WhitelistUser
}

func (t whitelistType) mention(id string) string {
	if t == whitelistRoles {
		return "<@&" + id + ">"
	}
	return "<@" + id + ">"
}

func (h *Handler) whitelist(ctx context.Context, inv Invocation) (Reply, error) {
	typ := whitelistType(inv.str("type"))
	if typ != whitelistUsers && typ != whitelistRoles {
		return Reply{}, invalid("Unknown whitelist type %q", typ)
	}

	switch action := inv.str("action"); action {
	case "list":
		wl, err := h.store.Whitelist(ctx, inv.GuildID)
		if err != nil {
			return Reply{}, err
		}
		ids := wl.Users
		if typ == whitelistRoles {
			ids = wl.Roles
		}
		return reply(colorInfo, "📋 Whitelisted "+string(typ), mentionList(ids, typ.mention)), nil

	case "add", "remove":
		target := inv.str("target")
		if target == "" {
			return Reply{}, invalid("Provide a target")
		}
		if action == "add" {
			if err := h.store.AddWhitelist(ctx, inv.GuildID, target, typ.kind()); err != nil {
				return Reply{}, err
			}
			return reply(colorSuccess, "", fmt.Sprintf("Added %s to %s", typ.mention(target), typ)), nil
		}
		removed, err := h.store.RemoveWhitelist(ctx, inv.GuildID, target, typ.kind())
		if err != nil {
			return Reply{}, err
		}
		if !removed {
			return Reply{}, invalid("%s is not whitelisted", typ.mention(target))
		}
		return reply(colorSuccess, "", fmt.Sprintf("Removed %s from %s", typ.mention(target), typ)), nil

	default:
		return Reply{}, invalid("Unknown action %q", action)
	}
}

func (h *Handler) extraOwner(ctx context.Context, inv Invocation) (Reply, error) {
	switch action := inv.str("action"); action {
	case "list":
		owners, err := h.store.ExtraOwners(ctx, inv.GuildID)
		if err != nil {
			return Reply{}, err
		}
		ids := make([]string, 0, len(owners))
		for _, o := range owners {
			ids = append(ids, o.UserID)
		}
		return reply(colorInfo, "👑 Extra Owners", mentionList(ids, whitelistUsers.mention)), nil

	case "add", "remove":
		user := inv.str("user")
		if user == "" {
			return Reply{}, invalid("Provide a user")
		}
		if action == "add" {
			if err := h.store.AddExtraOwner(ctx, inv.GuildID, user, inv.UserID); err != nil {
				return Reply{}, err
			}
			return reply(colorSuccess, "", fmt.Sprintf("Added <@%s>", user)), nil
		}
		removed, err := h.store.RemoveExtraOwner(ctx, inv.GuildID, user)
		if err != nil {
			return Reply{}, err
		}
		if !removed {
			return Reply{}, invalid("<@%s> is not an extra owner", user)
		}
		return reply(colorSuccess, "", fmt.Sprintf("Removed <@%s>", user)), nil

	default:
		return Reply{}, invalid("Unknown action %q", action)
	}
}

func mentionList(ids []string, mention func(string) string) string {
	if len(ids) == 0 {
		return "None"
	}
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, mention(id))
	}
	return strings.Join(lines, "\n")
}
