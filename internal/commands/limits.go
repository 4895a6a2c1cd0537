package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"go-antinuke-guard/internal/database"
	"go-antinuke-guard/internal/models"
)

// featureAll is the toggle value for the guild wide switch.
const featureAll = "enabled"

func (h *Handler) toggle(ctx context.Context, inv Invocation) (Reply, error) {
	feature := inv.str("feature")
	on := inv.boolean("state")

	if feature == featureAll {
		if err := h.store.SetEnabled(ctx, inv.GuildID, on); err != nil {
			return Reply{}, err
		}
	} else {
		action, err := models.ParseActionType(feature)
		if err != nil {
			return Reply{}, invalid("Unknown feature %q", feature)
		}
		if err := h.store.SetFeature(ctx, inv.GuildID, action, on); err != nil {
			return Reply{}, err
		}
	}

	state, color := "DISABLED", colorError
	if on {
		state, color = "ENABLED", colorSuccess
	}
	return reply(color, "⚙️ "+feature, fmt.Sprintf("Now **%s**", state)), nil
}

func (h *Handler) limit(ctx context.Context, inv Invocation) (Reply, error) {
	action, err := models.ParseActionType(inv.str("action"))
	if err != nil {
		return Reply{}, invalid("Unknown action %q", inv.str("action"))
	}
	punishment, err := models.ParsePunishment(inv.str("punishment"))
	if err != nil {
		return Reply{}, invalid("Unknown punishment %q", inv.str("punishment"))
	}
	count := inv.integer("count", 0)
	seconds := inv.integer("seconds", 0)
	if count < 1 {
		return Reply{}, invalid("Count must be at least 1")
	}

	rule := models.LimitRule{
		Count:      uint(count),
		Window:     time.Duration(seconds) * time.Second,
		Punishment: punishment,
	}
	if err := rule.Validate(); err != nil {
		return Reply{}, invalid("%s", err.Error())
	}
	if err := h.store.SetLimit(ctx, inv.GuildID, action, rule); err != nil {
		return Reply{}, err
	}

	return reply(colorSuccess, "⚙️ Limit Updated",
		fmt.Sprintf("**%s:** %d per %ds\n**Punishment:** %s", action, count, seconds, punishment)), nil
}

func (h *Handler) settings(ctx context.Context, inv Invocation, policy *database.GuildPolicy) (Reply, error) {
	cfg := policy.Config

	status := "❌ Disabled"
	if cfg.Enabled {
		status = "✅ Enabled"
	}

	var features []string
	for _, a := range models.AllActions {
		if on, ok := cfg.FeatureOverrides[a]; ok {
			mark := "❌"
			if on {
				mark = "✅"
			}
			features = append(features, fmt.Sprintf("%s %s", mark, a))
		}
	}
	featureText := "All default"
	if len(features) > 0 {
		featureText = strings.Join(features, "\n")
	}

	var limits []string
	for _, a := range models.AllActions {
		if rule, ok := policy.Limits[a]; ok {
			limits = append(limits, fmt.Sprintf("%s: %d/%ds → %s", a, rule.Count, int(rule.Window.Seconds()), rule.Punishment))
		}
	}
	limitText := strings.Join(limits, "\n")
	if limitText == "" {
		limitText = "None"
	}
	if len(limitText) > 1000 {
		limitText = limitText[:1000]
	}

	r := reply(colorInfo, "🛡️ AntiNuke Settings", "**Status:** "+status)
	r.Embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Features", Value: featureText},
		{Name: "Limits", Value: limitText},
		{Name: "Whitelist", Value: fmt.Sprintf("Users: %d, Roles: %d", len(policy.Whitelist.Users), len(policy.Whitelist.Roles)), Inline: true},
		{Name: "Extra Owners", Value: fmt.Sprintf("%d", len(policy.ExtraOwners)), Inline: true},
		{Name: "Log Channel", Value: mentionOr(cfg.LogChannelID, "<#%s>"), Inline: true},
		{Name: "Quarantine Role", Value: mentionOr(cfg.QuarantineRoleID, "<@&%s>"), Inline: true},
	}
	return r, nil
}

func mentionOr(id, format string) string {
	if id == "" {
		return "None"
	}
	return fmt.Sprintf(format, id)
}
