package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"go-antinuke-guard/internal/database"
	"go-antinuke-guard/internal/dispatcher"
	"go-antinuke-guard/internal/logging"
	"go-antinuke-guard/internal/models"
)

const (
	quarantineRoleName  = "Quarantine"
	quarantineRoleColor = 0x8B0000
	setupReason         = "AntiNuke Protection"
)

// quarantineDeny is what the quarantine role loses on every channel.
const quarantineDeny = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionAddReactions |
	discordgo.PermissionVoiceConnect |
	discordgo.PermissionVoiceSpeak

// GuildAdmin creates the guild resources setup needs.
type GuildAdmin interface {
	CreateLogChannel(ctx context.Context, guildID string) (string, error)
	CreateQuarantineRole(ctx context.Context, guildID string) (string, error)
	// LockQuarantineRole denies the role on every channel and returns how
	// many channels were updated.
	LockQuarantineRole(ctx context.Context, guildID, roleID string) (int, error)
}

// DiscordGuildAdmin implements GuildAdmin with discordgo.
type DiscordGuildAdmin struct {
	session  *discordgo.Session
	pacer    *dispatcher.GuildPacer
	selfID   string
	selfName string
}

func NewDiscordGuildAdmin(session *discordgo.Session, pacer *dispatcher.GuildPacer, selfID, selfName string) *DiscordGuildAdmin {
	return &DiscordGuildAdmin{session: session, pacer: pacer, selfID: selfID, selfName: selfName}
}

func (a *DiscordGuildAdmin) opts(ctx context.Context) []discordgo.RequestOption {
	return []discordgo.RequestOption{discordgo.WithContext(ctx), discordgo.WithAuditLogReason(setupReason)}
}

// LogChannelName derives the log channel name from the bot's username.
func LogChannelName(botName string) string {
	name := strings.Join(strings.Fields(strings.ToLower(botName)), "-")
	if name == "" {
		name = "antinuke"
	}
	return name + "-antinuke-logs"
}

func (a *DiscordGuildAdmin) CreateLogChannel(ctx context.Context, guildID string) (string, error) {
	ch, err := a.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name: LogChannelName(a.selfName),
		Type: discordgo.ChannelTypeGuildText,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
			{ID: a.selfID, Type: discordgo.PermissionOverwriteTypeMember, Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionEmbedLinks},
		},
	}, a.opts(ctx)...)
	if err != nil {
		return "", fmt.Errorf("create log channel: %w", err)
	}
	return ch.ID, nil
}

func (a *DiscordGuildAdmin) CreateQuarantineRole(ctx context.Context, guildID string) (string, error) {
	color := quarantineRoleColor
	var none int64
	role, err := a.session.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        quarantineRoleName,
		Color:       &color,
		Permissions: &none,
	}, a.opts(ctx)...)
	if err != nil {
		return "", fmt.Errorf("create quarantine role: %w", err)
	}
	return role.ID, nil
}

func (a *DiscordGuildAdmin) LockQuarantineRole(ctx context.Context, guildID, roleID string) (int, error) {
	channels, err := a.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("list channels: %w", err)
	}

	locked := 0
	var errs []error
	for _, ch := range channels {
		if ch.IsThread() {
			continue
		}
		if err := a.pacer.Wait(ctx, guildID); err != nil {
			return locked, err
		}
		if err := a.session.ChannelPermissionSet(ch.ID, roleID, discordgo.PermissionOverwriteTypeRole, 0, quarantineDeny, a.opts(ctx)...); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.ID, err))
			continue
		}
		locked++
	}
	return locked, errors.Join(errs...)
}

func (h *Handler) setup(ctx context.Context, inv Invocation) (Reply, error) {
	_, err := h.store.GuildConfig(ctx, inv.GuildID)
	if err == nil {
		return reply(colorWarn, "⚠️ Already Setup", "Use `/antinuke toggle` to manage"), nil
	}
	if !errors.Is(err, database.ErrNotProvisioned) {
		return Reply{}, err
	}

	owner := h.owner(ctx, inv.GuildID, "")
	if owner == "" || inv.UserID != owner {
		return denied("Only the server owner can run setup."), nil
	}

	channelID, err := h.guilds.CreateLogChannel(ctx, inv.GuildID)
	if err != nil {
		return Reply{}, err
	}
	roleID, err := h.guilds.CreateQuarantineRole(ctx, inv.GuildID)
	if err != nil {
		return Reply{}, err
	}
	locked, err := h.guilds.LockQuarantineRole(ctx, inv.GuildID, roleID)
	if err != nil {
		// partial lockdown still leaves a usable role
		logging.Warn().Err(err).Str("guild", inv.GuildID).Int("locked", locked).Msg("quarantine role not applied everywhere")
	}

	cfg := &models.TenantProtectionConfig{
		GuildID:          inv.GuildID,
		Enabled:          true,
		OwnerID:          owner,
		QuarantineRoleID: roleID,
		LogChannelID:     channelID,
		CreatedAt:        h.now(),
	}
	if err := h.store.SaveGuildConfig(ctx, cfg); err != nil {
		return Reply{}, err
	}
	if err := h.store.SeedDefaultLimits(ctx, inv.GuildID); err != nil {
		return Reply{}, err
	}

	logging.Info().Str("guild", inv.GuildID).Str("log_channel", channelID).Str("quarantine_role", roleID).Msg("guild provisioned")

	r := reply(colorSuccess, "🛡️ AntiNuke Initialized",
		fmt.Sprintf("**Log Channel:** <#%s>\n**Quarantine Role:** <@&%s>", channelID, roleID))
	r.Embed.Fields = []*discordgo.MessageEmbedField{{
		Name:  "Protection Active",
		Value: fmt.Sprintf("All features enabled by default. Quarantine role locked in %d channels.", locked),
	}}
	return r, nil
}
