package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ErrMemberNotFound is returned when the target is no longer in the guild.
var ErrMemberNotFound = errors.New("dispatcher: member not found")

// ActionExecutor performs moderation calls against the platform.
type ActionExecutor interface {
	Ban(ctx context.Context, guildID, userID, reason string, deleteMessageDays int) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Timeout(ctx context.Context, guildID, userID string, until time.Time, reason string) error
	AddRole(ctx context.Context, guildID, userID, roleID, reason string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error
	// MemberRoles returns ErrMemberNotFound when userID is not a member.
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
}

// RESTExecutor is the discordgo backed ActionExecutor. It also carries the
// deletion and restore calls used by reversal closures.
type RESTExecutor struct {
	session *discordgo.Session
	pacer   *GuildPacer
}

func NewRESTExecutor(session *discordgo.Session, pacer *GuildPacer) *RESTExecutor {
	if pacer == nil {
		pacer = NewGuildPacer(0, 1)
	}
	return &RESTExecutor{session: session, pacer: pacer}
}

func opts(ctx context.Context, reason string) []discordgo.RequestOption {
	o := []discordgo.RequestOption{discordgo.WithContext(ctx)}
	if reason != "" {
		o = append(o, discordgo.WithAuditLogReason(reason))
	}
	return o
}

// isUnknown reports whether err is a 404 style "unknown entity" response.
func isUnknown(err error, code int) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == code {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

func (e *RESTExecutor) Ban(ctx context.Context, guildID, userID, reason string, deleteMessageDays int) error {
	if err := e.pacer.Wait(ctx, guildID); err != nil {
		return err
	}
	if err := e.session.GuildBanCreateWithReason(guildID, userID, reason, deleteMessageDays, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("ban %s: %w", userID, err)
	}
	return nil
}

func (e *RESTExecutor) Kick(ctx context.Context, guildID, userID, reason string) error {
	if err := e.pacer.Wait(ctx, guildID); err != nil {
		return err
	}
	if err := e.session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx)); err != nil {
		if isUnknown(err, discordgo.ErrCodeUnknownMember) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("kick %s: %w", userID, err)
	}
	return nil
}

func (e *RESTExecutor) Timeout(ctx context.Context, guildID, userID string, until time.Time, reason string) error {
	if err := e.pacer.Wait(ctx, guildID); err != nil {
		return err
	}
	if err := e.session.GuildMemberTimeout(guildID, userID, &until, opts(ctx, reason)...); err != nil {
		if isUnknown(err, discordgo.ErrCodeUnknownMember) {
			return ErrMemberNotFound
		}
		return fmt.Errorf("timeout %s: %w", userID, err)
	}
	return nil
}

func (e *RESTExecutor) AddRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	if err := e.pacer.Wait(ctx, guildID); err != nil {
		return err
	}
	if err := e.session.GuildMemberRoleAdd(guildID, userID, roleID, opts(ctx, reason)...); err != nil {
		return fmt.Errorf("add role %s to %s: %w", roleID, userID, err)
	}
	return nil
}

func (e *RESTExecutor) RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	if err := e.pacer.Wait(ctx, guildID); err != nil {
		return err
	}
	if err := e.session.GuildMemberRoleRemove(guildID, userID, roleID, opts(ctx, reason)...); err != nil {
		return fmt.Errorf("remove role %s from %s: %w", roleID, userID, err)
	}
	return nil
}

func (e *RESTExecutor) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	if m, err := e.session.State.Member(guildID, userID); err == nil {
		return append([]string(nil), m.Roles...), nil
	}
	m, err := e.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		if isUnknown(err, discordgo.ErrCodeUnknownMember) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("fetch member %s: %w", userID, err)
	}
	return m.Roles, nil
}

// GuildOwner reads the owner from the gateway cache, falling back to REST.
func (e *RESTExecutor) GuildOwner(ctx context.Context, guildID string) (string, error) {
	if g, err := e.session.State.Guild(guildID); err == nil && g.OwnerID != "" {
		return g.OwnerID, nil
	}
	g, err := e.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetch guild %s: %w", guildID, err)
	}
	return g.OwnerID, nil
}

const revertReason = "AntiNuke revert"

func (e *RESTExecutor) DeleteChannel(ctx context.Context, guildID, channelID string) error {
	if err := e.pacer.Wait(ctx, guildID); err != nil {
		return err
	}
	_, err := e.session.ChannelDelete(channelID, opts(ctx, revertReason)...)
	return err
}

func (e *RESTExecutor) DeleteRole(ctx context.Context, guildID, roleID string) error {
	if err := e.pacer.Wait(ctx, guildID); err != nil {
		return err
	}
	return e.session.GuildRoleDelete(guildID, roleID, opts(ctx, revertReason)...)
}

func (e *RESTExecutor) DeleteEmoji(ctx context.Context, guildID, emojiID string) error {
	if err := e.pacer.Wait(ctx, guildID); err != nil {
		return err
	}
	return e.session.GuildEmojiDelete(guildID, emojiID, opts(ctx, revertReason)...)
}

// DeleteSticker has no typed helper in discordgo, so the route is built here.
func (e *RESTExecutor) DeleteSticker(ctx context.Context, guildID, stickerID string) error {
	if err := e.pacer.Wait(ctx, guildID); err != nil {
		return err
	}
	bucket := discordgo.EndpointGuild(guildID) + "/stickers/"
	_, err := e.session.RequestWithBucketID(http.MethodDelete, bucket+stickerID, nil, bucket, opts(ctx, revertReason)...)
	return err
}

func (e *RESTExecutor) DeleteWebhook(ctx context.Context, guildID, webhookID string) error {
	if err := e.pacer.Wait(ctx, guildID); err != nil {
		return err
	}
	return e.session.WebhookDelete(webhookID, opts(ctx, revertReason)...)
}

func (e *RESTExecutor) Unban(ctx context.Context, guildID, userID string) error {
	if err := e.pacer.Wait(ctx, guildID); err != nil {
		return err
	}
	return e.session.GuildBanDelete(guildID, userID, opts(ctx, revertReason)...)
}

func (e *RESTExecutor) DeleteMessage(ctx context.Context, guildID, channelID, messageID string) error {
	if err := e.pacer.Wait(ctx, guildID); err != nil {
		return err
	}
	return e.session.ChannelMessageDelete(channelID, messageID, opts(ctx, revertReason)...)
}

// RestoreRolePermissions writes back a role's previous permission bits.
func (e *RESTExecutor) RestoreRolePermissions(ctx context.Context, guildID, roleID string, perms int64) error {
	if err := e.pacer.Wait(ctx, guildID); err != nil {
		return err
	}
	_, err := e.session.GuildRoleEdit(guildID, roleID, &discordgo.RoleParams{Permissions: &perms}, opts(ctx, revertReason)...)
	return err
}

// RestoreChannelOverwrites writes back a channel's previous overwrites.
func (e *RESTExecutor) RestoreChannelOverwrites(ctx context.Context, guildID, channelID string, overwrites []*discordgo.PermissionOverwrite) error {
	if err := e.pacer.Wait(ctx, guildID); err != nil {
		return err
	}
	if overwrites == nil {
		overwrites = []*discordgo.PermissionOverwrite{}
	}
	_, err := e.session.ChannelEdit(channelID, &discordgo.ChannelEdit{PermissionOverwrites: overwrites}, opts(ctx, revertReason)...)
	return err
}

var _ ActionExecutor = (*RESTExecutor)(nil)
