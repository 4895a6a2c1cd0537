package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/goccy/go-json"

	"go-antinuke-guard/internal/forensics"
	"go-antinuke-guard/internal/logging"
	"go-antinuke-guard/internal/models"
	"go-antinuke-guard/internal/state"
)

// massRoleMentions is the number of role mentions above which a message
// counts as mass mention.
const massRoleMentions = 5

// Processor consumes raw events.
type Processor interface {
	Process(ctx context.Context, ev models.RawEvent)
}

// Reverter undoes detected mutations.
type Reverter interface {
	DeleteChannel(ctx context.Context, guildID, channelID string) error
	DeleteRole(ctx context.Context, guildID, roleID string) error
	DeleteEmoji(ctx context.Context, guildID, emojiID string) error
	DeleteSticker(ctx context.Context, guildID, stickerID string) error
	DeleteWebhook(ctx context.Context, guildID, webhookID string) error
	Unban(ctx context.Context, guildID, userID string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error
	DeleteMessage(ctx context.Context, guildID, channelID, messageID string) error
	RestoreRolePermissions(ctx context.Context, guildID, roleID string, perms int64) error
	RestoreChannelOverwrites(ctx context.Context, guildID, channelID string, overwrites []*discordgo.PermissionOverwrite) error
}

// PermissionFunc reports a user's effective permissions in a channel.
type PermissionFunc func(userID, channelID string) (int64, error)

// Handlers translates gateway events into raw events for the pipeline.
type Handlers struct {
	ctx     context.Context
	proc    Processor
	rest    Reverter
	snaps   *forensics.SnapshotStore
	counter *state.WindowCounter
	perms   PermissionFunc
	selfID  string
	now     func() time.Time
}

// NewHandlers builds the gateway handlers. ctx is the process root context
// passed to every pipeline run.
func NewHandlers(ctx context.Context, proc Processor, rest Reverter, snaps *forensics.SnapshotStore, counter *state.WindowCounter, selfID string) *Handlers {
	return &Handlers{
		ctx:     ctx,
		proc:    proc,
		rest:    rest,
		snaps:   snaps,
		counter: counter,
		selfID:  selfID,
		now:     time.Now,
	}
}

// Register attaches every handler to the session. discordgo runs each
// handler on its own goroutine unless SyncEvents is set.
func (h *Handlers) Register(s *Session) {
	dg := s.Discord()
	if h.perms == nil {
		h.perms = func(userID, channelID string) (int64, error) {
			return dg.State.UserChannelPermissions(userID, channelID)
		}
	}

	dg.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildCreate) { h.seedGuild(g.Guild) })
	dg.AddHandler(func(_ *discordgo.Session, g *discordgo.GuildDelete) { h.forgetGuild(g) })

	dg.AddHandler(func(_ *discordgo.Session, c *discordgo.ChannelCreate) { h.emit(h.channelCreate(c.Channel)) })
	dg.AddHandler(func(_ *discordgo.Session, c *discordgo.ChannelDelete) { h.emit(h.channelDelete(c.Channel)) })
	dg.AddHandler(func(_ *discordgo.Session, c *discordgo.ChannelUpdate) { h.emit(h.channelUpdate(c.BeforeUpdate, c.Channel)) })

	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.GuildRoleCreate) { h.emit(h.roleCreate(r.GuildID, r.Role)) })
	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.GuildRoleDelete) { h.emit(h.roleDelete(r.GuildID, r.RoleID)) })
	dg.AddHandler(func(_ *discordgo.Session, r *discordgo.GuildRoleUpdate) { h.emit(h.roleUpdate(r.GuildID, r.Role)) })

	dg.AddHandler(func(_ *discordgo.Session, b *discordgo.GuildBanAdd) { h.emit(h.banAdd(b.GuildID, b.User)) })
	dg.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberRemove) { h.emit(h.memberRemove(m.Member)) })
	dg.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) { h.emit(h.memberAdd(m.Member)) })
	dg.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) { h.emit(h.memberUpdate(m.BeforeUpdate, m.Member)) })

	dg.AddHandler(func(_ *discordgo.Session, w *discordgo.WebhooksUpdate) { h.emit(h.webhooksUpdate(w.GuildID, w.ChannelID)) })

	dg.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildEmojisUpdate) {
		h.emit(h.assetsUpdate(e.GuildID, forensics.AssetEmoji, emojiRefs(e.Emojis))...)
	})
	dg.AddHandler(func(_ *discordgo.Session, e *discordgo.Event) {
		if e.Type != "GUILD_STICKERS_UPDATE" {
			return
		}
		var u stickersUpdate
		if err := json.Unmarshal(e.RawData, &u); err != nil {
			logging.Warn().Err(err).Msg("undecodable sticker update")
			return
		}
		h.emit(h.assetsUpdate(u.GuildID, forensics.AssetSticker, stickerRefs(u.Stickers))...)
	})

	dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) { h.emit(h.message(m.Message)) })
}

func (h *Handlers) emit(events ...models.RawEvent) {
	for _, ev := range events {
		if ev.GuildID == "" {
			continue
		}
		if ev.ReceivedAt.IsZero() {
			ev.ReceivedAt = h.now()
		}
		h.proc.Process(h.ctx, ev)
	}
}

// none is returned by builders that decided the gateway event is not a
// protected mutation.
var none = models.RawEvent{}

func (h *Handlers) seedGuild(g *discordgo.Guild) {
	if g == nil || g.Unavailable {
		return
	}
	h.snaps.SeedAssets(g.ID, forensics.AssetEmoji, emojiRefs(g.Emojis))
	h.snaps.SeedAssets(g.ID, forensics.AssetSticker, stickerRefs(g.Stickers))
	for _, r := range g.Roles {
		h.snaps.SwapRolePerms(g.ID, r.ID, r.Permissions)
	}
	logging.Info().Str("guild", g.ID).Int("roles", len(g.Roles)).Int("emojis", len(g.Emojis)).Msg("guild snapshot seeded")
}

func (h *Handlers) forgetGuild(g *discordgo.GuildDelete) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	// removed from the guild; a later re-add starts from a clean slate
	h.snaps.ForgetGuild(g.ID)
	h.counter.ClearGuild(g.ID)
	logging.Info().Str("guild", g.ID).Msg("guild removed, state cleared")
}

func (h *Handlers) channelCreate(c *discordgo.Channel) models.RawEvent {
	if c == nil {
		return none
	}
	guildID, channelID := c.GuildID, c.ID
	return models.RawEvent{
		GuildID:  guildID,
		Action:   models.ActionChannelCreate,
		TargetID: channelID,
		Target:   c.Name,
		Revert: func(ctx context.Context, _ *models.Attribution) error {
			return h.rest.DeleteChannel(ctx, guildID, channelID)
		},
	}
}

func (h *Handlers) channelDelete(c *discordgo.Channel) models.RawEvent {
	if c == nil {
		return none
	}
	return models.RawEvent{GuildID: c.GuildID, Action: models.ActionChannelDelete, TargetID: c.ID, Target: c.Name}
}

func (h *Handlers) channelUpdate(before, after *discordgo.Channel) models.RawEvent {
	if before == nil || after == nil || !overwritesChanged(before.PermissionOverwrites, after.PermissionOverwrites) {
		return none
	}
	guildID, channelID := after.GuildID, after.ID
	previous := cloneOverwrites(before.PermissionOverwrites)
	return models.RawEvent{
		GuildID:  guildID,
		Action:   models.ActionChannelPermUpdate,
		TargetID: channelID,
		Target:   after.Name,
		Revert: func(ctx context.Context, _ *models.Attribution) error {
			return h.rest.RestoreChannelOverwrites(ctx, guildID, channelID, previous)
		},
	}
}

func (h *Handlers) roleCreate(guildID string, r *discordgo.Role) models.RawEvent {
	if r == nil {
		return none
	}
	roleID := r.ID
	h.snaps.SwapRolePerms(guildID, roleID, r.Permissions)
	return models.RawEvent{
		GuildID:  guildID,
		Action:   models.ActionRoleCreate,
		TargetID: roleID,
		Target:   r.Name,
		Revert: func(ctx context.Context, _ *models.Attribution) error {
			return h.rest.DeleteRole(ctx, guildID, roleID)
		},
	}
}

func (h *Handlers) roleDelete(guildID, roleID string) models.RawEvent {
	h.snaps.ForgetRole(guildID, roleID)
	return models.RawEvent{GuildID: guildID, Action: models.ActionRoleDelete, TargetID: roleID, Target: roleID}
}

func (h *Handlers) roleUpdate(guildID string, r *discordgo.Role) models.RawEvent {
	if r == nil {
		return none
	}
	prev, known := h.snaps.SwapRolePerms(guildID, r.ID, r.Permissions)
	if !known || prev == r.Permissions {
		return none
	}
	roleID := r.ID
	return models.RawEvent{
		GuildID:  guildID,
		Action:   models.ActionRolePermUpdate,
		TargetID: roleID,
		Target:   r.Name,
		Revert: func(ctx context.Context, _ *models.Attribution) error {
			return h.rest.RestoreRolePermissions(ctx, guildID, roleID, prev)
		},
	}
}

func (h *Handlers) banAdd(guildID string, u *discordgo.User) models.RawEvent {
	if u == nil {
		return none
	}
	userID := u.ID
	return models.RawEvent{
		GuildID:  guildID,
		Action:   models.ActionBanAdd,
		TargetID: userID,
		Target:   u.String(),
		Revert: func(ctx context.Context, _ *models.Attribution) error {
			return h.rest.Unban(ctx, guildID, userID)
		},
	}
}

// memberRemove covers kicks. Plain leaves have no audit entry and are
// dropped by attribution.
func (h *Handlers) memberRemove(m *discordgo.Member) models.RawEvent {
	if m == nil || m.User == nil || m.User.ID == h.selfID {
		return none
	}
	return models.RawEvent{GuildID: m.GuildID, Action: models.ActionKickAdd, TargetID: m.User.ID, Target: m.User.String()}
}

func (h *Handlers) memberAdd(m *discordgo.Member) models.RawEvent {
	if m == nil || m.User == nil || !m.User.Bot {
		return none
	}
	guildID, botID := m.GuildID, m.User.ID
	return models.RawEvent{
		GuildID:  guildID,
		Action:   models.ActionBotAdd,
		TargetID: botID,
		Target:   m.User.String(),
		Revert: func(ctx context.Context, _ *models.Attribution) error {
			return h.rest.Kick(ctx, guildID, botID, "AntiNuke: Unauthorized bot")
		},
	}
}

func (h *Handlers) memberUpdate(before, after *discordgo.Member) models.RawEvent {
	if before == nil || after == nil || after.User == nil {
		return none
	}
	added := addedRoles(before.Roles, after.Roles)
	if len(added) == 0 {
		return none
	}
	guildID, userID := after.GuildID, after.User.ID
	return models.RawEvent{
		GuildID:  guildID,
		Action:   models.ActionMemberRoleUpdate,
		TargetID: userID,
		Target:   after.User.String(),
		Revert: func(ctx context.Context, _ *models.Attribution) error {
			var errs []error
			for _, roleID := range added {
				if err := h.rest.RemoveRole(ctx, guildID, userID, roleID, "AntiNuke revert"); err != nil {
					errs = append(errs, fmt.Errorf("remove role %s: %w", roleID, err))
				}
			}
			return errors.Join(errs...)
		},
	}
}

// webhooksUpdate only names the channel; the created webhook comes from the
// audit entry.
func (h *Handlers) webhooksUpdate(guildID, channelID string) models.RawEvent {
	return models.RawEvent{
		GuildID: guildID,
		Action:  models.ActionWebhookCreate,
		Target:  "<#" + channelID + ">",
		Revert: func(ctx context.Context, attr *models.Attribution) error {
			if attr == nil || attr.TargetID == "" {
				return errors.New("audit entry names no webhook")
			}
			return h.rest.DeleteWebhook(ctx, guildID, attr.TargetID)
		},
	}
}

func (h *Handlers) assetsUpdate(guildID string, kind forensics.AssetKind, current []forensics.AssetRef) []models.RawEvent {
	added, removed := h.snaps.ReplaceAssets(guildID, kind, current)

	createAction, deleteAction := models.ActionEmojiCreate, models.ActionEmojiDelete
	del := h.rest.DeleteEmoji
	if kind == forensics.AssetSticker {
		createAction, deleteAction = models.ActionStickerCreate, models.ActionStickerDelete
		del = h.rest.DeleteSticker
	}

	events := make([]models.RawEvent, 0, len(added)+len(removed))
	for _, a := range added {
		id := a.ID
		events = append(events, models.RawEvent{
			GuildID:  guildID,
			Action:   createAction,
			TargetID: id,
			Target:   a.Name,
			Revert: func(ctx context.Context, _ *models.Attribution) error {
				return del(ctx, guildID, id)
			},
		})
	}
	for _, r := range removed {
		events = append(events, models.RawEvent{GuildID: guildID, Action: deleteAction, TargetID: r.ID, Target: r.Name})
	}
	return events
}

// message detects mass mentions by members allowed to ping everyone. The
// message itself carries the author, so no audit lookup is needed.
func (h *Handlers) message(m *discordgo.Message) models.RawEvent {
	if m == nil || m.GuildID == "" || m.Author == nil || m.Author.Bot {
		return none
	}
	target := massMention(m)
	if target == "" {
		return none
	}

	perms, err := h.perms(m.Author.ID, m.ChannelID)
	if err != nil {
		logging.Debug().Err(err).Str("guild", m.GuildID).Str("user", m.Author.ID).Msg("permission lookup failed")
		return none
	}
	if perms&discordgo.PermissionMentionEveryone == 0 {
		return none
	}

	guildID, channelID, messageID := m.GuildID, m.ChannelID, m.ID
	return models.RawEvent{
		GuildID:       guildID,
		Action:        models.ActionMentionSpam,
		TargetID:      messageID,
		Target:        target,
		Author:        &models.Actor{ID: m.Author.ID, Tag: m.Author.String(), Bot: m.Author.Bot},
		CorrelationID: messageID,
		ReceivedAt:    m.Timestamp,
		Revert: func(ctx context.Context, _ *models.Attribution) error {
			return h.rest.DeleteMessage(ctx, guildID, channelID, messageID)
		},
	}
}

func massMention(m *discordgo.Message) string {
	switch {
	case strings.Contains(m.Content, "@everyone"):
		return "@everyone"
	case len(m.MentionRoles) > massRoleMentions:
		return "mass roles"
	case strings.Contains(m.Content, "@here"):
		return "@here"
	default:
		return ""
	}
}

func overwritesChanged(before, after []*discordgo.PermissionOverwrite) bool {
	if len(before) != len(after) {
		return true
	}
	next := make(map[string]*discordgo.PermissionOverwrite, len(after))
	for _, o := range after {
		next[o.ID] = o
	}
	for _, o := range before {
		n, ok := next[o.ID]
		if !ok || n.Allow != o.Allow || n.Deny != o.Deny {
			return true
		}
	}
	return false
}

func cloneOverwrites(in []*discordgo.PermissionOverwrite) []*discordgo.PermissionOverwrite {
	out := make([]*discordgo.PermissionOverwrite, 0, len(in))
	for _, o := range in {
		c := *o
		out = append(out, &c)
	}
	return out
}

func addedRoles(before, after []string) []string {
	had := make(map[string]struct{}, len(before))
	for _, id := range before {
		had[id] = struct{}{}
	}
	var added []string
	for _, id := range after {
		if _, ok := had[id]; !ok {
			added = append(added, id)
		}
	}
	return added
}

type stickersUpdate struct {
	GuildID  string               `json:"guild_id"`
	Stickers []*discordgo.Sticker `json:"stickers"`
}

func emojiRefs(emojis []*discordgo.Emoji) []forensics.AssetRef {
	refs := make([]forensics.AssetRef, 0, len(emojis))
	for _, e := range emojis {
		refs = append(refs, forensics.AssetRef{ID: e.ID, Name: e.Name})
	}
	return refs
}

func stickerRefs(stickers []*discordgo.Sticker) []forensics.AssetRef {
	refs := make([]forensics.AssetRef, 0, len(stickers))
	for _, s := range stickers {
		refs = append(refs, forensics.AssetRef{ID: s.ID, Name: s.Name})
	}
	return refs
}
