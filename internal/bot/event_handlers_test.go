package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-antinuke-guard/internal/forensics"
	"go-antinuke-guard/internal/models"
	"go-antinuke-guard/internal/state"
)

type fakeReverter struct {
	calls   []string
	failFor map[string]bool
}

func (f *fakeReverter) do(call string) error {
	f.calls = append(f.calls, call)
	if f.failFor[call] {
		return errors.New("403 missing permissions")
	}
	return nil
}

func (f *fakeReverter) DeleteChannel(_ context.Context, _, id string) error { return f.do("channel:" + id) }
func (f *fakeReverter) DeleteRole(_ context.Context, _, id string) error    { return f.do("role:" + id) }
func (f *fakeReverter) DeleteEmoji(_ context.Context, _, id string) error   { return f.do("emoji:" + id) }
func (f *fakeReverter) DeleteSticker(_ context.Context, _, id string) error { return f.do("sticker:" + id) }
func (f *fakeReverter) DeleteWebhook(_ context.Context, _, id string) error { return f.do("webhook:" + id) }
func (f *fakeReverter) Unban(_ context.Context, _, id string) error         { return f.do("unban:" + id) }
func (f *fakeReverter) Kick(_ context.Context, _, id, _ string) error       { return f.do("kick:" + id) }
func (f *fakeReverter) RemoveRole(_ context.Context, _, user, role, _ string) error {
	return f.do("unrole:" + user + ":" + role)
}
func (f *fakeReverter) DeleteMessage(_ context.Context, _, _, id string) error {
	return f.do("message:" + id)
}
func (f *fakeReverter) RestoreRolePermissions(_ context.Context, _, id string, perms int64) error {
	return f.do("perms:" + id)
}
func (f *fakeReverter) RestoreChannelOverwrites(_ context.Context, _, id string, _ []*discordgo.PermissionOverwrite) error {
	return f.do("overwrites:" + id)
}

type collector struct{ events []models.RawEvent }

func (c *collector) Process(_ context.Context, ev models.RawEvent) { c.events = append(c.events, ev) }

func newHandlers() (*Handlers, *fakeReverter, *collector) {
	rest := &fakeReverter{failFor: map[string]bool{}}
	sink := &collector{}
	h := NewHandlers(context.Background(), sink, rest, forensics.NewSnapshotStore(), state.NewWindowCounter(state.SystemClock), "self")
	h.perms = func(string, string) (int64, error) { return discordgo.PermissionMentionEveryone, nil }
	return h, rest, sink
}

func TestChannelCreateRevertDeletesChannel(t *testing.T) {
	h, rest, _ := newHandlers()
	ev := h.channelCreate(&discordgo.Channel{ID: "c1", GuildID: "g1", Name: "spam"})

	assert.Equal(t, models.ActionChannelCreate, ev.Action)
	assert.Equal(t, "c1", ev.TargetID)
	require.NotNil(t, ev.Revert)
	require.NoError(t, ev.Revert(context.Background(), nil))
	assert.Equal(t, []string{"channel:c1"}, rest.calls)
}

func TestChannelDeleteHasNoRevert(t *testing.T) {
	h, _, _ := newHandlers()
	ev := h.channelDelete(&discordgo.Channel{ID: "c1", GuildID: "g1"})
	assert.Equal(t, models.ActionChannelDelete, ev.Action)
	assert.Nil(t, ev.Revert)
}

func TestChannelUpdateOnlyOnOverwriteChange(t *testing.T) {
	h, rest, _ := newHandlers()
	before := &discordgo.Channel{ID: "c1", GuildID: "g1", PermissionOverwrites: []*discordgo.PermissionOverwrite{{ID: "r1", Allow: 1}}}
	renamed := &discordgo.Channel{ID: "c1", GuildID: "g1", Name: "new", PermissionOverwrites: []*discordgo.PermissionOverwrite{{ID: "r1", Allow: 1}}}
	opened := &discordgo.Channel{ID: "c1", GuildID: "g1", PermissionOverwrites: []*discordgo.PermissionOverwrite{{ID: "r1", Allow: 8}}}

	assert.Empty(t, h.channelUpdate(before, renamed).GuildID)
	assert.Empty(t, h.channelUpdate(nil, opened).GuildID)

	ev := h.channelUpdate(before, opened)
	assert.Equal(t, models.ActionChannelPermUpdate, ev.Action)
	require.NoError(t, ev.Revert(context.Background(), nil))
	assert.Equal(t, []string{"overwrites:c1"}, rest.calls)
}

func TestRoleUpdateNeedsKnownPermissionChange(t *testing.T) {
	h, rest, _ := newHandlers()

	// unseen role: nothing to compare against
	assert.Empty(t, h.roleUpdate("g1", &discordgo.Role{ID: "r1", Permissions: 8}).GuildID)
	// same bits: a rename or colour change
	assert.Empty(t, h.roleUpdate("g1", &discordgo.Role{ID: "r1", Permissions: 8}).GuildID)

	ev := h.roleUpdate("g1", &discordgo.Role{ID: "r1", Permissions: 8 | 4})
	assert.Equal(t, models.ActionRolePermUpdate, ev.Action)
	require.NoError(t, ev.Revert(context.Background(), nil))
	assert.Equal(t, []string{"perms:r1"}, rest.calls)
}

func TestMemberAddOnlyBots(t *testing.T) {
	h, rest, _ := newHandlers()
	assert.Empty(t, h.memberAdd(&discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}}).GuildID)

	ev := h.memberAdd(&discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "b1", Bot: true}})
	assert.Equal(t, models.ActionBotAdd, ev.Action)
	require.NoError(t, ev.Revert(context.Background(), nil))
	assert.Equal(t, []string{"kick:b1"}, rest.calls)
}

func TestMemberUpdateRevertsAddedRoles(t *testing.T) {
	h, rest, _ := newHandlers()
	rest.failFor["unrole:u1:admin"] = true
	before := &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}, Roles: []string{"a"}}

	assert.Empty(t, h.memberUpdate(before, &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}}).GuildID)

	after := &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}, Roles: []string{"a", "admin", "mod"}}
	ev := h.memberUpdate(before, after)
	assert.Equal(t, models.ActionMemberRoleUpdate, ev.Action)

	err := ev.Revert(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin")
	assert.Equal(t, []string{"unrole:u1:admin", "unrole:u1:mod"}, rest.calls)
}

func TestWebhookRevertUsesAuditTarget(t *testing.T) {
	h, rest, _ := newHandlers()
	ev := h.webhooksUpdate("g1", "c1")
	assert.Empty(t, ev.TargetID)

	require.Error(t, ev.Revert(context.Background(), &models.Attribution{}))
	require.NoError(t, ev.Revert(context.Background(), &models.Attribution{TargetID: "w9"}))
	assert.Equal(t, []string{"webhook:w9"}, rest.calls)
}

func TestAssetsUpdateDiffsAgainstSnapshot(t *testing.T) {
	h, rest, _ := newHandlers()
	h.seedGuild(&discordgo.Guild{ID: "g1", Emojis: []*discordgo.Emoji{{ID: "e1", Name: "old"}}})

	events := h.assetsUpdate("g1", forensics.AssetEmoji, []forensics.AssetRef{{ID: "e2", Name: "new"}})
	require.Len(t, events, 2)
	assert.Equal(t, models.ActionEmojiCreate, events[0].Action)
	assert.Equal(t, "e2", events[0].TargetID)
	assert.Equal(t, models.ActionEmojiDelete, events[1].Action)
	assert.Nil(t, events[1].Revert)

	require.NoError(t, events[0].Revert(context.Background(), nil))
	assert.Equal(t, []string{"emoji:e2"}, rest.calls)
}

func TestStickerUpdateUsesStickerActions(t *testing.T) {
	h, rest, _ := newHandlers()
	h.seedGuild(&discordgo.Guild{ID: "g1"})

	events := h.assetsUpdate("g1", forensics.AssetSticker, []forensics.AssetRef{{ID: "s1"}})
	require.Len(t, events, 1)
	assert.Equal(t, models.ActionStickerCreate, events[0].Action)
	require.NoError(t, events[0].Revert(context.Background(), nil))
	assert.Equal(t, []string{"sticker:s1"}, rest.calls)
}

func TestMessageMassMention(t *testing.T) {
	h, rest, _ := newHandlers()
	author := &discordgo.User{ID: "u1"}
	sent := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	plain := &discordgo.Message{ID: "m0", GuildID: "g1", ChannelID: "c1", Author: author, Content: "hello"}
	assert.Empty(t, h.message(plain).GuildID)

	bot := &discordgo.Message{ID: "m1", GuildID: "g1", ChannelID: "c1", Author: &discordgo.User{ID: "b", Bot: true}, Content: "@everyone"}
	assert.Empty(t, h.message(bot).GuildID)

	roles := &discordgo.Message{ID: "m2", GuildID: "g1", ChannelID: "c1", Author: author, MentionRoles: []string{"1", "2", "3", "4", "5", "6"}, Timestamp: sent}
	ev := h.message(roles)
	assert.Equal(t, models.ActionMentionSpam, ev.Action)
	assert.Equal(t, "mass roles", ev.Target)
	assert.Equal(t, "m2", ev.CorrelationID)
	require.NotNil(t, ev.Author)
	assert.Equal(t, "u1", ev.Author.ID)
	assert.Equal(t, sent, ev.ReceivedAt)

	require.NoError(t, ev.Revert(context.Background(), nil))
	assert.Equal(t, []string{"message:m2"}, rest.calls)
}

func TestMessageRequiresMentionPermission(t *testing.T) {
	h, _, _ := newHandlers()
	h.perms = func(string, string) (int64, error) { return discordgo.PermissionSendMessages, nil }

	msg := &discordgo.Message{ID: "m1", GuildID: "g1", ChannelID: "c1", Author: &discordgo.User{ID: "u1"}, Content: "@here"}
	assert.Empty(t, h.message(msg).GuildID)
}

func TestEmitSkipsEmptyAndStampsTime(t *testing.T) {
	h, _, sink := newHandlers()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return at }

	h.emit(none, h.channelDelete(&discordgo.Channel{ID: "c1", GuildID: "g1"}))

	require.Len(t, sink.events, 1)
	assert.Equal(t, at, sink.events[0].ReceivedAt)
}

func TestMemberRemoveIgnoresSelf(t *testing.T) {
	h, _, _ := newHandlers()
	assert.Empty(t, h.memberRemove(&discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "self"}}).GuildID)

	ev := h.memberRemove(&discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}})
	assert.Equal(t, models.ActionKickAdd, ev.Action)
	assert.Nil(t, ev.Revert)
}
