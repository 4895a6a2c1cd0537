package models

import "fmt"

// ActionType identifies a protected mutation kind. The string values are the
// keys stored in the limits table and shown in log messages.
type ActionType string

const (
	ActionChannelCreate     ActionType = "channelCreate"
	ActionChannelDelete     ActionType = "channelDelete"
	ActionChannelPermUpdate ActionType = "channelPermUpdate"
	ActionRoleCreate        ActionType = "roleCreate"
	ActionRoleDelete        ActionType = "roleDelete"
	ActionRolePermUpdate    ActionType = "rolePermUpdate"
	ActionBanAdd            ActionType = "banAdd"
	ActionKickAdd           ActionType = "kickAdd"
	ActionBotAdd            ActionType = "botAdd"
	ActionWebhookCreate     ActionType = "webhookCreate"
	ActionMemberRoleUpdate  ActionType = "memberRoleUpdate"
	ActionEmojiCreate       ActionType = "emojiCreate"
	ActionEmojiDelete       ActionType = "emojiDelete"
	ActionStickerCreate     ActionType = "stickerCreate"
	ActionStickerDelete     ActionType = "stickerDelete"
	ActionMentionSpam       ActionType = "mentionSpam"
)

// Audit log action codes as documented by the platform.
const (
	AuditChannelCreate    = 10
	AuditChannelUpdate    = 11
	AuditChannelDelete    = 12
	AuditMemberKick       = 20
	AuditMemberBanAdd     = 22
	AuditMemberRoleUpdate = 25
	AuditBotAdd           = 28
	AuditRoleCreate       = 30
	AuditRoleUpdate       = 31
	AuditRoleDelete       = 32
	AuditWebhookCreate    = 50
	AuditEmojiCreate      = 60
	AuditEmojiDelete      = 62
	AuditStickerCreate    = 90
	AuditStickerDelete    = 92
)

type actionInfo struct {
	auditCode int
	label     string
	emoji     string
}

var actionTable = map[ActionType]actionInfo{
	ActionChannelCreate:     {AuditChannelCreate, "Channel Create", "✨"},
	ActionChannelDelete:     {AuditChannelDelete, "Channel Delete", "🗑️"},
	ActionChannelPermUpdate: {AuditChannelUpdate, "Channel Permission Update", "📝"},
	ActionRoleCreate:        {AuditRoleCreate, "Role Create", "✨"},
	ActionRoleDelete:        {AuditRoleDelete, "Role Delete", "🗑️"},
	ActionRolePermUpdate:    {AuditRoleUpdate, "Role Permission Update", "📝"},
	ActionBanAdd:            {AuditMemberBanAdd, "Member Ban", "🔨"},
	ActionKickAdd:           {AuditMemberKick, "Member Kick", "👢"},
	ActionBotAdd:            {AuditBotAdd, "Bot Add", "🤖"},
	ActionWebhookCreate:     {AuditWebhookCreate, "Webhook Create", "🔗"},
	ActionMemberRoleUpdate:  {AuditMemberRoleUpdate, "Member Role Grant", "👑"},
	ActionEmojiCreate:       {AuditEmojiCreate, "Emoji Create", "😀"},
	ActionEmojiDelete:       {AuditEmojiDelete, "Emoji Delete", "🗑️"},
	ActionStickerCreate:     {AuditStickerCreate, "Sticker Create", "🎨"},
	ActionStickerDelete:     {AuditStickerDelete, "Sticker Delete", "🗑️"},
	ActionMentionSpam:       {0, "Mass Mention", "📢"},
}

// AllActions lists every action type in a stable display order.
var AllActions = []ActionType{
	ActionChannelCreate,
	ActionChannelDelete,
	ActionChannelPermUpdate,
	ActionRoleCreate,
	ActionRoleDelete,
	ActionRolePermUpdate,
	ActionBanAdd,
	ActionKickAdd,
	ActionBotAdd,
	ActionWebhookCreate,
	ActionMemberRoleUpdate,
	ActionEmojiCreate,
	ActionEmojiDelete,
	ActionStickerCreate,
	ActionStickerDelete,
	ActionMentionSpam,
}

// ParseActionType validates a user supplied action name.
func ParseActionType(s string) (ActionType, error) {
	a := ActionType(s)
	if _, ok := actionTable[a]; !ok {
		return "", fmt.Errorf("unknown action type %q", s)
	}
	return a, nil
}

// AuditCode returns the audit log action code used to attribute the action.
// Zero means the event carries its own author and needs no lookup.
func (a ActionType) AuditCode() int {
	return actionTable[a].auditCode
}

func (a ActionType) Label() string {
	if info, ok := actionTable[a]; ok {
		return info.label
	}
	return string(a)
}

func (a ActionType) Emoji() string {
	if info, ok := actionTable[a]; ok {
		return info.emoji
	}
	return "⚠️"
}
