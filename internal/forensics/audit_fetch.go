package forensics

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// AuditEntry is the subset of an audit log entry the resolver needs.
type AuditEntry struct {
	ID         string
	ActionCode int
	UserID     string
	UserTag    string
	UserBot    bool
	TargetID   string
	Reason     string
	CreatedAt  time.Time
}

// AuditLog returns the most recent entries for an audit action code, newest
// first.
type AuditLog interface {
	FetchRecent(ctx context.Context, guildID string, actionCode, limit int) ([]AuditEntry, error)
}

// DiscordAuditLog reads audit entries through a discordgo session.
type DiscordAuditLog struct {
	session *discordgo.Session
}

func NewDiscordAuditLog(session *discordgo.Session) *DiscordAuditLog {
	return &DiscordAuditLog{session: session}
}

func (d *DiscordAuditLog) FetchRecent(ctx context.Context, guildID string, actionCode, limit int) ([]AuditEntry, error) {
	log, err := d.session.GuildAuditLog(guildID, "", "", actionCode, limit, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch audit log for guild %s: %w", guildID, err)
	}

	users := make(map[string]*discordgo.User, len(log.Users))
	for _, u := range log.Users {
		users[u.ID] = u
	}

	entries := make([]AuditEntry, 0, len(log.AuditLogEntries))
	for _, e := range log.AuditLogEntries {
		created, err := discordgo.SnowflakeTimestamp(e.ID)
		if err != nil {
			continue
		}
		entry := AuditEntry{
			ID:        e.ID,
			UserID:    e.UserID,
			TargetID:  e.TargetID,
			Reason:    e.Reason,
			CreatedAt: created,
		}
		if e.ActionType != nil {
			entry.ActionCode = int(*e.ActionType)
		}
		if u, ok := users[e.UserID]; ok {
			entry.UserTag = u.String()
			entry.UserBot = u.Bot
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
