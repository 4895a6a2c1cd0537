package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"go-antinuke-guard/internal/logging"
	"go-antinuke-guard/internal/metrics"
	"go-antinuke-guard/internal/models"
)

// Sink receives notification records. Delivery is best effort: a failing
// sink logs and returns, it never fails the pipeline.
type Sink interface {
	Send(ctx context.Context, channelID string, rec models.Record)
}

// NewRecord stamps a record with a fresh incident id and the current time.
func NewRecord(kind models.LogKind, guildID string) models.Record {
	return models.Record{
		IncidentID: uuid.NewString(),
		Kind:       kind,
		GuildID:    guildID,
		Timestamp:  time.Now().UTC(),
	}
}

var kindColors = map[models.LogKind]int{
	models.LogDetected:    0xFFA500,
	models.LogPunished:    0xED4245,
	models.LogReverted:    0x57F287,
	models.LogWhitelisted: 0x5865F2,
	models.LogError:       0x992D22,
}

func actorLine(a *models.Actor) string {
	if a == nil {
		return "unknown"
	}
	return fmt.Sprintf("%s (%s)", a.Display(), a.ID)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// BuildEmbed renders a record as a log channel embed.
func BuildEmbed(rec models.Record) *discordgo.MessageEmbed {
	var title string
	var desc strings.Builder

	switch rec.Kind {
	case models.LogDetected:
		title = rec.Action.Emoji() + " THREAT DETECTED"
		fmt.Fprintf(&desc, "**User:** %s\n**Action:** %s\n**Target:** %s\n**Count:** %d/%d",
			actorLine(rec.Actor), rec.Action.Label(), orNA(rec.Target), rec.Count, rec.Limit)
	case models.LogPunished:
		title = fmt.Sprintf("%s %s EXECUTED", rec.Punishment.Emoji(), strings.ToUpper(rec.Punishment.String()))
		fmt.Fprintf(&desc, "**User:** %s\n**Reason:** %s", actorLine(rec.Actor), rec.Reason)
		if rec.Punishment == models.PunishQuarantine {
			fmt.Fprintf(&desc, "\n**Roles Saved:** %d", rec.RolesSaved)
		}
	case models.LogReverted:
		title = "↩️ ACTION REVERTED"
		fmt.Fprintf(&desc, "**User:** %s\n**Reverted:** %s", actorLine(rec.Actor), rec.Action.Label())
	case models.LogWhitelisted:
		title = "✅ WHITELISTED ACTION"
		fmt.Fprintf(&desc, "**User:** %s\n**Action:** %s\n**Reason:** %s", actorLine(rec.Actor), rec.Action.Label(), orNA(rec.Reason))
	case models.LogError:
		title = "❌ PROTECTION ERROR"
		fmt.Fprintf(&desc, "**Error:** %s\n**Action:** %s", rec.Err, orNA(rec.Reason))
	default:
		title = "ℹ️ " + string(rec.Kind)
	}

	return &discordgo.MessageEmbed{
		Title:       title,
		Description: desc.String(),
		Color:       kindColors[rec.Kind],
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Incident " + rec.IncidentID,
		},
		Timestamp: rec.Timestamp.Format(time.RFC3339),
	}
}

// DiscordSink posts records to the guild log channel.
type DiscordSink struct {
	session *discordgo.Session
}

func NewDiscordSink(session *discordgo.Session) *DiscordSink {
	return &DiscordSink{session: session}
}

func (d *DiscordSink) Send(ctx context.Context, channelID string, rec models.Record) {
	if channelID == "" {
		return
	}
	if _, err := d.session.ChannelMessageSendEmbed(channelID, BuildEmbed(rec), discordgo.WithContext(ctx)); err != nil {
		metrics.NotificationFailures.Inc()
		logging.Warn().Err(err).Str("guild", rec.GuildID).Str("channel", channelID).Str("kind", string(rec.Kind)).Msg("log channel delivery failed")
	}
}
