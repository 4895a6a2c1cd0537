package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"go-antinuke-guard/internal/database"
	"go-antinuke-guard/internal/dispatcher"
	"go-antinuke-guard/internal/logging"
)

const (
	colorSuccess = 0x57F287
	colorError   = 0xED4245
	colorWarn    = 0xFEE75C
	colorInfo    = 0x5865F2
)

// commandTimeout bounds one command, including the platform calls setup and
// quarantine make.
const commandTimeout = 2 * time.Minute

// Quarantiner applies and lifts manual quarantines.
type Quarantiner interface {
	Quarantine(ctx context.Context, guildID, userID, quarantineRoleID, reason string, manual bool) (dispatcher.Outcome, error)
	Unquarantine(ctx context.Context, guildID, userID, quarantineRoleID string) (dispatcher.Outcome, error)
}

// OwnerLookup resolves the live guild owner.
type OwnerLookup interface {
	GuildOwner(ctx context.Context, guildID string) (string, error)
}

// Invocation is a parsed /antinuke call.
type Invocation struct {
	GuildID string
	UserID  string
	Sub     string
	Options map[string]*discordgo.ApplicationCommandInteractionDataOption
}

func (inv Invocation) str(name string) string {
	if o, ok := inv.Options[name]; ok {
		if s, ok := o.Value.(string); ok {
			return s
		}
	}
	return ""
}

func (inv Invocation) integer(name string, fallback int64) int64 {
	if o, ok := inv.Options[name]; ok {
		return o.IntValue()
	}
	return fallback
}

func (inv Invocation) boolean(name string) bool {
	if o, ok := inv.Options[name]; ok {
		return o.BoolValue()
	}
	return false
}

// Reply is the response to an invocation.
type Reply struct {
	Embed     *discordgo.MessageEmbed
	Ephemeral bool
}

func reply(color int, title, desc string) Reply {
	return Reply{Embed: &discordgo.MessageEmbed{Title: title, Description: desc, Color: color}}
}

func denied(desc string) Reply {
	r := reply(colorError, "Access Denied", desc)
	r.Ephemeral = true
	return r
}

func failure(desc string) Reply {
	r := reply(colorError, "❌ Error", desc)
	r.Ephemeral = true
	return r
}

// Handler serves the /antinuke command.
type Handler struct {
	store       database.Store
	quarantines Quarantiner
	owners      OwnerLookup
	guilds      GuildAdmin
	now         func() time.Time
}

func NewHandler(store database.Store, quarantines Quarantiner, owners OwnerLookup, guilds GuildAdmin) *Handler {
	return &Handler{
		store:       store,
		quarantines: quarantines,
		owners:      owners,
		guilds:      guilds,
		now:         time.Now,
	}
}

// slow subcommands make platform calls and are acknowledged before running.
var slow = map[string]bool{"setup": true, "quarantine": true, "unquarantine": true}

// HandleInteraction is registered as a discordgo handler.
func (h *Handler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != "antinuke" || len(data.Options) == 0 || i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		return
	}

	sub := data.Options[0]
	inv := Invocation{
		GuildID: i.GuildID,
		UserID:  i.Member.User.ID,
		Sub:     sub.Name,
		Options: make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(sub.Options)),
	}
	for _, o := range sub.Options {
		inv.Options[o.Name] = o
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if slow[inv.Sub] {
		if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		}, discordgo.WithContext(ctx)); err != nil {
			logging.Warn().Err(err).Str("guild", inv.GuildID).Str("command", inv.Sub).Msg("defer failed")
			return
		}
		r := h.Run(ctx, inv)
		embeds := []*discordgo.MessageEmbed{r.Embed}
		if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}, discordgo.WithContext(ctx)); err != nil {
			logging.Warn().Err(err).Str("guild", inv.GuildID).Str("command", inv.Sub).Msg("response edit failed")
		}
		return
	}

	r := h.Run(ctx, inv)
	resp := &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{r.Embed}}
	if r.Ephemeral {
		resp.Flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: resp,
	}, discordgo.WithContext(ctx)); err != nil {
		logging.Warn().Err(err).Str("guild", inv.GuildID).Str("command", inv.Sub).Msg("respond failed")
	}
}

// Run executes an invocation. Failures become error replies; nothing is
// returned to the caller as an error.
func (h *Handler) Run(ctx context.Context, inv Invocation) Reply {
	log := logging.With("commands")

	if inv.Sub == "setup" {
		r, err := h.setup(ctx, inv)
		if err != nil {
			log.Error().Err(err).Str("guild", inv.GuildID).Msg("setup failed")
			return failure(err.Error())
		}
		return r
	}

	policy, err := h.store.LoadPolicy(ctx, inv.GuildID)
	if err != nil {
		log.Error().Err(err).Str("guild", inv.GuildID).Msg("policy load failed")
		return failure("could not load settings")
	}
	if policy.Config == nil {
		return denied("Run `/antinuke setup` first!")
	}
	if r, ok := h.authorize(ctx, inv, policy, inv.Sub == "extraowner"); !ok {
		return r
	}

	var r Reply
	switch inv.Sub {
	case "toggle":
		r, err = h.toggle(ctx, inv)
	case "limit":
		r, err = h.limit(ctx, inv)
	case "whitelist":
		r, err = h.whitelist(ctx, inv)
	case "extraowner":
		r, err = h.extraOwner(ctx, inv)
	case "settings":
		r, err = h.settings(ctx, inv, policy)
	case "quarantine":
		r, err = h.quarantine(ctx, inv, policy)
	case "unquarantine":
		r, err = h.unquarantine(ctx, inv, policy)
	case "incidents":
		r, err = h.incidents(ctx, inv)
	default:
		err = fmt.Errorf("unknown subcommand: %s", inv.Sub)
	}

	if err != nil {
		var bad *invalidInput
		if errors.As(err, &bad) {
			warn := reply(colorWarn, "", bad.msg)
			warn.Ephemeral = true
			return warn
		}
		log.Error().Err(err).Str("guild", inv.GuildID).Str("user", inv.UserID).Str("command", inv.Sub).Msg("command failed")
		return failure(err.Error())
	}
	log.Info().Str("guild", inv.GuildID).Str("user", inv.UserID).Str("command", inv.Sub).Msg("command executed")
	return r
}

// invalidInput is a user error shown as a warning rather than logged.
type invalidInput struct{ msg string }

func (e *invalidInput) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &invalidInput{msg: fmt.Sprintf(format, args...)}
}
