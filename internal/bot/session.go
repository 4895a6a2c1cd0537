package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"go-antinuke-guard/internal/logging"
)

// Intents are the gateway intents the engine needs: guild structure,
// members, bans, emojis and stickers, webhooks and message content for
// mention detection.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildBans |
	discordgo.IntentsGuildEmojis |
	discordgo.IntentsGuildWebhooks |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent

// Session owns the discordgo connection.
type Session struct {
	discord  *discordgo.Session
	SelfID   string
	SelfName string
}

// New creates the session and resolves the bot's own user id, which also
// validates the token before anything else is wired.
func New(ctx context.Context, token string) (*Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	dg.Identify.Intents = Intents
	dg.StateEnabled = true
	dg.SyncEvents = false
	dg.State.TrackMembers = true
	dg.State.TrackRoles = true
	dg.State.TrackChannels = true

	me, err := dg.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bot user: %w", err)
	}

	return &Session{discord: dg, SelfID: me.ID, SelfName: me.Username}, nil
}

// Discord returns the underlying discordgo session.
func (s *Session) Discord() *discordgo.Session {
	return s.discord
}

// Serve holds the gateway connection open until ctx ends. It satisfies
// suture.Service so a failed Open is retried with backoff.
func (s *Session) Serve(ctx context.Context) error {
	if err := s.discord.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	logging.Info().Str("self", s.SelfID).Msg("gateway connected")

	<-ctx.Done()

	if err := s.discord.Close(); err != nil {
		logging.Warn().Err(err).Msg("gateway close failed")
	}
	return ctx.Err()
}

func (s *Session) String() string { return "discord-gateway" }

// RegisterCommands replaces the global slash commands with cmds.
func (s *Session) RegisterCommands(ctx context.Context, cmds []*discordgo.ApplicationCommand) error {
	registered, err := s.discord.ApplicationCommandBulkOverwrite(s.SelfID, "", cmds, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	for _, c := range registered {
		logging.Info().Str("command", c.Name).Msg("registered command")
	}
	return nil
}
