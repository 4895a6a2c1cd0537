// Package bootstrap builds the engine from configuration and runs it under a
// supervisor.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"

	"go-antinuke-guard/internal/bot"
	"go-antinuke-guard/internal/commands"
	"go-antinuke-guard/internal/config"
	"go-antinuke-guard/internal/correlator"
	"go-antinuke-guard/internal/database"
	"go-antinuke-guard/internal/dispatcher"
	"go-antinuke-guard/internal/forensics"
	"go-antinuke-guard/internal/logging"
	"go-antinuke-guard/internal/metrics"
	"go-antinuke-guard/internal/state"
	"go-antinuke-guard/internal/watchdog"
)

type Bootstrap struct {
	Config     *config.Config
	Components *Components
}

type Components struct {
	Store    *database.SQLiteStore
	Session  *bot.Session
	Pacer    *dispatcher.GuildPacer
	Audit    *forensics.BreakingAuditLog
	Counter  *state.WindowCounter
	Dedupe   *state.Deduplicator
	Pipeline *correlator.Pipeline
	Commands *commands.Handler
	Health   *metrics.PipelineHealth
	Metrics  *metrics.Server
	Watchdog *watchdog.Watchdog
}

func New(cfg *config.Config) *Bootstrap {
	return &Bootstrap{Config: cfg}
}

// Initialize configures logging and wires every component. ctx bounds
// startup I/O and is also the lifetime of event processing.
func (b *Bootstrap) Initialize(ctx context.Context) error {
	logging.Init(logging.Config{
		Level:  b.Config.Logging.Level,
		Format: b.Config.Logging.Format,
		Caller: b.Config.Logging.Caller,
	})

	c, err := Wire(ctx, b.Config)
	if err != nil {
		return fmt.Errorf("component wiring failed: %w", err)
	}
	b.Components = c
	logging.Info().Msg("bootstrap complete")
	return nil
}

// Run registers slash commands when configured and supervises the long
// running services until ctx ends.
func (b *Bootstrap) Run(ctx context.Context) error {
	c := b.Components
	if b.Config.Bot.RegisterCommands {
		if err := c.Session.RegisterCommands(ctx, commands.Definitions()); err != nil {
			// the gateway still protects guilds without fresh commands
			logging.Error().Err(err).Msg("command registration failed")
		}
	}

	sup := suture.New("antinuke", suture.Spec{
		EventHook: func(e suture.Event) {
			logging.Warn().Fields(e.Map()).Msg(e.String())
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	})
	sup.Add(c.Session)
	sup.Add(c.Watchdog)
	if c.Metrics != nil {
		sup.Add(c.Metrics)
	}

	logging.Info().Str("self", c.Session.SelfID).Msg("all services started")
	err := sup.Serve(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
