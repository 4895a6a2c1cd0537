package bootstrap

import (
	"context"
	"errors"
	"time"

	"go-antinuke-guard/internal/bot"
	"go-antinuke-guard/internal/commands"
	"go-antinuke-guard/internal/config"
	"go-antinuke-guard/internal/correlator"
	"go-antinuke-guard/internal/database"
	"go-antinuke-guard/internal/decision"
	"go-antinuke-guard/internal/dispatcher"
	"go-antinuke-guard/internal/forensics"
	"go-antinuke-guard/internal/logging"
	"go-antinuke-guard/internal/metrics"
	"go-antinuke-guard/internal/models"
	"go-antinuke-guard/internal/notifier"
	"go-antinuke-guard/internal/state"
	"go-antinuke-guard/internal/watchdog"
)

// guildIdle is how long a guild's limiter or audit breaker may sit unused
// before it is dropped.
const guildIdle = 10 * time.Minute

// Wire builds every component. The store is closed again on failure.
func Wire(ctx context.Context, cfg *config.Config) (c *Components, err error) {
	if cfg.Bot.Token == "" {
		return nil, errors.New("bot token is required (bot.token or DISCORD_TOKEN)")
	}

	store, err := database.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			store.Close()
		}
	}()
	store.SetPolicyTTL(cfg.Database.PolicyTTL)

	sess, err := bot.New(ctx, cfg.Bot.Token)
	if err != nil {
		return nil, err
	}
	dg := sess.Discord()

	eng := cfg.Engine
	pacer := dispatcher.NewGuildPacer(eng.ActionsPerSecond, eng.ActionBurst)
	rest := dispatcher.NewRESTExecutor(dg, pacer)

	audit := forensics.NewBreakingAuditLog(forensics.NewDiscordAuditLog(dg), forensics.DefaultBreakerSettings())
	resolver := forensics.NewAttributionResolver(audit, forensics.ResolverConfig{
		Attempts:       eng.AttributionAttempts,
		Delay:          eng.AttributionDelay,
		MaxAge:         eng.AttributionMaxAge,
		AttemptTimeout: eng.AttributionTimeout,
		FetchLimit:     eng.AuditFetchLimit,
	}, state.SystemClock)

	counter := state.NewWindowCounter(state.SystemClock)
	dedupe := state.NewDeduplicator(eng.DedupeTTL, state.SystemClock)
	protection := decision.NewProtectionResolver(sess.SelfID, rest)
	evaluator := decision.NewPolicyEvaluator(store, protection, counter)
	punisher := dispatcher.NewPunishmentExecutor(rest, store, eng.TimeoutDuration, eng.ResponseTimeout)
	health := metrics.NewPipelineHealth()

	pipeline := correlator.NewPipeline(correlator.Deps{
		Attribution: resolver,
		Dedupe:      dedupe,
		Evaluator:   evaluator,
		Policies:    store,
		Enforcer:    punisher,
		Sink:        notifier.Fanout{notifier.NewDiscordSink(dg), notifier.NewLedgerSink(store)},
		Health:      health,
		TimeoutFor:  eng.TimeoutDuration,
	})

	snaps := forensics.NewSnapshotStore()
	bot.NewHandlers(ctx, pipeline, rest, snaps, counter, sess.SelfID).Register(sess)

	admin := commands.NewDiscordGuildAdmin(dg, pacer, sess.SelfID, sess.SelfName)
	cmds := commands.NewHandler(store, punisher, rest, admin)
	dg.AddHandler(cmds.HandleInteraction)

	c = &Components{
		Store:    store,
		Session:  sess,
		Pacer:    pacer,
		Audit:    audit,
		Counter:  counter,
		Dedupe:   dedupe,
		Pipeline: pipeline,
		Commands: cmds,
		Health:   health,
		Watchdog: watchdog.NewWatchdog(eng.SweepInterval),
	}
	if cfg.Metrics.Enabled {
		c.Metrics = metrics.NewServer(cfg.Metrics.Listen, health)
	}
	registerHousekeeping(c, cfg.Database.IncidentRetention)

	logging.Info().Str("self", sess.SelfID).Bool("metrics", cfg.Metrics.Enabled).Msg("component wiring complete")
	return c, nil
}

func registerHousekeeping(c *Components, retention time.Duration) {
	w := c.Watchdog
	w.Register("windows", func(context.Context) (int, error) {
		n := c.Counter.Sweep(models.MaxWindow)
		metrics.TrackedWindows.Set(float64(c.Counter.Len()))
		return n, nil
	})
	w.Register("dedupe", func(context.Context) (int, error) {
		return c.Dedupe.Sweep(), nil
	})
	w.Register("pacers", func(context.Context) (int, error) {
		return c.Pacer.Sweep(guildIdle), nil
	})
	w.Register("breakers", func(context.Context) (int, error) {
		return c.Audit.Sweep(guildIdle), nil
	})
	w.Register("database", func(ctx context.Context) (int, error) {
		return 0, c.Store.Ping(ctx)
	})
	if retention > 0 {
		w.Register("incidents", func(ctx context.Context) (int, error) {
			n, err := c.Store.PruneIncidents(ctx, time.Now().Add(-retention))
			return int(n), err
		})
	}
}
