package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-antinuke-guard/internal/config"
	"go-antinuke-guard/internal/database"
	"go-antinuke-guard/internal/dispatcher"
	"go-antinuke-guard/internal/forensics"
	"go-antinuke-guard/internal/metrics"
	"go-antinuke-guard/internal/models"
	"go-antinuke-guard/internal/state"
	"go-antinuke-guard/internal/watchdog"
)

func TestWireRequiresToken(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "antinuke.db")

	_, err := Wire(context.Background(), cfg)
	assert.ErrorContains(t, err, "token")
}

func TestHousekeepingTasks(t *testing.T) {
	ctx := context.Background()
	store, err := database.Open(ctx, filepath.Join(t.TempDir(), "antinuke.db"))
	require.NoError(t, err)

	clock := state.NewManualClock(time.Now())
	c := &Components{
		Store:    store,
		Pacer:    dispatcher.NewGuildPacer(10, 5),
		Audit:    forensics.NewBreakingAuditLog(nil, forensics.DefaultBreakerSettings()),
		Counter:  state.NewWindowCounter(clock),
		Dedupe:   state.NewDeduplicator(time.Second, clock),
		Health:   metrics.NewPipelineHealth(),
		Watchdog: watchdog.NewWatchdog(time.Minute),
	}
	registerHousekeeping(c, 24*time.Hour)

	c.Counter.Record(state.ActorKey{GuildID: "g1", ActorID: "mallory", Action: models.ActionChannelCreate}, time.Minute)
	clock.Advance(2 * models.MaxWindow)

	c.Watchdog.RunOnce(ctx)
	assert.Equal(t, map[string]bool{
		"windows":   true,
		"dedupe":    true,
		"pacers":    true,
		"breakers":  true,
		"database":  true,
		"incidents": true,
	}, c.Watchdog.GetStatus())
	assert.Zero(t, c.Counter.Len())

	require.NoError(t, Shutdown(c))
	assert.NoError(t, Shutdown(nil))
}
