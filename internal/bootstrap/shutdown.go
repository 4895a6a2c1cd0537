package bootstrap

import (
	"time"

	"go-antinuke-guard/internal/logging"
)

// shutdownTimeout bounds how long each supervised service gets to stop.
const shutdownTimeout = 10 * time.Second

// Shutdown releases what the supervisor does not own. Call it after Run
// returns.
func Shutdown(c *Components) error {
	if c == nil {
		return nil
	}
	logging.Info().Msg("starting graceful shutdown")

	if err := c.Store.Close(); err != nil {
		logging.Error().Err(err).Msg("database close failed")
		return err
	}

	snap := c.Health.Snapshot()
	logging.Info().Uint64("processed", snap.Processed).Uint64("punished", snap.Punished).Msg("graceful shutdown complete")
	return nil
}
