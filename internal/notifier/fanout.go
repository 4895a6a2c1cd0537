package notifier

import (
	"context"

	"go-antinuke-guard/internal/logging"
	"go-antinuke-guard/internal/models"
)

// IncidentRecorder persists records for the incidents command.
type IncidentRecorder interface {
	RecordIncident(ctx context.Context, rec models.Record) error
}

// LedgerSink writes every record to the incident history.
type LedgerSink struct {
	store IncidentRecorder
}

func NewLedgerSink(store IncidentRecorder) *LedgerSink {
	return &LedgerSink{store: store}
}

func (l *LedgerSink) Send(ctx context.Context, _ string, rec models.Record) {
	if err := l.store.RecordIncident(ctx, rec); err != nil {
		logging.Warn().Err(err).Str("guild", rec.GuildID).Str("incident", rec.IncidentID).Msg("incident not persisted")
	}
}

// Fanout delivers each record to every sink in order.
type Fanout []Sink

func (f Fanout) Send(ctx context.Context, channelID string, rec models.Record) {
	for _, s := range f {
		s.Send(ctx, channelID, rec)
	}
}
