package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-antinuke-guard/internal/models"
)

func TestNewRecordAssignsIncidentID(t *testing.T) {
	a := NewRecord(models.LogDetected, "g1")
	b := NewRecord(models.LogDetected, "g1")
	_, err := uuid.Parse(a.IncidentID)
	require.NoError(t, err)
	assert.NotEqual(t, a.IncidentID, b.IncidentID)
	assert.False(t, a.Timestamp.IsZero())
}

func TestBuildEmbedDetected(t *testing.T) {
	rec := NewRecord(models.LogDetected, "g1")
	rec.Actor = &models.Actor{ID: "42", Tag: "mallory"}
	rec.Action = models.ActionChannelCreate
	rec.Target = "spam-1"
	rec.Count, rec.Limit = 2, 3

	e := BuildEmbed(rec)
	assert.Contains(t, e.Title, "THREAT DETECTED")
	assert.Contains(t, e.Description, "mallory (42)")
	assert.Contains(t, e.Description, "**Count:** 2/3")
	assert.Contains(t, e.Description, "spam-1")
	assert.Equal(t, kindColors[models.LogDetected], e.Color)
	assert.Contains(t, e.Footer.Text, rec.IncidentID)
}

func TestBuildEmbedPunishedQuarantine(t *testing.T) {
	rec := NewRecord(models.LogPunished, "g1")
	rec.Actor = &models.Actor{ID: "42"}
	rec.Punishment = models.PunishQuarantine
	rec.Reason = "channelCreate spam detected"
	rec.RolesSaved = 4

	e := BuildEmbed(rec)
	assert.Equal(t, "🚨 QUARANTINE EXECUTED", e.Title)
	assert.Contains(t, e.Description, "**Roles Saved:** 4")
}

func TestBuildEmbedError(t *testing.T) {
	rec := NewRecord(models.LogError, "g1")
	rec.Err = "missing permissions"
	rec.Reason = "ban"

	e := BuildEmbed(rec)
	assert.Contains(t, e.Description, "**Error:** missing permissions")
	assert.Contains(t, e.Description, "**Action:** ban")
}

type recordingSink struct{ got []models.Record }

func (r *recordingSink) Send(_ context.Context, _ string, rec models.Record) {
	r.got = append(r.got, rec)
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) RecordIncident(context.Context, models.Record) error {
	f.calls++
	return errors.New("disk full")
}

func TestFanoutContinuesPastFailingSink(t *testing.T) {
	rec := &failingRecorder{}
	tail := &recordingSink{}
	Fanout{NewLedgerSink(rec), tail}.Send(context.Background(), "logs", NewRecord(models.LogReverted, "g1"))

	assert.Equal(t, 1, rec.calls)
	assert.Len(t, tail.got, 1)
}
