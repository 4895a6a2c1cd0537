package database

import (
	"context"
	"fmt"
	"time"

	"go-antinuke-guard/internal/models"
)

// RecordIncident appends a notification record to the guild's history.
func (s *SQLiteStore) RecordIncident(ctx context.Context, rec models.Record) error {
	var actorID string
	if rec.Actor != nil {
		actorID = rec.Actor.ID
	}
	var punishment string
	if rec.Punishment != 0 {
		punishment = rec.Punishment.String()
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO incidents (id, guild_id, kind, actor_id, action, target, punishment, reason, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.IncidentID, rec.GuildID, string(rec.Kind), actorID, string(rec.Action), rec.Target,
		punishment, rec.Reason, rec.Err, ts.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record incident %s: %w", rec.IncidentID, err)
	}
	return nil
}

// RecentIncidents returns the newest incidents first.
func (s *SQLiteStore) RecentIncidents(ctx context.Context, guildID string, limit int) ([]Incident, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, guild_id, kind, actor_id, action, target, punishment, reason, error, created_at
		 FROM incidents WHERE guild_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		guildID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load incidents for %s: %w", guildID, err)
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		var (
			in           Incident
			kind, action string
			created      int64
		)
		if err := rows.Scan(&in.ID, &in.GuildID, &kind, &in.ActorID, &action, &in.Target,
			&in.Punishment, &in.Reason, &in.Err, &created); err != nil {
			return nil, err
		}
		in.Kind = models.LogKind(kind)
		in.Action = models.ActionType(action)
		in.CreatedAt = fromStamp(created)
		out = append(out, in)
	}
	return out, rows.Err()
}

// PruneIncidents deletes incidents recorded before cutoff.
func (s *SQLiteStore) PruneIncidents(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM incidents WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune incidents: %w", err)
	}
	return res.RowsAffected()
}
