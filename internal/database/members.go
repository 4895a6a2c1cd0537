package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"go-antinuke-guard/internal/models"
)

func (s *SQLiteStore) Whitelist(ctx context.Context, guildID string) (models.Whitelist, error) {
	var wl models.Whitelist
	rows, err := s.db.QueryContext(ctx,
		`SELECT target_id, target_type FROM whitelist WHERE guild_id = ? ORDER BY created_at, rowid`,
		guildID,
	)
	if err != nil {
		return wl, fmt.Errorf("load whitelist for %s: %w", guildID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, kind string
		if err := rows.Scan(&id, &kind); err != nil {
			return wl, err
		}
		switch WhitelistKind(kind) {
		case WhitelistUser:
			wl.Users = append(wl.Users, id)
		case WhitelistRole:
			wl.Roles = append(wl.Roles, id)
		}
	}
	return wl, rows.Err()
}

// AddWhitelist is idempotent.
func (s *SQLiteStore) AddWhitelist(ctx context.Context, guildID, targetID string, kind WhitelistKind) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO whitelist (guild_id, target_id, target_type, created_at) VALUES (?, ?, ?, ?)`,
		guildID, targetID, string(kind), s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("whitelist %s %s: %w", kind, targetID, err)
	}
	s.policies.invalidate(guildID)
	return nil
}

// RemoveWhitelist reports whether an entry was removed.
func (s *SQLiteStore) RemoveWhitelist(ctx context.Context, guildID, targetID string, kind WhitelistKind) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM whitelist WHERE guild_id = ? AND target_id = ? AND target_type = ?`,
		guildID, targetID, string(kind),
	)
	if err != nil {
		return false, fmt.Errorf("unwhitelist %s %s: %w", kind, targetID, err)
	}
	s.policies.invalidate(guildID)
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ExtraOwners returns delegated administrators in the order they were added.
func (s *SQLiteStore) ExtraOwners(ctx context.Context, guildID string) ([]ExtraOwner, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, added_by, created_at FROM extra_owners WHERE guild_id = ? ORDER BY created_at, rowid`,
		guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("load extra owners for %s: %w", guildID, err)
	}
	defer rows.Close()

	var owners []ExtraOwner
	for rows.Next() {
		var (
			o       ExtraOwner
			created int64
		)
		if err := rows.Scan(&o.UserID, &o.AddedBy, &created); err != nil {
			return nil, err
		}
		o.AddedAt = fromStamp(created)
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

func (s *SQLiteStore) AddExtraOwner(ctx context.Context, guildID, userID, addedBy string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO extra_owners (guild_id, user_id, added_by, created_at) VALUES (?, ?, ?, ?)`,
		guildID, userID, addedBy, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("add extra owner %s: %w", userID, err)
	}
	s.policies.invalidate(guildID)
	return nil
}

func (s *SQLiteStore) RemoveExtraOwner(ctx context.Context, guildID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM extra_owners WHERE guild_id = ? AND user_id = ?`,
		guildID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("remove extra owner %s: %w", userID, err)
	}
	s.policies.invalidate(guildID)
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SaveQuarantine replaces any earlier record for the user.
func (s *SQLiteStore) SaveQuarantine(ctx context.Context, guildID string, rec *models.QuarantineRecord) error {
	roles := rec.SavedRoles
	if roles == nil {
		roles = []string{}
	}
	payload, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("encode saved roles: %w", err)
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO quarantine (guild_id, user_id, roles, reason, manual, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		guildID, rec.UserID, string(payload), rec.Reason, rec.Manual, ts.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save quarantine for %s: %w", rec.UserID, err)
	}
	return nil
}

// Quarantine returns nil, nil when the user has no record.
func (s *SQLiteStore) Quarantine(ctx context.Context, guildID, userID string) (*models.QuarantineRecord, error) {
	var (
		rec     models.QuarantineRecord
		roles   string
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, roles, reason, manual, created_at FROM quarantine WHERE guild_id = ? AND user_id = ?`,
		guildID, userID,
	).Scan(&rec.UserID, &roles, &rec.Reason, &rec.Manual, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load quarantine for %s: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(roles), &rec.SavedRoles); err != nil {
		return nil, fmt.Errorf("decode saved roles for %s: %w", userID, err)
	}
	rec.Timestamp = fromStamp(created)
	return &rec, nil
}

func (s *SQLiteStore) DeleteQuarantine(ctx context.Context, guildID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM quarantine WHERE guild_id = ? AND user_id = ?`,
		guildID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete quarantine for %s: %w", userID, err)
	}
	return nil
}
