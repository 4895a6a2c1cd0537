package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"go-antinuke-guard/internal/models"
)

// GuildConfig returns ErrNotProvisioned when the guild has no settings row.
func (s *SQLiteStore) GuildConfig(ctx context.Context, guildID string) (*models.TenantProtectionConfig, error) {
	var (
		cfg      models.TenantProtectionConfig
		features string
		created  int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT guild_id, enabled, features, owner_id, quarantine_role_id, log_channel_id, created_at
		 FROM guild_settings WHERE guild_id = ?`,
		guildID,
	).Scan(&cfg.GuildID, &cfg.Enabled, &features, &cfg.OwnerID, &cfg.QuarantineRoleID, &cfg.LogChannelID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotProvisioned
	}
	if err != nil {
		return nil, fmt.Errorf("load guild settings %s: %w", guildID, err)
	}

	if err := json.Unmarshal([]byte(features), &cfg.FeatureOverrides); err != nil {
		return nil, fmt.Errorf("decode feature overrides for %s: %w", guildID, err)
	}
	cfg.CreatedAt = fromStamp(created)
	return &cfg, nil
}

// SaveGuildConfig inserts or replaces the settings row.
func (s *SQLiteStore) SaveGuildConfig(ctx context.Context, cfg *models.TenantProtectionConfig) error {
	features, err := json.Marshal(cfg.FeatureOverrides)
	if err != nil {
		return fmt.Errorf("encode feature overrides: %w", err)
	}
	if cfg.FeatureOverrides == nil {
		features = []byte("{}")
	}

	now := s.stamp()
	created := now
	if !cfg.CreatedAt.IsZero() {
		created = cfg.CreatedAt.UnixMilli()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO guild_settings (guild_id, enabled, features, owner_id, quarantine_role_id, log_channel_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET
		   enabled = excluded.enabled,
		   features = excluded.features,
		   owner_id = excluded.owner_id,
		   quarantine_role_id = excluded.quarantine_role_id,
		   log_channel_id = excluded.log_channel_id,
		   updated_at = excluded.updated_at`,
		cfg.GuildID, cfg.Enabled, string(features), cfg.OwnerID, cfg.QuarantineRoleID, cfg.LogChannelID, created, now,
	)
	if err != nil {
		return fmt.Errorf("save guild settings %s: %w", cfg.GuildID, err)
	}
	s.policies.invalidate(cfg.GuildID)
	return nil
}

func (s *SQLiteStore) SetEnabled(ctx context.Context, guildID string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE guild_settings SET enabled = ?, updated_at = ? WHERE guild_id = ?`,
		enabled, s.stamp(), guildID,
	)
	if err != nil {
		return fmt.Errorf("set enabled for %s: %w", guildID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotProvisioned
	}
	s.policies.invalidate(guildID)
	return nil
}

// SetFeature stores a per-action override in the features column.
func (s *SQLiteStore) SetFeature(ctx context.Context, guildID string, action models.ActionType, enabled bool) error {
	cfg, err := s.GuildConfig(ctx, guildID)
	if err != nil {
		return err
	}
	if cfg.FeatureOverrides == nil {
		cfg.FeatureOverrides = make(map[models.ActionType]bool)
	}
	cfg.FeatureOverrides[action] = enabled
	return s.SaveGuildConfig(ctx, cfg)
}

// Limits returns the configured rules; a guild without rows gets an empty map.
func (s *SQLiteStore) Limits(ctx context.Context, guildID string) (map[models.ActionType]models.LimitRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action, max_count, window_ms, punishment FROM limits WHERE guild_id = ?`,
		guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("load limits for %s: %w", guildID, err)
	}
	defer rows.Close()

	limits := make(map[models.ActionType]models.LimitRule)
	for rows.Next() {
		var (
			action, punishment string
			count              uint
			windowMs           int64
		)
		if err := rows.Scan(&action, &count, &windowMs, &punishment); err != nil {
			return nil, err
		}
		kind, err := models.ParsePunishment(punishment)
		if err != nil {
			return nil, fmt.Errorf("limit %s for %s: %w", action, guildID, err)
		}
		limits[models.ActionType(action)] = models.LimitRule{
			Count:      count,
			Window:     time.Duration(windowMs) * time.Millisecond,
			Punishment: kind,
		}
	}
	return limits, rows.Err()
}

func (s *SQLiteStore) SetLimit(ctx context.Context, guildID string, action models.ActionType, rule models.LimitRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO limits (guild_id, action, max_count, window_ms, punishment, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		guildID, string(action), rule.Count, rule.Window.Milliseconds(), rule.Punishment.String(), s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("save limit %s for %s: %w", action, guildID, err)
	}
	s.policies.invalidate(guildID)
	return nil
}

// SeedDefaultLimits inserts the default rule for every action that has no
// row yet. Existing rules are left alone.
func (s *SQLiteStore) SeedDefaultLimits(ctx context.Context, guildID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.stamp()
	for action, rule := range models.DefaultLimits() {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO limits (guild_id, action, max_count, window_ms, punishment, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			guildID, string(action), rule.Count, rule.Window.Milliseconds(), rule.Punishment.String(), now,
		); err != nil {
			return fmt.Errorf("seed limit %s for %s: %w", action, guildID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.policies.invalidate(guildID)
	return nil
}
