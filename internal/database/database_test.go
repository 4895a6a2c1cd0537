package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-antinuke-guard/internal/models"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "antinuke.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func provision(t *testing.T, s *SQLiteStore, guildID string) {
	t.Helper()
	require.NoError(t, s.SaveGuildConfig(context.Background(), &models.TenantProtectionConfig{
		GuildID:          guildID,
		Enabled:          true,
		OwnerID:          "owner",
		QuarantineRoleID: "qrole",
		LogChannelID:     "logs",
	}))
}

func TestUnprovisionedGuild(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GuildConfig(ctx, "g1")
	assert.ErrorIs(t, err, ErrNotProvisioned)
	assert.ErrorIs(t, s.SetEnabled(ctx, "g1", true), ErrNotProvisioned)

	limits, err := s.Limits(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, limits)

	wl, err := s.Whitelist(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, wl.Users)

	p, err := s.LoadPolicy(ctx, "g1")
	require.NoError(t, err)
	assert.Nil(t, p.Config)
}

func TestGuildConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	provision(t, s, "g1")

	cfg, err := s.GuildConfig(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "qrole", cfg.QuarantineRoleID)
	assert.False(t, cfg.CreatedAt.IsZero())
	assert.True(t, cfg.FeatureEnabled(models.ActionBanAdd))

	require.NoError(t, s.SetFeature(ctx, "g1", models.ActionBanAdd, false))
	require.NoError(t, s.SetEnabled(ctx, "g1", false))

	cfg, err = s.GuildConfig(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.False(t, cfg.FeatureEnabled(models.ActionBanAdd))
	assert.True(t, cfg.FeatureEnabled(models.ActionKickAdd))
}

func TestLimits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	custom := models.LimitRule{Count: 7, Window: 30 * time.Second, Punishment: models.PunishBan}
	require.NoError(t, s.SetLimit(ctx, "g1", models.ActionChannelDelete, custom))
	require.NoError(t, s.SeedDefaultLimits(ctx, "g1"))

	limits, err := s.Limits(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, limits, len(models.AllActions))
	assert.Equal(t, custom, limits[models.ActionChannelDelete], "seeding keeps existing rules")
	assert.Equal(t, models.DefaultLimits()[models.ActionBotAdd], limits[models.ActionBotAdd])

	err = s.SetLimit(ctx, "g1", models.ActionChannelDelete, models.LimitRule{Count: 0, Window: time.Second, Punishment: models.PunishBan})
	assert.Error(t, err)
}

func TestWhitelistAndExtraOwners(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddWhitelist(ctx, "g1", "u1", WhitelistUser))
	require.NoError(t, s.AddWhitelist(ctx, "g1", "u1", WhitelistUser))
	require.NoError(t, s.AddWhitelist(ctx, "g1", "r1", WhitelistRole))

	wl, err := s.Whitelist(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, wl.Users)
	assert.Equal(t, []string{"r1"}, wl.Roles)

	removed, err := s.RemoveWhitelist(ctx, "g1", "u1", WhitelistUser)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.RemoveWhitelist(ctx, "g1", "u1", WhitelistUser)
	require.NoError(t, err)
	assert.False(t, removed)

	require.NoError(t, s.AddExtraOwner(ctx, "g1", "a", "owner"))
	require.NoError(t, s.AddExtraOwner(ctx, "g1", "b", "owner"))
	owners, err := s.ExtraOwners(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, owners, 2)
	assert.Equal(t, "a", owners[0].UserID)
	assert.Equal(t, "owner", owners[0].AddedBy)

	removed, err = s.RemoveExtraOwner(ctx, "g1", "a")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestQuarantineRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec, err := s.Quarantine(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, s.SaveQuarantine(ctx, "g1", &models.QuarantineRecord{
		UserID:     "u1",
		SavedRoles: []string{"r1", "r2"},
		Reason:     "channelCreate limit exceeded",
		Timestamp:  ts,
	}))

	rec, err = s.Quarantine(ctx, "g1", "u1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"r1", "r2"}, rec.SavedRoles)
	assert.True(t, ts.Equal(rec.Timestamp))
	assert.False(t, rec.Manual)

	require.NoError(t, s.DeleteQuarantine(ctx, "g1", "u1"))
	rec, err = s.Quarantine(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestIncidents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.RecordIncident(ctx, models.Record{
			IncidentID: id,
			Kind:       models.LogPunished,
			GuildID:    "g1",
			Actor:      &models.Actor{ID: "mallory"},
			Action:     models.ActionRoleDelete,
			Punishment: models.PunishKick,
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := s.RecentIncidents(ctx, "g1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "kick", got[0].Punishment)
	assert.Equal(t, "mallory", got[0].ActorID)

	n, err := s.PruneIncidents(ctx, base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestLoadPolicyCachesAndInvalidates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	provision(t, s, "g1")
	require.NoError(t, s.SeedDefaultLimits(ctx, "g1"))

	p1, err := s.LoadPolicy(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, p1.Config)
	assert.Len(t, p1.Limits, len(models.AllActions))

	p2, err := s.LoadPolicy(ctx, "g1")
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	require.NoError(t, s.AddExtraOwner(ctx, "g1", "delegate", "owner"))
	p3, err := s.LoadPolicy(ctx, "g1")
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)
	assert.True(t, p3.IsExtraOwner("delegate"))
}

func TestLoadPolicyWithoutCache(t *testing.T) {
	s := openTestStore(t)
	s.SetPolicyTTL(0)
	ctx := context.Background()
	provision(t, s, "g1")

	p1, err := s.LoadPolicy(ctx, "g1")
	require.NoError(t, err)
	p2, err := s.LoadPolicy(ctx, "g1")
	require.NoError(t, err)
	assert.NotSame(t, p1, p2)
}

func TestPolicyCacheDropsLoadRacingAWrite(t *testing.T) {
	c := newPolicyCache(time.Minute)
	now := time.Now()
	stale := &GuildPolicy{}

	gen := c.generation("g1")
	c.invalidate("g1") // a write lands while the load is reading rows
	c.put("g1", stale, now, gen)

	_, ok := c.get("g1", now)
	assert.False(t, ok)

	fresh := &GuildPolicy{}
	c.put("g1", fresh, now, c.generation("g1"))
	got, ok := c.get("g1", now)
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestSetPolicyTTLConcurrentWithLoads(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	provision(t, s, "g1")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := s.LoadPolicy(ctx, "g1")
				assert.NoError(t, err)
			}
		}()
	}
	s.SetPolicyTTL(time.Second)
	s.SetPolicyTTL(0)
	wg.Wait()

	p1, err := s.LoadPolicy(ctx, "g1")
	require.NoError(t, err)
	p2, err := s.LoadPolicy(ctx, "g1")
	require.NoError(t, err)
	assert.NotSame(t, p1, p2)
}
