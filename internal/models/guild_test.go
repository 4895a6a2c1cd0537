package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitRuleValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    LimitRule
		wantErr bool
	}{
		{"valid", LimitRule{Count: 3, Window: 10 * time.Second, Punishment: PunishBan}, false},
		{"zero count", LimitRule{Count: 0, Window: 10 * time.Second, Punishment: PunishBan}, true},
		{"short window", LimitRule{Count: 3, Window: 999 * time.Millisecond, Punishment: PunishBan}, true},
		{"long window", LimitRule{Count: 3, Window: 2 * time.Hour, Punishment: PunishBan}, true},
		{"count too high", LimitRule{Count: 51, Window: time.Minute, Punishment: PunishBan}, true},
		{"missing punishment", LimitRule{Count: 3, Window: 10 * time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLimitRuleWarnAt(t *testing.T) {
	assert.Equal(t, uint(1), LimitRule{Count: 1}.WarnAt())
	assert.Equal(t, uint(1), LimitRule{Count: 2}.WarnAt())
	assert.Equal(t, uint(2), LimitRule{Count: 3}.WarnAt())
	assert.Equal(t, uint(3), LimitRule{Count: 5}.WarnAt())
	assert.Equal(t, uint(3), LimitRule{Count: 6}.WarnAt())
}

func TestDefaultLimitsAreValid(t *testing.T) {
	limits := DefaultLimits()
	require.Len(t, limits, len(AllActions))
	for _, action := range AllActions {
		rule, ok := limits[action]
		require.True(t, ok, "missing default for %s", action)
		assert.NoError(t, rule.Validate(), action)
	}

	perms := LimitRule{Count: 5, Window: 10 * time.Second, Punishment: PunishWarn}
	assert.Equal(t, perms, limits[ActionChannelPermUpdate])
	assert.Equal(t, perms, limits[ActionRolePermUpdate])
	assert.Equal(t, PunishQuarantine, limits[ActionChannelCreate].Punishment)
}

func TestParsePunishment(t *testing.T) {
	for _, p := range AllPunishments {
		got, err := ParsePunishment(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	got, err := ParsePunishment(" BAN ")
	require.NoError(t, err)
	assert.Equal(t, PunishBan, got)

	_, err = ParsePunishment("delete")
	assert.Error(t, err)
}

func TestParseActionType(t *testing.T) {
	a, err := ParseActionType("channelCreate")
	require.NoError(t, err)
	assert.Equal(t, ActionChannelCreate, a)
	assert.Equal(t, AuditChannelCreate, a.AuditCode())
	assert.Zero(t, ActionMentionSpam.AuditCode())

	_, err = ParseActionType("channelcreate")
	assert.Error(t, err)
}

func TestFeatureEnabled(t *testing.T) {
	cfg := &TenantProtectionConfig{}
	assert.True(t, cfg.FeatureEnabled(ActionBanAdd))

	cfg.FeatureOverrides = map[ActionType]bool{ActionBanAdd: false, ActionKickAdd: true}
	assert.False(t, cfg.FeatureEnabled(ActionBanAdd))
	assert.True(t, cfg.FeatureEnabled(ActionKickAdd))
	assert.True(t, cfg.FeatureEnabled(ActionRoleCreate))
}

func TestWhitelistMembership(t *testing.T) {
	wl := Whitelist{Users: []string{"1"}, Roles: []string{"r1", "r2"}}
	assert.True(t, wl.HasUser("1"))
	assert.False(t, wl.HasUser("2"))
	assert.True(t, wl.HasAnyRole([]string{"x", "r2"}))
	assert.False(t, wl.HasAnyRole(nil))
}
