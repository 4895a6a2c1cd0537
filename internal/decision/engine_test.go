package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go-antinuke-guard/internal/database"
	"go-antinuke-guard/internal/models"
	"go-antinuke-guard/internal/state"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) GuildOwner(ctx context.Context, guildID string) (string, error) {
	args := m.Called(ctx, guildID)
	return args.String(0), args.Error(1)
}

func (m *mockDirectory) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	args := m.Called(ctx, guildID, userID)
	roles, _ := args.Get(0).([]string)
	return roles, args.Error(1)
}

type staticPolicies map[string]*database.GuildPolicy

func (s staticPolicies) LoadPolicy(_ context.Context, guildID string) (*database.GuildPolicy, error) {
	if p, ok := s[guildID]; ok {
		return p, nil
	}
	return &database.GuildPolicy{}, nil
}

type failingPolicies struct{}

func (failingPolicies) LoadPolicy(context.Context, string) (*database.GuildPolicy, error) {
	return nil, errors.New("disk gone")
}

var epoch = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func policy() *database.GuildPolicy {
	return &database.GuildPolicy{
		Config: &models.TenantProtectionConfig{GuildID: "g1", Enabled: true, OwnerID: "owner"},
		Limits: map[models.ActionType]models.LimitRule{
			models.ActionChannelCreate: {Count: 3, Window: 10 * time.Second, Punishment: models.PunishQuarantine},
			models.ActionBanAdd:        {Count: 5, Window: time.Minute, Punishment: models.PunishBan},
		},
	}
}

func newEvaluator(p *database.GuildPolicy, dir GuildDirectory, clock state.Clock) (*PolicyEvaluator, *state.WindowCounter) {
	counter := state.NewWindowCounter(clock)
	return NewPolicyEvaluator(staticPolicies{"g1": p}, NewProtectionResolver("self", dir), counter), counter
}

func evaluate(t *testing.T, pe *PolicyEvaluator, actor string, action models.ActionType) models.Decision {
	t.Helper()
	d, err := pe.Evaluate(context.Background(), "g1", models.Actor{ID: actor}, action)
	require.NoError(t, err)
	return d
}

func TestThreeChannelCreatesQuarantine(t *testing.T) {
	clock := state.NewManualClock(epoch)
	pe, _ := newEvaluator(policy(), nil, clock)

	d := evaluate(t, pe, "mallory", models.ActionChannelCreate)
	assert.Equal(t, models.DecisionNoOp, d.Kind)

	clock.Advance(time.Second)
	d = evaluate(t, pe, "mallory", models.ActionChannelCreate)
	assert.Equal(t, models.DecisionWarning, d.Kind)
	assert.Equal(t, uint(2), d.Count)
	assert.Equal(t, uint(3), d.Limit)

	clock.Advance(time.Second)
	d = evaluate(t, pe, "mallory", models.ActionChannelCreate)
	assert.Equal(t, models.DecisionExceeded, d.Kind)
	assert.Equal(t, models.PunishQuarantine, d.Punishment)
	assert.Equal(t, uint(3), d.Count)
}

func TestWarningMidpointForOddAndEvenLimits(t *testing.T) {
	pe, _ := newEvaluator(policy(), nil, state.NewManualClock(epoch))

	// ban limit 5: warn at 3 and 4, exceed at 5
	kinds := make([]models.DecisionKind, 0, 6)
	for i := 0; i < 6; i++ {
		kinds = append(kinds, evaluate(t, pe, "mallory", models.ActionBanAdd).Kind)
	}
	assert.Equal(t, []models.DecisionKind{
		models.DecisionNoOp, models.DecisionNoOp,
		models.DecisionWarning, models.DecisionWarning,
		models.DecisionExceeded, models.DecisionExceeded,
	}, kinds)
}

func TestSingleEventLimitExceedsImmediately(t *testing.T) {
	p := policy()
	p.Limits[models.ActionBotAdd] = models.LimitRule{Count: 1, Window: time.Minute, Punishment: models.PunishKick}
	pe, _ := newEvaluator(p, nil, state.NewManualClock(epoch))

	d := evaluate(t, pe, "mallory", models.ActionBotAdd)
	assert.Equal(t, models.DecisionExceeded, d.Kind)
	assert.Equal(t, models.PunishKick, d.Punishment)
}

func TestWindowExpiryResetsCount(t *testing.T) {
	clock := state.NewManualClock(epoch)
	pe, _ := newEvaluator(policy(), nil, clock)

	evaluate(t, pe, "mallory", models.ActionChannelCreate)
	evaluate(t, pe, "mallory", models.ActionChannelCreate)
	clock.Advance(11 * time.Second)
	d := evaluate(t, pe, "mallory", models.ActionChannelCreate)
	assert.Equal(t, models.DecisionNoOp, d.Kind)
	assert.Equal(t, uint(1), d.Count)
}

func TestDisabledGuildAndFeature(t *testing.T) {
	p := policy()
	p.Config.Enabled = false
	pe, counter := newEvaluator(p, nil, state.NewManualClock(epoch))
	for i := 0; i < 5; i++ {
		assert.Equal(t, models.DecisionNoOp, evaluate(t, pe, "mallory", models.ActionChannelCreate).Kind)
	}
	assert.Zero(t, counter.Len())

	p = policy()
	p.Config.FeatureOverrides = map[models.ActionType]bool{models.ActionChannelCreate: false}
	pe, counter = newEvaluator(p, nil, state.NewManualClock(epoch))
	assert.Equal(t, models.DecisionNoOp, evaluate(t, pe, "mallory", models.ActionChannelCreate).Kind)
	assert.Zero(t, counter.Len())
}

func TestUnprovisionedGuildIsNoOp(t *testing.T) {
	pe, counter := newEvaluator(policy(), nil, state.NewManualClock(epoch))
	d, err := pe.Evaluate(context.Background(), "unknown", models.Actor{ID: "mallory"}, models.ActionChannelCreate)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionNoOp, d.Kind)
	assert.Zero(t, counter.Len())
}

func TestNoRuleIsNoOp(t *testing.T) {
	pe, counter := newEvaluator(policy(), nil, state.NewManualClock(epoch))
	assert.Equal(t, models.DecisionNoOp, evaluate(t, pe, "mallory", models.ActionWebhookCreate).Kind)
	assert.Zero(t, counter.Len())
}

func TestPolicyLoadFailure(t *testing.T) {
	pe := NewPolicyEvaluator(failingPolicies{}, NewProtectionResolver("self", nil), state.NewWindowCounter(nil))
	_, err := pe.Evaluate(context.Background(), "g1", models.Actor{ID: "mallory"}, models.ActionChannelCreate)
	assert.Error(t, err)
}

func TestExemptActorsAreNeverCounted(t *testing.T) {
	p := policy()
	p.ExtraOwners = []string{"delegate"}
	p.Whitelist = models.Whitelist{Users: []string{"trusted"}}
	pe, counter := newEvaluator(p, nil, state.NewManualClock(epoch))

	cases := map[string]models.ProtectionReason{
		"owner":    models.ProtectedOwner,
		"self":     models.ProtectedSelf,
		"delegate": models.ProtectedExtraOwner,
		"trusted":  models.ProtectedWhitelistedUser,
	}
	for actor, reason := range cases {
		for i := 0; i < 5; i++ {
			d := evaluate(t, pe, actor, models.ActionChannelCreate)
			assert.Equal(t, models.DecisionExempt, d.Kind, actor)
			assert.Equal(t, reason, d.Exemption, actor)
		}
	}
	assert.Zero(t, counter.Len())
}

func TestWhitelistedRoleUsesMemberFetch(t *testing.T) {
	p := policy()
	p.Whitelist = models.Whitelist{Roles: []string{"mods"}}
	dir := &mockDirectory{}
	dir.On("GuildOwner", mock.Anything, "g1").Return("owner", nil)
	dir.On("MemberRoles", mock.Anything, "g1", "moderator").Return([]string{"mods"}, nil)
	dir.On("MemberRoles", mock.Anything, "g1", "mallory").Return(nil, errors.New("unknown member"))
	pe, _ := newEvaluator(p, dir, state.NewManualClock(epoch))

	d := evaluate(t, pe, "moderator", models.ActionChannelCreate)
	assert.Equal(t, models.DecisionExempt, d.Kind)
	assert.Equal(t, models.ProtectedWhitelistedRole, d.Exemption)

	d = evaluate(t, pe, "mallory", models.ActionChannelCreate)
	assert.Equal(t, models.DecisionNoOp, d.Kind, "failed member fetch means not protected")
	assert.Equal(t, uint(1), d.Count)

	d = evaluate(t, pe, "owner", models.ActionChannelCreate)
	assert.Equal(t, models.ProtectedOwner, d.Exemption)
	dir.AssertNotCalled(t, "MemberRoles", mock.Anything, "g1", "owner")
}

func TestLiveOwnerOverridesStoredOwner(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("GuildOwner", mock.Anything, "g1").Return("new-owner", nil)
	pe, _ := newEvaluator(policy(), dir, state.NewManualClock(epoch))

	assert.Equal(t, models.DecisionExempt, evaluate(t, pe, "new-owner", models.ActionChannelCreate).Kind)
	assert.Equal(t, models.DecisionNoOp, evaluate(t, pe, "owner", models.ActionChannelCreate).Kind)
}

func TestActorsAndActionsCountedSeparately(t *testing.T) {
	pe, _ := newEvaluator(policy(), nil, state.NewManualClock(epoch))
	evaluate(t, pe, "a", models.ActionChannelCreate)
	evaluate(t, pe, "a", models.ActionChannelCreate)
	assert.Equal(t, uint(1), evaluate(t, pe, "b", models.ActionChannelCreate).Count)
	assert.Equal(t, uint(1), evaluate(t, pe, "a", models.ActionBanAdd).Count)
}
