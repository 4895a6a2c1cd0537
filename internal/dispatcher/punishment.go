package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-antinuke-guard/internal/logging"
	"go-antinuke-guard/internal/metrics"
	"go-antinuke-guard/internal/models"
)

// ErrNotQuarantined is returned by Unquarantine when no role backup exists.
var ErrNotQuarantined = errors.New("dispatcher: user is not quarantined")

// ErrNoQuarantineRole is returned when a guild has no quarantine role set.
var ErrNoQuarantineRole = errors.New("dispatcher: quarantine role not configured")

// ReasonPrefix marks every sanction in the platform audit log.
const ReasonPrefix = "AntiNuke: "

// BanDeleteMessageDays is how much message history a ban removes.
const BanDeleteMessageDays = 1

// DefaultTimeout is the communication disable applied by PunishTimeout.
const DefaultTimeout = time.Hour

// QuarantineStore persists role backups.
type QuarantineStore interface {
	SaveQuarantine(ctx context.Context, guildID string, rec *models.QuarantineRecord) error
	Quarantine(ctx context.Context, guildID, userID string) (*models.QuarantineRecord, error)
	DeleteQuarantine(ctx context.Context, guildID, userID string) error
}

// Stage is the position in the revert then punish sequence.
type Stage uint8

const (
	StageIdle Stage = iota
	StageReverting
	StagePunishing
	StageLogged
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageReverting:
		return "reverting"
	case StagePunishing:
		return "punishing"
	case StageLogged:
		return "logged"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StepResult is the outcome of one platform call inside a punishment.
type StepResult struct {
	Step   string
	Target string
	Err    error
}

// Outcome reports what a punishment sequence did.
type Outcome struct {
	Stage      Stage
	Punishment models.PunishmentKind
	// Reverted is true when a revert ran and succeeded.
	Reverted   bool
	RevertErr  error
	RolesSaved int
	Steps      []StepResult
	Err        error
}

// FailedSteps returns the steps that returned an error.
func (o Outcome) FailedSteps() []StepResult {
	var failed []StepResult
	for _, s := range o.Steps {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// Request describes one enforcement.
type Request struct {
	GuildID          string
	Actor            models.Actor
	Punishment       models.PunishmentKind
	Reason           string
	QuarantineRoleID string
	// Revert runs before the punishment; nil skips the reverting stage.
	Revert func(ctx context.Context) error
}

// PunishmentExecutor runs revert then punish for one actor.
type PunishmentExecutor struct {
	actions     ActionExecutor
	quarantines QuarantineStore
	timeout     time.Duration
	deadline    time.Duration
	now         func() time.Time
}

// NewPunishmentExecutor builds an executor. timeoutFor is the duration of a
// timeout punishment; deadline bounds a whole sequence.
func NewPunishmentExecutor(actions ActionExecutor, quarantines QuarantineStore, timeoutFor, deadline time.Duration) *PunishmentExecutor {
	if timeoutFor <= 0 {
		timeoutFor = DefaultTimeout
	}
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	return &PunishmentExecutor{
		actions:     actions,
		quarantines: quarantines,
		timeout:     timeoutFor,
		deadline:    deadline,
		now:         time.Now,
	}
}

// detach keeps a started sequence running when the caller's context is
// cancelled, bounded by the executor deadline.
func (pe *PunishmentExecutor) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), pe.deadline)
}

// Execute reverts the triggering change, then applies the punishment. A
// failed revert is logged and never stops the punishment.
func (pe *PunishmentExecutor) Execute(ctx context.Context, req Request) Outcome {
	ctx, cancel := pe.detach(ctx)
	defer cancel()

	out := Outcome{Stage: StageIdle, Punishment: req.Punishment}

	if req.Revert != nil {
		out.Stage = StageReverting
		if err := req.Revert(ctx); err != nil {
			out.RevertErr = err
			logging.Warn().Err(err).Str("guild", req.GuildID).Str("actor", req.Actor.ID).Msg("revert failed")
		} else {
			out.Reverted = true
		}
	}

	out.Stage = StagePunishing
	reason := ReasonPrefix + req.Reason

	var err error
	switch req.Punishment {
	case models.PunishQuarantine:
		var q Outcome
		q, err = pe.quarantine(ctx, req.GuildID, req.Actor.ID, req.QuarantineRoleID, req.Reason, false)
		out.RolesSaved = q.RolesSaved
		out.Steps = q.Steps
	case models.PunishBan:
		err = pe.actions.Ban(ctx, req.GuildID, req.Actor.ID, reason, BanDeleteMessageDays)
		out.Steps = append(out.Steps, StepResult{Step: "ban", Target: req.Actor.ID, Err: err})
	case models.PunishKick:
		if err = pe.requireMember(ctx, req.GuildID, req.Actor.ID); err == nil {
			err = pe.actions.Kick(ctx, req.GuildID, req.Actor.ID, reason)
			out.Steps = append(out.Steps, StepResult{Step: "kick", Target: req.Actor.ID, Err: err})
		}
	case models.PunishTimeout:
		if err = pe.requireMember(ctx, req.GuildID, req.Actor.ID); err == nil {
			err = pe.actions.Timeout(ctx, req.GuildID, req.Actor.ID, pe.now().Add(pe.timeout), reason)
			out.Steps = append(out.Steps, StepResult{Step: "timeout", Target: req.Actor.ID, Err: err})
		}
	case models.PunishWarn:
		// notice only
	default:
		err = fmt.Errorf("unknown punishment %d", req.Punishment)
	}

	if err != nil {
		out.Stage = StageFailed
		out.Err = err
		metrics.Punishments.WithLabelValues(req.Punishment.String(), "failed").Inc()
		logging.Error().Err(err).Str("guild", req.GuildID).Str("actor", req.Actor.ID).Str("punishment", req.Punishment.String()).Msg("punishment failed")
		return out
	}

	out.Stage = StageLogged
	metrics.Punishments.WithLabelValues(req.Punishment.String(), "applied").Inc()
	return out
}

func (pe *PunishmentExecutor) requireMember(ctx context.Context, guildID, userID string) error {
	_, err := pe.actions.MemberRoles(ctx, guildID, userID)
	return err
}

// Quarantine strips a member's roles, keeping a backup, and assigns the
// quarantine role. Used by both automatic enforcement and administrators.
func (pe *PunishmentExecutor) Quarantine(ctx context.Context, guildID, userID, quarantineRoleID, reason string, manual bool) (Outcome, error) {
	ctx, cancel := pe.detach(ctx)
	defer cancel()
	return pe.quarantine(ctx, guildID, userID, quarantineRoleID, reason, manual)
}

func (pe *PunishmentExecutor) quarantine(ctx context.Context, guildID, userID, quarantineRoleID, reason string, manual bool) (Outcome, error) {
	out := Outcome{Stage: StagePunishing, Punishment: models.PunishQuarantine}
	if quarantineRoleID == "" {
		return out, ErrNoQuarantineRole
	}

	current, err := pe.actions.MemberRoles(ctx, guildID, userID)
	if err != nil {
		return out, err
	}

	saved := make([]string, 0, len(current))
	for _, id := range current {
		// the @everyone role shares the guild id
		if id == guildID || id == quarantineRoleID {
			continue
		}
		saved = append(saved, id)
	}

	// A second quarantine must not overwrite the first backup with the
	// already stripped role list.
	backup := saved
	existing, err := pe.quarantines.Quarantine(ctx, guildID, userID)
	if err != nil {
		return out, fmt.Errorf("load existing quarantine: %w", err)
	}
	if existing != nil {
		backup = union(existing.SavedRoles, saved)
	}

	rec := &models.QuarantineRecord{
		UserID:     userID,
		SavedRoles: backup,
		Reason:     reason,
		Timestamp:  pe.now(),
		Manual:     manual,
	}
	if err := pe.quarantines.SaveQuarantine(ctx, guildID, rec); err != nil {
		return out, fmt.Errorf("persist quarantine backup: %w", err)
	}
	out.RolesSaved = len(backup)

	auditReason := ReasonPrefix + reason
	for _, roleID := range saved {
		err := pe.actions.RemoveRole(ctx, guildID, userID, roleID, auditReason)
		out.Steps = append(out.Steps, StepResult{Step: "remove_role", Target: roleID, Err: err})
	}

	// role changes are best effort; failures surface through FailedSteps
	err = pe.actions.AddRole(ctx, guildID, userID, quarantineRoleID, auditReason)
	out.Steps = append(out.Steps, StepResult{Step: "add_quarantine_role", Target: quarantineRoleID, Err: err})
	if err != nil {
		logging.Warn().Err(err).Str("guild", guildID).Str("user", userID).Msg("quarantine role not granted")
	}
	out.Stage = StageLogged
	return out, nil
}

// Unquarantine restores the saved roles, removes the quarantine role and
// deletes the backup. Without a backup it returns ErrNotQuarantined and
// touches nothing.
func (pe *PunishmentExecutor) Unquarantine(ctx context.Context, guildID, userID, quarantineRoleID string) (Outcome, error) {
	ctx, cancel := pe.detach(ctx)
	defer cancel()

	out := Outcome{Stage: StagePunishing, Punishment: models.PunishQuarantine}
	rec, err := pe.quarantines.Quarantine(ctx, guildID, userID)
	if err != nil {
		return out, err
	}
	if rec == nil {
		return out, ErrNotQuarantined
	}

	// keep the backup for members who left; they may rejoin
	if err := pe.requireMember(ctx, guildID, userID); err != nil {
		return out, err
	}

	reason := ReasonPrefix + "unquarantine"
	for _, roleID := range rec.SavedRoles {
		err := pe.actions.AddRole(ctx, guildID, userID, roleID, reason)
		out.Steps = append(out.Steps, StepResult{Step: "restore_role", Target: roleID, Err: err})
	}
	if quarantineRoleID != "" {
		err := pe.actions.RemoveRole(ctx, guildID, userID, quarantineRoleID, reason)
		out.Steps = append(out.Steps, StepResult{Step: "remove_quarantine_role", Target: quarantineRoleID, Err: err})
	}

	if err := pe.quarantines.DeleteQuarantine(ctx, guildID, userID); err != nil {
		return out, fmt.Errorf("delete quarantine backup: %w", err)
	}
	out.RolesSaved = len(rec.SavedRoles)
	out.Stage = StageLogged
	return out, nil
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
