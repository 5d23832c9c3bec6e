package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/pulsegrid/intelflow/metrics"
	"github.com/pulsegrid/intelflow/model"
	"github.com/pulsegrid/intelflow/storage"
)

// HealthEngine implements C5: pure recomputation of the aggregate workspace
// health score from the current snapshot of features, blockers, and member
// inactivity (§4.5).
type HealthEngine struct {
	db        *storage.DB
	workspace *storage.WorkspaceStore
	features  *storage.FeatureStore
	members   *storage.MemberStore
	blockers  *storage.BlockerStore
	bus       Broadcaster
	log       *zap.Logger
}

// NewHealthEngine wires C5's storage and fan-out dependencies.
func NewHealthEngine(db *storage.DB, workspace *storage.WorkspaceStore, features *storage.FeatureStore, members *storage.MemberStore, blockers *storage.BlockerStore, bus Broadcaster, log *zap.Logger) *HealthEngine {
	return &HealthEngine{db: db, workspace: workspace, features: features, members: members, blockers: blockers, bus: bus, log: log}
}

// Run recomputes and persists the workspace's health score, reconciles
// INACTIVITY blockers (SPEC_FULL.md item 5), and broadcasts HEALTH_UPDATE.
// Like the other engines it never propagates failures to its caller.
func (e *HealthEngine) Run(ctx context.Context, workspaceID string) {
	start := time.Now()
	score, risk, err := e.run(ctx, workspaceID)
	metrics.EngineRunDuration.WithLabelValues("health").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EngineRunErrors.WithLabelValues("health").Inc()
		e.log.Error("health engine run failed", zap.String("workspace_id", workspaceID), zap.Error(err))
		return
	}
	metrics.HealthScore.WithLabelValues(workspaceID).Set(float64(score))
	e.bus.Broadcast(workspaceID, model.NewHealthUpdateEvent(score, risk))
	metrics.BusBroadcasts.WithLabelValues(model.EventHealthUpdate).Inc()
}

func (e *HealthEngine) run(ctx context.Context, workspaceID string) (int, model.RiskLevel, error) {
	ws, err := e.workspace.GetByID(ctx, workspaceID)
	if err != nil {
		return 0, "", errors.Wrap(err, "load workspace")
	}
	if ws == nil {
		return 0, "", errors.Errorf("workspace %s not found", workspaceID)
	}
	windowHours := ws.ActivityWindowHours
	if windowHours <= 0 {
		windowHours = model.DefaultActivityWindowHours
	}

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, "", errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	features, err := e.features.ListAll(ctx, tx, workspaceID)
	if err != nil {
		return 0, "", err
	}
	completionAvg := averageCompletion(features)

	activeBlockerTotal, err := e.blockers.CountUnresolved(ctx, tx, workspaceID)
	if err != nil {
		return 0, "", err
	}
	conflictBlockerCount, err := e.blockers.CountUnresolvedByType(ctx, tx, workspaceID, model.BlockerFileConflictRisk)
	if err != nil {
		return 0, "", err
	}
	metrics.BlockersActive.WithLabelValues(workspaceID, string(model.BlockerFileConflictRisk)).Set(float64(conflictBlockerCount))

	if err := e.reconcileInactivityBlockers(ctx, tx, workspaceID, windowHours); err != nil {
		return 0, "", err
	}
	inactive, err := e.members.ListInactive(ctx, tx, workspaceID, windowHours)
	if err != nil {
		return 0, "", err
	}

	score := model.HealthScore(model.HealthInputs{
		FeatureCompletionAvg: completionAvg,
		ActiveBlockerTotal:   activeBlockerTotal,
		ConflictBlockerCount: conflictBlockerCount,
		InactiveMemberCount:  len(inactive),
	})
	risk := model.RiskTier(score)

	if err := e.workspace.UpdateHealthScore(ctx, tx, workspaceID, score); err != nil {
		return 0, "", err
	}

	if err := tx.Commit(); err != nil {
		return 0, "", errors.Wrap(err, "commit health engine tx")
	}

	return score, risk, nil
}

// reconcileInactivityBlockers upserts one INACTIVITY blocker per currently
// inactive member and resolves blockers for members who are active again
// (SPEC_FULL.md item 5). All members are read once so both halves of the
// reconciliation see the same snapshot.
func (e *HealthEngine) reconcileInactivityBlockers(ctx context.Context, tx *sqlx.Tx, workspaceID string, windowHours int) error {
	all, err := e.members.ListAll(ctx, tx, workspaceID)
	if err != nil {
		return err
	}
	inactive, err := e.members.ListInactive(ctx, tx, workspaceID, windowHours)
	if err != nil {
		return err
	}
	inactiveSet := make(map[string]bool, len(inactive))
	for _, m := range inactive {
		inactiveSet[m.UserUID] = true
	}

	for _, m := range all {
		if inactiveSet[m.UserUID] {
			desc := fmt.Sprintf("%s has had no qualifying activity in the current window", m.Username)
			if err := e.blockers.UpsertInactivityBlocker(ctx, tx, workspaceID, m.UserUID, model.SeverityMedium, desc); err != nil {
				return err
			}
		} else {
			if err := e.blockers.ResolveInactivityBlocker(ctx, tx, workspaceID, m.UserUID); err != nil {
				return err
			}
		}
	}
	return nil
}

func averageCompletion(features []model.Feature) float64 {
	if len(features) == 0 {
		return 0
	}
	total := 0
	for _, f := range features {
		total += f.CompletionPercentage
	}
	return float64(total) / float64(len(features))
}
