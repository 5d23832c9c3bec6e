package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/pulsegrid/intelflow/metrics"
	"github.com/pulsegrid/intelflow/model"
	"github.com/pulsegrid/intelflow/storage"
)

// FeatureEngine implements C4: propagates file-touch events into feature
// progress and dependency-driven BLOCKED<->ACTIVE transitions (§4.4).
type FeatureEngine struct {
	db       *storage.DB
	features *storage.FeatureStore
	blockers *storage.BlockerStore
	bus      Broadcaster
	health   *HealthEngine
	log      *zap.Logger
}

// NewFeatureEngine wires C4. health is invoked transitively after every run
// (§4.4 step 5: "After all features are processed, invoke C5").
func NewFeatureEngine(db *storage.DB, features *storage.FeatureStore, blockers *storage.BlockerStore, bus Broadcaster, health *HealthEngine, log *zap.Logger) *FeatureEngine {
	return &FeatureEngine{db: db, features: features, blockers: blockers, bus: bus, health: health, log: log}
}

type featureTransition struct {
	featureID       string
	featureName     string
	blockedByNames  []string
	becameBlocked   bool
	becameUnblocked bool
}

// Run processes every non-COMPLETE feature in the workspace against the §4.4
// state machine, then transitively invokes the Health Engine. Like the
// Conflict Engine, failures are logged and swallowed — the webhook ACK is
// already sent (§7).
func (e *FeatureEngine) Run(ctx context.Context, workspaceID string, modifiedFiles []string, commitHash string) {
	start := time.Now()
	transitions, err := e.run(ctx, workspaceID, commitHash)
	metrics.EngineRunDuration.WithLabelValues("feature").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EngineRunErrors.WithLabelValues("feature").Inc()
		e.log.Error("feature engine run failed, will reprocess on next delivery",
			zap.String("workspace_id", workspaceID), zap.String("commit", commitHash), zap.Error(err))
		return
	}

	for _, t := range transitions {
		if t.becameBlocked {
			e.bus.Broadcast(workspaceID, model.NewBlockerCreatedEvent(t.featureID, t.featureName, t.blockedByNames))
			metrics.BusBroadcasts.WithLabelValues(model.EventBlockerCreated).Inc()
		}
	}

	e.health.Run(ctx, workspaceID)
}

func (e *FeatureEngine) run(ctx context.Context, workspaceID, commitHash string) ([]featureTransition, error) {
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	features, err := e.features.ListNonComplete(ctx, tx, workspaceID)
	if err != nil {
		return nil, err
	}

	var transitions []featureTransition

	for _, f := range features {
		deps, err := e.features.IncompleteUpstreamDependencies(ctx, tx, workspaceID, f.ID)
		if err != nil {
			return nil, err
		}

		switch {
		case len(deps) > 0:
			names := make([]string, 0, len(deps))
			for _, d := range deps {
				names = append(names, d.Name)
			}
			if f.Status != model.FeatureBlocked {
				if err := e.features.SetStatus(ctx, tx, workspaceID, f.ID, model.FeatureBlocked); err != nil {
					return nil, err
				}
			}
			description := fmt.Sprintf("blocked by: %s", strings.Join(names, ", "))
			if err := e.blockers.UpsertDependencyBlocker(ctx, tx, workspaceID, f.ID, description); err != nil {
				return nil, err
			}
			transitions = append(transitions, featureTransition{
				featureID:      f.ID,
				featureName:    f.Name,
				blockedByNames: names,
				becameBlocked:  true,
			})

		case f.Status == model.FeatureBlocked:
			if err := e.features.SetStatus(ctx, tx, workspaceID, f.ID, model.FeatureActive); err != nil {
				return nil, err
			}
			if err := e.blockers.ResolveDependencyBlocker(ctx, tx, workspaceID, f.ID); err != nil {
				return nil, err
			}
			transitions = append(transitions, featureTransition{featureID: f.ID, featureName: f.Name, becameUnblocked: true})
		}

		// Independently of the block/unblock decision, bump completion (§4.4 step 4).
		if err := e.features.BumpCompletion(ctx, tx, workspaceID, f.ID, model.PerCommitCompletionDelta, model.MaxAutomaticCompletion); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit feature engine tx")
	}

	return transitions, nil
}
