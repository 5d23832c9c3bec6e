package storage

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"github.com/pulsegrid/intelflow/model"
)

// FeatureStore persists Feature and FeatureDependency rows (§3), mutated by
// the Feature Engine (C4) only.
type FeatureStore struct{ db *DB }

func NewFeatureStore(db *DB) *FeatureStore { return &FeatureStore{db: db} }

// ListNonComplete returns every feature in the workspace whose status is not COMPLETE (§4.4).
func (s *FeatureStore) ListNonComplete(ctx context.Context, q sqlx.QueryerContext, workspaceID string) ([]model.Feature, error) {
	const query = `
		SELECT id, workspace_id, name, priority, status, completion_percentage, owner, created_at, updated_at
		FROM features
		WHERE workspace_id = $1 AND status <> 'COMPLETE'
		ORDER BY priority, created_at
	`
	var features []model.Feature
	if err := sqlx.SelectContext(ctx, q, &features, query, workspaceID); err != nil {
		return nil, errors.Wrap(err, "list non-complete features")
	}
	return features, nil
}

// ListAll returns every feature in the workspace (used by the Health Engine's
// featureCompletionAvg aggregation, §4.5).
func (s *FeatureStore) ListAll(ctx context.Context, q sqlx.QueryerContext, workspaceID string) ([]model.Feature, error) {
	const query = `
		SELECT id, workspace_id, name, priority, status, completion_percentage, owner, created_at, updated_at
		FROM features WHERE workspace_id = $1
	`
	var features []model.Feature
	if err := sqlx.SelectContext(ctx, q, &features, query, workspaceID); err != nil {
		return nil, errors.Wrap(err, "list all features")
	}
	return features, nil
}

// IncompleteUpstreamDependencies returns the dependency features of
// featureID whose status is not COMPLETE (§4.4 step 1).
func (s *FeatureStore) IncompleteUpstreamDependencies(ctx context.Context, q sqlx.QueryerContext, workspaceID, featureID string) ([]model.Feature, error) {
	const query = `
		SELECT f.id, f.workspace_id, f.name, f.priority, f.status, f.completion_percentage, f.owner, f.created_at, f.updated_at
		FROM feature_dependencies fd
		JOIN features f ON f.id = fd.depends_on_feature_id
		WHERE fd.workspace_id = $1 AND fd.feature_id = $2 AND f.status <> 'COMPLETE'
	`
	var deps []model.Feature
	if err := sqlx.SelectContext(ctx, q, &deps, query, workspaceID, featureID); err != nil {
		return nil, errors.Wrap(err, "incomplete upstream dependencies")
	}
	return deps, nil
}

// SetStatus transitions a feature's status (§4.4 state machine).
func (s *FeatureStore) SetStatus(ctx context.Context, exec sqlx.ExecerContext, workspaceID, featureID string, status model.FeatureStatus) error {
	const q = `UPDATE features SET status = $3, updated_at = now() WHERE workspace_id = $1 AND id = $2`
	if _, err := exec.ExecContext(ctx, q, workspaceID, featureID, status); err != nil {
		return errors.Wrap(err, "set feature status")
	}
	return nil
}

// BumpCompletion increases completion_percentage by delta, capped at max (§4.4 step 4).
func (s *FeatureStore) BumpCompletion(ctx context.Context, exec sqlx.ExecerContext, workspaceID, featureID string, delta, max int) error {
	const q = `
		UPDATE features
		SET completion_percentage = LEAST($3, completion_percentage + $4), updated_at = now()
		WHERE workspace_id = $1 AND id = $2
	`
	if _, err := exec.ExecContext(ctx, q, workspaceID, featureID, max, delta); err != nil {
		return errors.Wrap(err, "bump feature completion")
	}
	return nil
}
