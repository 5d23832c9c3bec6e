package storage

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"github.com/pulsegrid/intelflow/model"
)

// WorkspaceStore persists Workspace rows (§3).
type WorkspaceStore struct{ db *DB }

func NewWorkspaceStore(db *DB) *WorkspaceStore { return &WorkspaceStore{db: db} }

// GetByID loads a workspace by its opaque id.
func (s *WorkspaceStore) GetByID(ctx context.Context, id string) (*model.Workspace, error) {
	const q = `
		SELECT id, github_repo_id, name, dashboard_key, activity_window_hours, health_score, created_at, updated_at
		FROM workspaces WHERE id = $1
	`
	var w model.Workspace
	if err := s.db.GetContext(ctx, &w, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get workspace")
	}
	return &w, nil
}

// GetByGithubRepoID resolves a workspace from the upstream repository
// identity carried on the webhook payload (§4.6 step 6).
func (s *WorkspaceStore) GetByGithubRepoID(ctx context.Context, repoID int64) (*model.Workspace, error) {
	const q = `
		SELECT id, github_repo_id, name, dashboard_key, activity_window_hours, health_score, created_at, updated_at
		FROM workspaces WHERE github_repo_id = $1
	`
	var w model.Workspace
	if err := s.db.GetContext(ctx, &w, q, repoID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get workspace by repo id")
	}
	return &w, nil
}

// GetByGithubRepoIDTx is the transaction-scoped variant of
// GetByGithubRepoID, used by the Webhook Ingestor so workspace resolution
// (§4.6 step 6) participates in the same transaction as the idempotency
// insert and FileActivity upsert.
func (s *WorkspaceStore) GetByGithubRepoIDTx(ctx context.Context, q sqlx.QueryerContext, repoID int64) (*model.Workspace, error) {
	const query = `
		SELECT id, github_repo_id, name, dashboard_key, activity_window_hours, health_score, created_at, updated_at
		FROM workspaces WHERE github_repo_id = $1
	`
	var w model.Workspace
	if err := sqlx.GetContext(ctx, q, &w, query, repoID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get workspace by repo id (tx)")
	}
	return &w, nil
}

// UpdateHealthScore persists the Health Engine's recomputed score (§4.5 "Persist score on the workspace").
func (s *WorkspaceStore) UpdateHealthScore(ctx context.Context, exec sqlx.ExecerContext, workspaceID string, score int) error {
	const q = `UPDATE workspaces SET health_score = $2, updated_at = now() WHERE id = $1`
	if _, err := exec.ExecContext(ctx, q, workspaceID, score); err != nil {
		return errors.Wrap(err, "update health score")
	}
	return nil
}
