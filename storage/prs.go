package storage

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
)

// PullRequestStore persists PullRequest/PRFile rows (§3), read by the
// Conflict Engine's PR-overlap query (§4.3 step 3).
type PullRequestStore struct{ db *DB }

func NewPullRequestStore(db *DB) *PullRequestStore { return &PullRequestStore{db: db} }

// PROverlapRow is one emitted group from the §4.3 step 3 PR-overlap query.
type PROverlapRow struct {
	FilePath string `db:"file_path"`
	PRCount  int    `db:"pr_count"`
}

// PROverlap groups PRFile rows joined to open PullRequests by file_path,
// returning groups with >=2 distinct PRs (§4.3 step 3).
func (s *PullRequestStore) PROverlap(ctx context.Context, q sqlx.QueryerContext, workspaceID string) ([]PROverlapRow, error) {
	const query = `
		SELECT pf.file_path AS file_path, COUNT(DISTINCT pf.pr_number) AS pr_count
		FROM pr_files pf
		JOIN pull_requests pr ON pr.workspace_id = pf.workspace_id AND pr.pr_number = pf.pr_number
		WHERE pf.workspace_id = $1 AND pr.status = 'open'
		GROUP BY pf.file_path
		HAVING COUNT(DISTINCT pf.pr_number) >= 2
	`
	var rows []PROverlapRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, workspaceID); err != nil {
		return nil, errors.Wrap(err, "pr overlap query")
	}
	return rows, nil
}
