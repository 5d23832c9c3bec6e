package storage

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"
)

// FileActivityStore persists FileActivity rows, mutated by the Webhook
// Ingestor (C6) only, and read by the Conflict Engine (C3).
type FileActivityStore struct{ db *DB }

func NewFileActivityStore(db *DB) *FileActivityStore { return &FileActivityStore{db: db} }

// BatchUpsert upserts every modified file into FileActivity keyed by
// (workspace, branch, filePath), overwriting lastCommitHash/updatedAt, as a
// single multi-row statement (§4.6 step 9).
func (s *FileActivityStore) BatchUpsert(ctx context.Context, exec sqlx.ExtContext, workspaceID, branch, commitHash string, filePaths []string, at time.Time) error {
	if len(filePaths) == 0 {
		return nil
	}

	query := exec.Rebind(`
		INSERT INTO file_activity (workspace_id, branch, file_path, last_commit_hash, updated_at)
		VALUES ` + valuesPlaceholders(len(filePaths), 5) + `
		ON CONFLICT (workspace_id, branch, file_path)
		DO UPDATE SET last_commit_hash = EXCLUDED.last_commit_hash, updated_at = EXCLUDED.updated_at
	`)
	args := flattenFileActivityArgs(workspaceID, branch, commitHash, filePaths, at)

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "batch upsert file activity")
	}
	return nil
}

// DeleteBranch wipes every FileActivity row for (workspace, branch) — the
// branch-delete push reaction (§4.6 step 7).
func (s *FileActivityStore) DeleteBranch(ctx context.Context, exec sqlx.ExecerContext, workspaceID, branch string) error {
	const q = `DELETE FROM file_activity WHERE workspace_id = $1 AND branch = $2`
	if _, err := exec.ExecContext(ctx, q, workspaceID, branch); err != nil {
		return errors.Wrap(err, "delete branch file activity")
	}
	return nil
}

// BranchOverlapRow is one emitted group from the §4.3 step 2 branch-overlap query.
type BranchOverlapRow struct {
	FilePath    string   `db:"file_path"`
	BranchCount int      `db:"branch_count"`
	Branches    []string `db:"-"`
}

// BranchOverlap groups FileActivity rows in the workspace, excluding trunk
// branches, whose updated_at is newer than now()-windowHours, by file_path,
// returning groups with >=2 distinct branches (§4.3 step 2).
func (s *FileActivityStore) BranchOverlap(ctx context.Context, q sqlx.QueryerContext, workspaceID string, windowHours int) ([]BranchOverlapRow, error) {
	const query = `
		SELECT file_path, COUNT(DISTINCT branch) AS branch_count, array_agg(DISTINCT branch) AS branches
		FROM file_activity
		WHERE workspace_id = $1
			AND branch NOT IN ('main', 'master')
			AND updated_at > now() - make_interval(hours => $2::integer)
		GROUP BY file_path
		HAVING COUNT(DISTINCT branch) >= 2
	`
	rows, err := q.QueryxContext(ctx, query, workspaceID, windowHours)
	if err != nil {
		return nil, errors.Wrap(err, "branch overlap query")
	}
	defer rows.Close()

	var out []BranchOverlapRow
	for rows.Next() {
		var r BranchOverlapRow
		var branches []byte
		var count int
		if err := rows.Scan(&r.FilePath, &count, &branches); err != nil {
			return nil, errors.Wrap(err, "scan branch overlap row")
		}
		r.BranchCount = count
		r.Branches = parsePGTextArray(string(branches))
		out = append(out, r)
	}
	return out, rows.Err()
}

// TouchesTrunk implements the §9/SPEC_FULL.md decision for trunk-touch
// detection: an auxiliary existence check against the un-filtered rows,
// independent of the (trunk-excluded) branch-overlap grouping. It reports
// whether filePath has a FileActivity row on a trunk branch updated within
// windowHours.
func (s *FileActivityStore) TouchesTrunk(ctx context.Context, q sqlx.QueryerContext, workspaceID, filePath string, windowHours int) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM file_activity
			WHERE workspace_id = $1
				AND file_path = $2
				AND branch IN ('main', 'master')
				AND updated_at > now() - make_interval(hours => $3::integer)
		)
	`
	var exists bool
	row := q.QueryRowxContext(ctx, query, workspaceID, filePath, windowHours)
	if err := row.Scan(&exists); err != nil {
		return false, errors.Wrap(err, "touches trunk query")
	}
	return exists, nil
}

func valuesPlaceholders(rows, cols int) string {
	s := ""
	for i := 0; i < rows; i++ {
		if i > 0 {
			s += ", "
		}
		s += "(?"
		for c := 1; c < cols; c++ {
			s += ", ?"
		}
		s += ")"
	}
	return s
}

func flattenFileActivityArgs(workspaceID, branch, commitHash string, filePaths []string, at time.Time) []interface{} {
	args := make([]interface{}, 0, len(filePaths)*5)
	for _, fp := range filePaths {
		args = append(args, workspaceID, branch, fp, commitHash, at)
	}
	return args
}

// parsePGTextArray parses a minimal Postgres text[] literal like {a,b,c}.
// A dedicated array scanner (pgtype.Array) is the production-grade choice;
// this trivial parser avoids pulling pgtype into a hot path that only needs
// branch names for description text, not further query logic.
func parsePGTextArray(raw string) []string {
	raw = trimBraces(raw)
	if raw == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			out = append(out, raw[start:i])
			start = i + 1
		}
	}
	return out
}

func trimBraces(s string) string {
	if len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' {
		return s[1 : len(s)-1]
	}
	return s
}
