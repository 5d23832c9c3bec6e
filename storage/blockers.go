package storage

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"github.com/pulsegrid/intelflow/model"
)

// BlockerStore implements C2: upsert/resolve conflict and dependency
// blockers under the active-uniqueness invariant (I1). Every operation
// takes the enclosing transaction explicitly — C2 never opens its own
// transaction, so C3/C4 can compose multiple Blocker Store calls into one
// atomic unit of work (§4.3, §4.4).
type BlockerStore struct{}

// NewBlockerStore constructs a BlockerStore. It is stateless; the type
// exists to give the Conflict/Feature Engines a stable dependency to inject.
func NewBlockerStore() *BlockerStore { return &BlockerStore{} }

// UpsertConflictBlocker inserts or updates the single unresolved
// FILE_CONFLICT_RISK blocker for (workspace, filePath). Relies on the
// partial unique index (§9 "Idempotent blocker identity") as the ON
// CONFLICT arbiter, so concurrent engine runs never read-then-write race;
// the DO UPDATE predicate makes a retry with identical severity/description
// a true no-op (no row changes, no updated_at bump). The returned bool
// reports whether a row was actually inserted or updated, so callers can
// broadcast only on real change (§8 "running the Conflict Engine twice
// back-to-back ... produces no DB deltas and no broadcasts").
func (s *BlockerStore) UpsertConflictBlocker(ctx context.Context, tx *sqlx.Tx, workspaceID, filePath string, severity model.Severity, description string) (bool, error) {
	const q = `
		INSERT INTO blockers (workspace_id, type, reference_id, severity, description, resolved)
		VALUES ($1, $2, $3, $4, $5, false)
		ON CONFLICT (workspace_id, type, reference_id) WHERE resolved = false
		DO UPDATE SET
			severity = EXCLUDED.severity,
			description = EXCLUDED.description,
			updated_at = now()
		WHERE blockers.severity IS DISTINCT FROM EXCLUDED.severity
			OR blockers.description IS DISTINCT FROM EXCLUDED.description
	`
	res, err := tx.ExecContext(ctx, q, workspaceID, model.BlockerFileConflictRisk, filePath, severity, description)
	if err != nil {
		return false, errors.Wrap(err, "upsert conflict blocker")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "upsert conflict blocker rows affected")
	}
	return n > 0, nil
}

// ResolveStaleBlockers marks every unresolved FILE_CONFLICT_RISK blocker
// resolved=true iff its referenceId (a file path) is no longer a member of
// the current conflict set, in one set-based statement (§4.3 step 6, §9
// "Set-based stale resolution"). The conflict set is the union of:
//
//   - file paths touched on >=2 distinct non-trunk branches within windowHours
//   - file paths present in >=2 open PRs
func (s *BlockerStore) ResolveStaleBlockers(ctx context.Context, tx *sqlx.Tx, workspaceID string, windowHours int) error {
	const q = `
		WITH branch_overlap AS (
			SELECT file_path FROM file_activity
			WHERE workspace_id = $1
				AND branch NOT IN ('main', 'master')
				AND updated_at > now() - make_interval(hours => $2::integer)
			GROUP BY file_path
			HAVING COUNT(DISTINCT branch) >= 2
		),
		pr_overlap AS (
			SELECT pf.file_path FROM pr_files pf
			JOIN pull_requests pr
				ON pr.workspace_id = pf.workspace_id AND pr.pr_number = pf.pr_number
			WHERE pf.workspace_id = $1 AND pr.status = 'open'
			GROUP BY pf.file_path
			HAVING COUNT(DISTINCT pf.pr_number) >= 2
		),
		conflict_set AS (
			SELECT file_path FROM branch_overlap
			UNION
			SELECT file_path FROM pr_overlap
		)
		UPDATE blockers SET resolved = true, updated_at = now()
		WHERE workspace_id = $1
			AND type = 'FILE_CONFLICT_RISK'
			AND resolved = false
			AND reference_id NOT IN (SELECT file_path FROM conflict_set)
	`
	_, err := tx.ExecContext(ctx, q, workspaceID, windowHours)
	if err != nil {
		return errors.Wrap(err, "resolve stale blockers")
	}
	return nil
}

// UpsertDependencyBlocker is the DEPENDENCY_BLOCK analogue of
// UpsertConflictBlocker; severity is fixed at HIGH (§4.2).
func (s *BlockerStore) UpsertDependencyBlocker(ctx context.Context, tx *sqlx.Tx, workspaceID, featureID, description string) error {
	const q = `
		INSERT INTO blockers (workspace_id, type, reference_id, severity, description, resolved)
		VALUES ($1, $2, $3, $4, $5, false)
		ON CONFLICT (workspace_id, type, reference_id) WHERE resolved = false
		DO UPDATE SET
			description = EXCLUDED.description,
			updated_at = now()
		WHERE blockers.description IS DISTINCT FROM EXCLUDED.description
	`
	_, err := tx.ExecContext(ctx, q, workspaceID, model.BlockerDependencyBlock, featureID, model.SeverityHigh, description)
	if err != nil {
		return errors.Wrap(err, "upsert dependency blocker")
	}
	return nil
}

// ResolveDependencyBlocker marks the DEPENDENCY_BLOCK blocker for featureID resolved.
func (s *BlockerStore) ResolveDependencyBlocker(ctx context.Context, tx *sqlx.Tx, workspaceID, featureID string) error {
	return s.resolveByTypeAndRef(ctx, tx, workspaceID, model.BlockerDependencyBlock, featureID)
}

// UpsertInactivityBlocker upserts an INACTIVITY blocker for a member
// (referenceId = userUid). Supplements §4.5's inactiveMemberCount with the
// blocker the data model names but the distilled spec never constructs
// (SPEC_FULL.md §"Supplemented behavior" item 5).
func (s *BlockerStore) UpsertInactivityBlocker(ctx context.Context, tx *sqlx.Tx, workspaceID, userUID string, severity model.Severity, description string) error {
	const q = `
		INSERT INTO blockers (workspace_id, type, reference_id, severity, description, resolved)
		VALUES ($1, $2, $3, $4, $5, false)
		ON CONFLICT (workspace_id, type, reference_id) WHERE resolved = false
		DO UPDATE SET
			severity = EXCLUDED.severity,
			description = EXCLUDED.description,
			updated_at = now()
		WHERE blockers.severity IS DISTINCT FROM EXCLUDED.severity
			OR blockers.description IS DISTINCT FROM EXCLUDED.description
	`
	_, err := tx.ExecContext(ctx, q, workspaceID, model.BlockerInactivity, userUID, severity, description)
	if err != nil {
		return errors.Wrap(err, "upsert inactivity blocker")
	}
	return nil
}

// ResolveInactivityBlocker resolves the INACTIVITY blocker for a member that became active again.
func (s *BlockerStore) ResolveInactivityBlocker(ctx context.Context, tx *sqlx.Tx, workspaceID, userUID string) error {
	return s.resolveByTypeAndRef(ctx, tx, workspaceID, model.BlockerInactivity, userUID)
}

// UpsertAlignmentDriftBlocker upserts an ALIGNMENT_DRIFT blocker
// (referenceId = featureID) produced by the external LM alignment
// collaborator (SPEC_FULL.md item 4).
func (s *BlockerStore) UpsertAlignmentDriftBlocker(ctx context.Context, tx *sqlx.Tx, workspaceID, featureID string, severity model.Severity, description string) error {
	const q = `
		INSERT INTO blockers (workspace_id, type, reference_id, severity, description, resolved)
		VALUES ($1, $2, $3, $4, $5, false)
		ON CONFLICT (workspace_id, type, reference_id) WHERE resolved = false
		DO UPDATE SET
			severity = EXCLUDED.severity,
			description = EXCLUDED.description,
			updated_at = now()
		WHERE blockers.severity IS DISTINCT FROM EXCLUDED.severity
			OR blockers.description IS DISTINCT FROM EXCLUDED.description
	`
	_, err := tx.ExecContext(ctx, q, workspaceID, model.BlockerAlignmentDrift, featureID, severity, description)
	if err != nil {
		return errors.Wrap(err, "upsert alignment drift blocker")
	}
	return nil
}

// ResolveAlignmentDriftBlocker resolves the ALIGNMENT_DRIFT blocker for a feature.
func (s *BlockerStore) ResolveAlignmentDriftBlocker(ctx context.Context, tx *sqlx.Tx, workspaceID, featureID string) error {
	return s.resolveByTypeAndRef(ctx, tx, workspaceID, model.BlockerAlignmentDrift, featureID)
}

func (s *BlockerStore) resolveByTypeAndRef(ctx context.Context, tx *sqlx.Tx, workspaceID string, t model.BlockerType, referenceID string) error {
	const q = `
		UPDATE blockers SET resolved = true, updated_at = now()
		WHERE workspace_id = $1 AND type = $2 AND reference_id = $3 AND resolved = false
	`
	_, err := tx.ExecContext(ctx, q, workspaceID, t, referenceID)
	if err != nil {
		return errors.Wrap(err, "resolve blocker")
	}
	return nil
}

// CountUnresolved returns the number of unresolved blockers of all types in a workspace (§4.5 activeBlockerTotal).
func (s *BlockerStore) CountUnresolved(ctx context.Context, q sqlx.QueryerContext, workspaceID string) (int, error) {
	var n int
	const query = `SELECT COUNT(*) FROM blockers WHERE workspace_id = $1 AND resolved = false`
	row := q.QueryRowxContext(ctx, query, workspaceID)
	if err := row.Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count unresolved blockers")
	}
	return n, nil
}

// CountUnresolvedByType returns the number of unresolved blockers of a
// specific type in a workspace (§4.5 conflictBlockerCount).
func (s *BlockerStore) CountUnresolvedByType(ctx context.Context, q sqlx.QueryerContext, workspaceID string, t model.BlockerType) (int, error) {
	var n int
	const query = `SELECT COUNT(*) FROM blockers WHERE workspace_id = $1 AND type = $2 AND resolved = false`
	row := q.QueryRowxContext(ctx, query, workspaceID, t)
	if err := row.Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count unresolved blockers by type")
	}
	return n, nil
}
