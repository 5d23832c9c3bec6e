package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jmoiron/sqlx"

	"github.com/pulsegrid/intelflow/model"
)

// MemberStore persists workspace-scoped Member rows (§3).
type MemberStore struct{ db *DB }

func NewMemberStore(db *DB) *MemberStore { return &MemberStore{db: db} }

// ListAll returns every member of a workspace.
func (s *MemberStore) ListAll(ctx context.Context, q sqlx.QueryerContext, workspaceID string) ([]model.Member, error) {
	const query = `
		SELECT workspace_id, user_uid, username, last_active
		FROM members WHERE workspace_id = $1
	`
	var members []model.Member
	if err := sqlx.SelectContext(ctx, q, &members, query, workspaceID); err != nil {
		return nil, errors.Wrap(err, "list members")
	}
	return members, nil
}

// Touch records the canonical-lowercase username's last activity, inserting
// the member if it is not yet known to the workspace.
func (s *MemberStore) Touch(ctx context.Context, exec sqlx.ExtContext, workspaceID, userUID, username string, at time.Time) error {
	const q = `
		INSERT INTO members (workspace_id, user_uid, username, last_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace_id, user_uid)
		DO UPDATE SET username = EXCLUDED.username, last_active = EXCLUDED.last_active
	`
	_, err := exec.ExecContext(ctx, q, workspaceID, userUID, strings.ToLower(username), at)
	if err != nil {
		return errors.Wrap(err, "touch member")
	}
	return nil
}

// ResolveWorkspace finds the workspace a userUid most recently touched.
// The Event Bus's real subscriber-to-workspace binding happens after
// application-level authentication, out of scope per §4.7; this is the
// simplest faithful stand-in a deployment can wire the /ws handler to
// until that authentication layer exists.
func (s *MemberStore) ResolveWorkspace(ctx context.Context, userUID string) (string, bool, error) {
	const query = `
		SELECT workspace_id FROM members
		WHERE user_uid = $1
		ORDER BY last_active DESC
		LIMIT 1
	`
	var workspaceID string
	if err := s.db.GetContext(ctx, &workspaceID, query, userUID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, "resolve workspace for member")
	}
	return workspaceID, true, nil
}

// ListInactive returns members with no FileActivity-qualifying recency —
// i.e. last_active older than the workspace's activity window (§4.5 inactiveMemberCount).
func (s *MemberStore) ListInactive(ctx context.Context, q sqlx.QueryerContext, workspaceID string, windowHours int) ([]model.Member, error) {
	const query = `
		SELECT workspace_id, user_uid, username, last_active
		FROM members
		WHERE workspace_id = $1 AND last_active <= now() - make_interval(hours => $2::integer)
	`
	var members []model.Member
	if err := sqlx.SelectContext(ctx, q, &members, query, workspaceID, windowHours); err != nil {
		return nil, errors.Wrap(err, "list inactive members")
	}
	return members, nil
}
