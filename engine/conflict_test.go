package engine

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/pulsegrid/intelflow/model"
	"github.com/pulsegrid/intelflow/storage"
)

var workspaceCols = []string{
	"id", "github_repo_id", "name", "dashboard_key",
	"activity_window_hours", "health_score", "created_at", "updated_at",
}

func newConflictEngineForTest(db *storage.DB, bus Broadcaster) *ConflictEngine {
	return NewConflictEngine(
		db,
		storage.NewWorkspaceStore(db),
		storage.NewFileActivityStore(db),
		storage.NewPullRequestStore(db),
		storage.NewBlockerStore(),
		bus,
		testLogger(),
	)
}

func TestConflictEngineBranchOverlapYieldsMediumSeverity(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectQuery(`FROM workspaces`).
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows(workspaceCols).
			AddRow("ws-1", int64(42), "Storefront", "dk-1", 72, 80, now, now))

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM file_activity`).
		WithArgs("ws-1", 72).
		WillReturnRows(sqlmock.NewRows([]string{"file_path", "branch_count", "branches"}).
			AddRow("pkg/checkout/cart.go", 2, []byte("{feature/a,feature/b}")))
	mock.ExpectQuery(`FROM pr_files`).
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"file_path", "pr_count"}))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("ws-1", "pkg/checkout/cart.go", 72).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO blockers`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`WITH branch_overlap AS`).
		WithArgs("ws-1", 72).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	bus := &fakeBroadcaster{}
	engine := newConflictEngineForTest(db, bus)
	upserted, err := engine.run(context.Background(), "ws-1", []string{"pkg/checkout/cart.go"}, "feature/b")
	require.NoError(t, err)
	require.Len(t, upserted, 1)
	require.Equal(t, model.SeverityMedium, upserted[0].severity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictEngineTouchingTrunkEscalatesToHigh(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectQuery(`FROM workspaces`).
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows(workspaceCols).
			AddRow("ws-1", int64(42), "Storefront", "dk-1", 72, 80, now, now))

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM file_activity`).
		WithArgs("ws-1", 72).
		WillReturnRows(sqlmock.NewRows([]string{"file_path", "branch_count", "branches"}).
			AddRow("pkg/checkout/cart.go", 2, []byte("{feature/a,feature/b}")))
	mock.ExpectQuery(`FROM pr_files`).
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"file_path", "pr_count"}))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("ws-1", "pkg/checkout/cart.go", 72).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`INSERT INTO blockers`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`WITH branch_overlap AS`).
		WithArgs("ws-1", 72).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	bus := &fakeBroadcaster{}
	engine := newConflictEngineForTest(db, bus)
	upserted, err := engine.run(context.Background(), "ws-1", []string{"pkg/checkout/cart.go"}, "feature/b")
	require.NoError(t, err)
	require.Len(t, upserted, 1)
	require.Equal(t, model.SeverityHigh, upserted[0].severity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictEngineUnchangedBlockerYieldsNoBroadcast(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectQuery(`FROM workspaces`).
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows(workspaceCols).
			AddRow("ws-1", int64(42), "Storefront", "dk-1", 72, 80, now, now))

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM file_activity`).
		WithArgs("ws-1", 72).
		WillReturnRows(sqlmock.NewRows([]string{"file_path", "branch_count", "branches"}).
			AddRow("pkg/checkout/cart.go", 2, []byte("{feature/a,feature/b}")))
	mock.ExpectQuery(`FROM pr_files`).
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows([]string{"file_path", "pr_count"}))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("ws-1", "pkg/checkout/cart.go", 72).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO blockers`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`WITH branch_overlap AS`).
		WithArgs("ws-1", 72).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	bus := &fakeBroadcaster{}
	engine := newConflictEngineForTest(db, bus)
	upserted, err := engine.run(context.Background(), "ws-1", []string{"pkg/checkout/cart.go"}, "feature/b")
	require.NoError(t, err)
	require.Empty(t, upserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConflictEngineNoFilesSkipsRun(t *testing.T) {
	db, mock := newMockDB(t)
	bus := &fakeBroadcaster{}
	engine := newConflictEngineForTest(db, bus)

	engine.Run(context.Background(), "ws-1", nil, "feature/b")

	require.Empty(t, bus.events)
	require.NoError(t, mock.ExpectationsWereMet())
}
