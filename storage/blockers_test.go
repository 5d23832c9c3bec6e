package storage

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/pulsegrid/intelflow/model"
)

func newMockTx(t *testing.T) (*sqlx.Tx, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	db := sqlx.NewDb(mockDB, "sqlmock")
	mock.ExpectBegin()
	tx, err := db.Beginx()
	require.NoError(t, err)

	return tx, mock, func() { _ = mockDB.Close() }
}

func TestUpsertConflictBlockerIssuesExpectedStatement(t *testing.T) {
	tx, mock, closeFn := newMockTx(t)
	defer closeFn()

	store := NewBlockerStore()

	mock.ExpectExec(`INSERT INTO blockers`).
		WithArgs("ws-1", model.BlockerFileConflictRisk, "src/a.ts", model.SeverityHigh, "branch overlap").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	changed, err := store.UpsertConflictBlocker(context.Background(), tx, "ws-1", "src/a.ts", model.SeverityHigh, "branch overlap")
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertConflictBlockerNoOpWhenUnchanged(t *testing.T) {
	tx, mock, closeFn := newMockTx(t)
	defer closeFn()

	store := NewBlockerStore()

	mock.ExpectExec(`INSERT INTO blockers`).
		WithArgs("ws-1", model.BlockerFileConflictRisk, "src/a.ts", model.SeverityHigh, "branch overlap").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	changed, err := store.UpsertConflictBlocker(context.Background(), tx, "ws-1", "src/a.ts", model.SeverityHigh, "branch overlap")
	require.NoError(t, err)
	require.False(t, changed)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveStaleBlockersIsASingleStatement(t *testing.T) {
	tx, mock, closeFn := newMockTx(t)
	defer closeFn()

	store := NewBlockerStore()

	mock.ExpectExec(`UPDATE blockers SET resolved = true`).
		WithArgs("ws-1", 72).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := store.ResolveStaleBlockers(context.Background(), tx, "ws-1", 72)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertDependencyBlockerFixesSeverityHigh(t *testing.T) {
	tx, mock, closeFn := newMockTx(t)
	defer closeFn()

	store := NewBlockerStore()

	mock.ExpectExec(`INSERT INTO blockers`).
		WithArgs("ws-1", model.BlockerDependencyBlock, "feat-2", model.SeverityHigh, "blocked by feat-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.UpsertDependencyBlocker(context.Background(), tx, "ws-1", "feat-2", "blocked by feat-1")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveDependencyBlocker(t *testing.T) {
	tx, mock, closeFn := newMockTx(t)
	defer closeFn()

	store := NewBlockerStore()

	mock.ExpectExec(`UPDATE blockers SET resolved = true`).
		WithArgs("ws-1", model.BlockerDependencyBlock, "feat-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.ResolveDependencyBlocker(context.Background(), tx, "ws-1", "feat-2")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
