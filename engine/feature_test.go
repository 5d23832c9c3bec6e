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

var featureCols = []string{
	"id", "workspace_id", "name", "priority", "status",
	"completion_percentage", "owner", "created_at", "updated_at",
}

func TestFeatureEngineUnblocksWhenDependenciesComplete(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM features`).
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows(featureCols).
			AddRow("feat-2", "ws-1", "Checkout flow", model.PriorityHigh, model.FeatureBlocked, 40, nil, now, now))
	mock.ExpectQuery(`FROM feature_dependencies`).
		WithArgs("ws-1", "feat-2").
		WillReturnRows(sqlmock.NewRows(featureCols))
	mock.ExpectExec(`UPDATE features SET status`).
		WithArgs("ws-1", "feat-2", model.FeatureActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE blockers SET resolved = true`).
		WithArgs("ws-1", model.BlockerDependencyBlock, "feat-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET completion_percentage`).
		WithArgs("ws-1", "feat-2", model.MaxAutomaticCompletion, model.PerCommitCompletionDelta).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	engine := newFeatureEngineForTest(db)
	transitions, err := engine.run(context.Background(), "ws-1", "abc123")
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	require.True(t, transitions[0].becameUnblocked)
	require.False(t, transitions[0].becameBlocked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeatureEngineBlocksOnIncompleteDependency(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM features`).
		WithArgs("ws-1").
		WillReturnRows(sqlmock.NewRows(featureCols).
			AddRow("feat-2", "ws-1", "Checkout flow", model.PriorityHigh, model.FeatureActive, 10, nil, now, now))
	mock.ExpectQuery(`FROM feature_dependencies`).
		WithArgs("ws-1", "feat-2").
		WillReturnRows(sqlmock.NewRows(featureCols).
			AddRow("feat-1", "ws-1", "Payments API", model.PriorityHigh, model.FeatureActive, 50, nil, now, now))
	mock.ExpectExec(`UPDATE features SET status`).
		WithArgs("ws-1", "feat-2", model.FeatureBlocked).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO blockers`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`SET completion_percentage`).
		WithArgs("ws-1", "feat-2", model.MaxAutomaticCompletion, model.PerCommitCompletionDelta).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	engine := newFeatureEngineForTest(db)
	transitions, err := engine.run(context.Background(), "ws-1", "abc123")
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	require.True(t, transitions[0].becameBlocked)
	require.Equal(t, []string{"Payments API"}, transitions[0].blockedByNames)
	require.NoError(t, mock.ExpectationsWereMet())
}

func newFeatureEngineForTest(db *storage.DB) *FeatureEngine {
	features := storage.NewFeatureStore(db)
	blockers := storage.NewBlockerStore()
	health := &HealthEngine{log: testLogger()}
	return NewFeatureEngine(db, features, blockers, &fakeBroadcaster{}, health, testLogger())
}
