package engine

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulsegrid/intelflow/storage"
)

// newMockDB wires a storage.DB over a go-sqlmock connection, the same
// pattern the rest of the pack (jordigilh-kubernaut) uses to unit-test
// storage-adjacent logic without a live database.
func newMockDB(t *testing.T) (*storage.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockConn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(mockConn, "sqlmock")
	db := storage.WrapForTest(sqlxDB)
	return db, mock
}

type fakeBroadcaster struct {
	events []broadcastCall
}

type broadcastCall struct {
	workspaceID string
	event       interface{}
}

func (f *fakeBroadcaster) Broadcast(workspaceID string, event interface{}) {
	f.events = append(f.events, broadcastCall{workspaceID: workspaceID, event: event})
}

func testLogger() *zap.Logger { return zap.NewNop() }
