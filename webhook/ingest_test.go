package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulsegrid/intelflow/storage"
)

var testTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeDispatcher struct {
	calls []dispatchCall
}

type dispatchCall struct {
	workspaceID   string
	modifiedFiles []string
	triggerBranch string
	commitHash    string
}

func (f *fakeDispatcher) Dispatch(workspaceID string, modifiedFiles []string, triggerBranch, commitHash string) {
	f.calls = append(f.calls, dispatchCall{workspaceID, modifiedFiles, triggerBranch, commitHash})
}

func newTestIngestor(t *testing.T, secret string) (*Ingestor, sqlmock.Sqlmock, *fakeDispatcher) {
	t.Helper()
	mockConn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	db := storage.WrapForTest(sqlx.NewDb(mockConn, "sqlmock"))

	dispatcher := &fakeDispatcher{}
	ing := NewIngestor(
		db,
		storage.NewDeliveryStore(db),
		storage.NewWorkspaceStore(db),
		storage.NewFileActivityStore(db),
		dispatcher,
		secret,
		5, 10,
		zap.NewNop(),
	)
	return ing, mock, dispatcher
}

func pushBody(ref, before, after string, added []string) []byte {
	payload := map[string]interface{}{
		"ref":    ref,
		"before": before,
		"after":  after,
		"commits": []map[string]interface{}{
			{"id": after, "added": added, "modified": []string{}, "removed": []string{}},
		},
		"repository": map[string]interface{}{"id": 42, "full_name": "acme/storefront"},
	}
	b, _ := json.Marshal(payload)
	return b
}

func TestHandleMissingHeadersReturns400(t *testing.T) {
	ing, _, _ := newTestIngestor(t, "")
	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(nil))
	w := httptest.NewRecorder()

	ing.Handle(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleNonPushEventIsIgnored(t *testing.T) {
	ing, _, _ := newTestIngestor(t, "")
	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(nil))
	req.Header.Set(headerDeliveryID, "d-1")
	req.Header.Set(headerEvent, "ping")
	w := httptest.NewRecorder()

	ing.Handle(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "ignored")
}

func TestHandleSignatureMismatchReturns401(t *testing.T) {
	ing, _, _ := newTestIngestor(t, "topsecret")
	body := pushBody("refs/heads/main", "abc", "def", []string{"a.go"})
	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set(headerDeliveryID, "d-1")
	req.Header.Set(headerEvent, "push")
	req.Header.Set(headerSignature, "sha256=deadbeef")
	w := httptest.NewRecorder()

	ing.Handle(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleDuplicateDeliveryShortCircuits(t *testing.T) {
	ing, mock, dispatcher := newTestIngestor(t, "")
	body := pushBody("refs/heads/feature/x", "abc", "def", []string{"a.go"})

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO webhook_deliveries`).
		WithArgs("d-1", "acme/storefront", "feature/x", "def").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set(headerDeliveryID, "d-1")
	req.Header.Set(headerEvent, "push")
	w := httptest.NewRecorder()

	ing.Handle(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "duplicate")
	require.Empty(t, dispatcher.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWorkspaceNotFoundShortCircuits(t *testing.T) {
	ing, mock, dispatcher := newTestIngestor(t, "")
	body := pushBody("refs/heads/feature/x", "abc", "def", []string{"a.go"})

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO webhook_deliveries`).
		WithArgs("d-1", "acme/storefront", "feature/x", "def").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`FROM workspaces`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "github_repo_id", "name", "dashboard_key",
			"activity_window_hours", "health_score", "created_at", "updated_at",
		}))
	mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set(headerDeliveryID, "d-1")
	req.Header.Set(headerEvent, "push")
	w := httptest.NewRecorder()

	ing.Handle(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "workspace_not_found")
	require.Empty(t, dispatcher.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleBranchDeletedWipesFileActivity(t *testing.T) {
	ing, mock, dispatcher := newTestIngestor(t, "")
	body := pushBody("refs/heads/feature/x", "abc", zeroSHA, nil)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO webhook_deliveries`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`FROM workspaces`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "github_repo_id", "name", "dashboard_key",
			"activity_window_hours", "health_score", "created_at", "updated_at",
		}).AddRow("ws-1", int64(42), "Storefront", "dk-1", 72, 80, testTime, testTime))
	mock.ExpectExec(`DELETE FROM file_activity`).
		WithArgs("ws-1", "feature/x").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set(headerDeliveryID, "d-1")
	req.Header.Set(headerEvent, "push")
	w := httptest.NewRecorder()

	ing.Handle(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "branch_deleted")
	require.Empty(t, dispatcher.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleNormalPushUpsertsAndDispatches(t *testing.T) {
	ing, mock, dispatcher := newTestIngestor(t, "")
	body := pushBody("refs/heads/feature/x", "abc", "def", []string{"a.go", "b.go"})

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO webhook_deliveries`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`FROM workspaces`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "github_repo_id", "name", "dashboard_key",
			"activity_window_hours", "health_score", "created_at", "updated_at",
		}).AddRow("ws-1", int64(42), "Storefront", "dk-1", 72, 80, testTime, testTime))
	mock.ExpectExec(`INSERT INTO file_activity`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE webhook_deliveries SET duration_ms`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewReader(body))
	req.Header.Set(headerDeliveryID, "d-1")
	req.Header.Set(headerEvent, "push")
	w := httptest.NewRecorder()

	ing.Handle(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "processing")
	require.Len(t, dispatcher.calls, 1)
	require.Equal(t, "ws-1", dispatcher.calls[0].workspaceID)
	require.ElementsMatch(t, []string{"a.go", "b.go"}, dispatcher.calls[0].modifiedFiles)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifySignatureAcceptsMatchingDigest(t *testing.T) {
	secret := "topsecret"
	body := []byte(`{"ref":"refs/heads/main"}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	header := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	require.True(t, verifySignature(secret, body, header))
	require.False(t, verifySignature(secret, body, "sha256=wrong"))
	require.True(t, verifySignature("", body, "anything"))
}
