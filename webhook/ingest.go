// Package webhook implements the Webhook Ingestor (C6): signature
// verification, deduplication, push classification, FileActivity upsert,
// and async dispatch into the Conflict/Feature/Health engine chain (§4.6).
package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pulsegrid/intelflow/metrics"
	"github.com/pulsegrid/intelflow/storage"
)

const (
	headerDeliveryID = "X-GitHub-Delivery"
	headerEvent      = "X-GitHub-Event"
	headerSignature  = "X-Hub-Signature-256"
)

// Dispatcher is the narrow interface C6 needs from the async engine
// scheduler. Defined at the point of use, the way engine.Broadcaster is,
// so webhook never imports engine; *engine.Dispatcher satisfies this
// structurally.
type Dispatcher interface {
	Dispatch(workspaceID string, modifiedFiles []string, triggerBranch, commitHash string)
}

// Ingestor implements C6 end to end, wired with a configured HMAC secret
// and a per-source-address rate limiter (§5).
type Ingestor struct {
	db         *storage.DB
	deliveries *storage.DeliveryStore
	workspaces *storage.WorkspaceStore
	files      *storage.FileActivityStore
	dispatcher Dispatcher
	secret     string
	limiter    *sourceLimiter
	log        *zap.Logger
}

// NewIngestor wires C6's storage, dispatch, and rate-limit dependencies.
// ratePerSecond/burst configure the per-source-address limiter (§5).
func NewIngestor(db *storage.DB, deliveries *storage.DeliveryStore, workspaces *storage.WorkspaceStore, files *storage.FileActivityStore, dispatcher Dispatcher, secret string, ratePerSecond float64, burst int, log *zap.Logger) *Ingestor {
	return &Ingestor{
		db:         db,
		deliveries: deliveries,
		workspaces: workspaces,
		files:      files,
		dispatcher: dispatcher,
		secret:     secret,
		limiter:    newSourceLimiter(rateLimit(ratePerSecond), burst),
		log:        log,
	}
}

// Handle implements POST /webhook/github (§6). Steps 1-4 of §4.6 (header
// gate, event filter, signature, payload validation) run before any
// transaction; steps 5-11 run inside one transaction. It then ACKs and
// schedules the engine chain.
func (ing *Ingestor) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { metrics.WebhookDuration.Observe(time.Since(start).Seconds()) }()

	deliveryID := r.Header.Get(headerDeliveryID)
	event := r.Header.Get(headerEvent)
	if deliveryID == "" || event == "" {
		jsonError(w, "missing delivery id or event type header", http.StatusBadRequest)
		return
	}

	if event != "push" {
		metrics.WebhookDeliveries.WithLabelValues("ignored").Inc()
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		jsonError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	verified := verifySignature(ing.secret, body, r.Header.Get(headerSignature))
	if !verified {
		jsonError(w, "signature verification failed", http.StatusUnauthorized)
		return
	}

	// A request only earns the rate-limit exemption when it carried a
	// signature actually checked against a configured secret (§5).
	if ing.secret == "" || r.Header.Get(headerSignature) == "" {
		if !ing.limiter.allow(sourceAddr(r)) {
			jsonError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}

	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil || !payload.valid() {
		jsonError(w, "invalid push payload", http.StatusBadRequest)
		return
	}

	branch := payload.branch()
	commitSHA := payload.commitSHA()

	ctx := r.Context()
	tx, err := ing.db.BeginTxx(ctx, nil)
	if err != nil {
		ing.log.Error("begin webhook tx", zap.Error(err))
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := ing.deliveries.InsertIfAbsent(ctx, tx, deliveryID, payload.Repository.FullName, branch, commitSHA)
	if err != nil {
		ing.log.Error("insert delivery", zap.Error(err))
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !inserted {
		_ = tx.Commit()
		metrics.WebhookDeliveries.WithLabelValues("duplicate").Inc()
		jsonResponse(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	ws, err := ing.workspaces.GetByGithubRepoIDTx(ctx, tx, payload.Repository.ID)
	if err != nil {
		ing.log.Error("resolve workspace", zap.Error(err))
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if ws == nil {
		_ = tx.Commit()
		metrics.WebhookDeliveries.WithLabelValues("workspace_not_found").Inc()
		jsonResponse(w, http.StatusOK, map[string]string{"status": "workspace_not_found"})
		return
	}

	kind := payload.classify()
	if kind == pushBranchDeleted {
		if err := ing.files.DeleteBranch(ctx, tx, ws.ID, branch); err != nil {
			ing.log.Error("delete branch file activity", zap.Error(err))
			jsonError(w, "internal error", http.StatusInternalServerError)
			return
		}
		if err := tx.Commit(); err != nil {
			ing.log.Error("commit branch delete", zap.Error(err))
			jsonError(w, "internal error", http.StatusInternalServerError)
			return
		}
		metrics.WebhookDeliveries.WithLabelValues("branch_deleted").Inc()
		jsonResponse(w, http.StatusOK, map[string]string{"status": "branch_deleted"})
		return
	}

	modifiedFiles := payload.modifiedFiles()
	if err := ing.files.BatchUpsert(ctx, tx, ws.ID, branch, commitSHA, modifiedFiles, start); err != nil {
		ing.log.Error("batch upsert file activity", zap.Error(err))
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	durationMs := time.Since(start).Milliseconds()
	if err := ing.deliveries.RecordDuration(ctx, tx, deliveryID, durationMs); err != nil {
		ing.log.Error("record delivery duration", zap.Error(err))
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(); err != nil {
		ing.log.Error("commit webhook tx", zap.Error(err))
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	metrics.WebhookDeliveries.WithLabelValues("processing").Inc()
	jsonResponse(w, http.StatusOK, map[string]string{"status": "processing", "deliveryId": deliveryID})

	ing.dispatcher.Dispatch(ws.ID, modifiedFiles, branch, commitSHA)
}

func jsonResponse(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	jsonResponse(w, code, map[string]string{"error": message})
}
