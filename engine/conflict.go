// Package engine implements the Conflict, Feature, and Health engines
// (C3–C5) plus the per-workspace async dispatcher that chains them after
// the Webhook Ingestor's ACK (§4.3–§4.5, §9).
package engine

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/pulsegrid/intelflow/metrics"
	"github.com/pulsegrid/intelflow/model"
	"github.com/pulsegrid/intelflow/storage"
)

// Broadcaster is the narrow interface engines need from the Event Bus (C7).
// Defined at the point of use so engine never imports bus; bus.Hub
// satisfies this structurally.
type Broadcaster interface {
	Broadcast(workspaceID string, event interface{})
}

// ConflictEngine implements C3: per-workspace transactional computation of
// cross-branch and cross-PR file overlaps into FILE_CONFLICT_RISK blockers.
type ConflictEngine struct {
	db        *storage.DB
	workspace *storage.WorkspaceStore
	files     *storage.FileActivityStore
	prs       *storage.PullRequestStore
	blockers  *storage.BlockerStore
	bus       Broadcaster
	log       *zap.Logger
}

// NewConflictEngine wires C3's storage and fan-out dependencies.
func NewConflictEngine(db *storage.DB, workspace *storage.WorkspaceStore, files *storage.FileActivityStore, prs *storage.PullRequestStore, blockers *storage.BlockerStore, bus Broadcaster, log *zap.Logger) *ConflictEngine {
	return &ConflictEngine{db: db, workspace: workspace, files: files, prs: prs, blockers: blockers, bus: bus, log: log}
}

type mergedSignal struct {
	filePath    string
	branchCount int
	branches    []string
	touchesMain bool
	prCount     int
}

// Run executes §4.3 end to end. It exits immediately if modifiedFiles is
// empty. All reads/writes happen in one transaction; on any failure the
// transaction rolls back and the error is logged, never propagated — the
// webhook has already ACKed (§4.3 "Failure semantics", §7).
func (e *ConflictEngine) Run(ctx context.Context, workspaceID string, modifiedFiles []string, triggerBranch string) {
	if len(modifiedFiles) == 0 {
		return
	}

	start := time.Now()
	upserted, err := e.run(ctx, workspaceID, modifiedFiles, triggerBranch)
	metrics.EngineRunDuration.WithLabelValues("conflict").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EngineRunErrors.WithLabelValues("conflict").Inc()
		e.log.Error("conflict engine run failed, will reprocess on next delivery",
			zap.String("workspace_id", workspaceID), zap.Error(err))
		return
	}

	// I6: broadcast only after the transaction that produced these
	// blockers has committed.
	for _, u := range upserted {
		e.bus.Broadcast(workspaceID, model.NewConflictWarningEvent(u.filePath, u.branches, u.severity))
		metrics.BusBroadcasts.WithLabelValues(model.EventConflictWarning).Inc()
	}
}

type upsertedConflict struct {
	filePath string
	severity model.Severity
	branches []string
}

func (e *ConflictEngine) run(ctx context.Context, workspaceID string, modifiedFiles []string, triggerBranch string) ([]upsertedConflict, error) {
	ws, err := e.workspace.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, errors.Wrap(err, "load workspace")
	}
	windowHours := model.DefaultActivityWindowHours
	if ws != nil {
		windowHours = ws.ActivityWindowHours
		if windowHours <= 0 {
			windowHours = model.DefaultActivityWindowHours
		}
	}

	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	branchRows, err := e.files.BranchOverlap(ctx, tx, workspaceID, windowHours)
	if err != nil {
		return nil, err
	}
	prRows, err := e.prs.PROverlap(ctx, tx, workspaceID)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*mergedSignal)
	for _, r := range branchRows {
		merged[r.FilePath] = &mergedSignal{filePath: r.FilePath, branchCount: r.BranchCount, branches: r.Branches}
	}
	for _, r := range prRows {
		sig, ok := merged[r.FilePath]
		if !ok {
			sig = &mergedSignal{filePath: r.FilePath}
			merged[r.FilePath] = sig
		}
		sig.prCount = r.PRCount
	}

	// §9 trunk-touch decision: an auxiliary existence check against the
	// un-filtered rows, independent of the trunk-excluded overlap grouping.
	for _, sig := range merged {
		touches, err := e.files.TouchesTrunk(ctx, tx, workspaceID, sig.filePath, windowHours)
		if err != nil {
			return nil, err
		}
		sig.touchesMain = touches
	}

	var upserted []upsertedConflict
	for _, sig := range merged {
		severity := model.ClassifySeverity(model.ConflictSignals{
			BranchCount: sig.branchCount,
			PRCount:     sig.prCount,
			TouchesMain: sig.touchesMain,
		})
		description := describeConflict(sig)

		changed, err := e.blockers.UpsertConflictBlocker(ctx, tx, workspaceID, sig.filePath, severity, description)
		if err != nil {
			return nil, err
		}
		if changed {
			upserted = append(upserted, upsertedConflict{filePath: sig.filePath, severity: severity, branches: sig.branches})
		}
	}

	if err := e.blockers.ResolveStaleBlockers(ctx, tx, workspaceID, windowHours); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit conflict engine tx")
	}

	return upserted, nil
}

func describeConflict(sig *mergedSignal) string {
	switch {
	case sig.prCount >= 2:
		return "file is modified by multiple open pull requests"
	case sig.touchesMain:
		return "file overlaps with the integration trunk"
	case sig.branchCount >= 2:
		return "file is actively modified on multiple branches"
	default:
		return "file shows early signs of concurrent modification"
	}
}
