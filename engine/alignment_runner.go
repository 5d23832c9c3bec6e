package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/pulsegrid/intelflow/alignment"
	"github.com/pulsegrid/intelflow/storage"
)

// AlignmentRunner exposes TriggerAlignmentCheck, the entry point an
// out-of-scope caller (§2 "interface only") invokes to ask whether a
// feature's recent activity has drifted from its stated intent
// (SPEC_FULL.md item 4). No operation in §4 calls this; it exists so the
// ALIGNMENT_DRIFT blocker and the LM collaborator's full
// timeout/retry/breaker/fallback contract (§5, §7) are exercised.
type AlignmentRunner struct {
	db       *storage.DB
	blockers *storage.BlockerStore
	client   alignment.Client
	log      *zap.Logger
}

// NewAlignmentRunner wires the alignment collaborator to the Blocker Store.
func NewAlignmentRunner(db *storage.DB, blockers *storage.BlockerStore, client alignment.Client, log *zap.Logger) *AlignmentRunner {
	return &AlignmentRunner{db: db, blockers: blockers, client: client, log: log}
}

// TriggerAlignmentCheck analyzes featureID against recentCommitMessages and
// upserts or resolves its ALIGNMENT_DRIFT blocker to match the verdict, all
// inside one transaction (I1). A fallback verdict from
// alignment.ErrUpstreamUnavailable resolves any existing blocker rather
// than inventing one from absence of evidence — an unreachable LM is not
// itself proof of drift.
func (r *AlignmentRunner) TriggerAlignmentCheck(ctx context.Context, workspaceID, featureID, featureName string, recentCommitMessages []string) error {
	result, err := r.client.Analyze(ctx, alignment.Request{
		WorkspaceID:          workspaceID,
		FeatureID:            featureID,
		FeatureName:          featureName,
		RecentCommitMessages: recentCommitMessages,
	})
	if result == nil {
		return err
	}
	if err != nil {
		r.log.Warn("alignment check fell back", zap.String("workspace_id", workspaceID), zap.String("feature_id", featureID), zap.Error(err))
	}

	tx, txErr := r.db.BeginTxx(ctx, nil)
	if txErr != nil {
		r.log.Error("begin alignment tx", zap.Error(txErr))
		return txErr
	}
	defer func() { _ = tx.Rollback() }()

	if result.Drifted {
		if upsertErr := r.blockers.UpsertAlignmentDriftBlocker(ctx, tx, workspaceID, featureID, result.Severity, result.Description); upsertErr != nil {
			return upsertErr
		}
	} else {
		if resolveErr := r.blockers.ResolveAlignmentDriftBlocker(ctx, tx, workspaceID, featureID); resolveErr != nil {
			return resolveErr
		}
	}

	return tx.Commit()
}
