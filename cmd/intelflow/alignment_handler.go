package main

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/pulsegrid/intelflow/engine"
)

// alignmentCheckRequest is the body for the out-of-scope caller §2
// describes as driving the alignment analyzer "interface only" — this
// process exposes it as a plain internal endpoint rather than inventing an
// in-scope trigger condition the spec never specifies (SPEC_FULL.md item 4).
type alignmentCheckRequest struct {
	WorkspaceID          string   `json:"workspaceId"`
	FeatureID            string   `json:"featureId"`
	FeatureName          string   `json:"featureName"`
	RecentCommitMessages []string `json:"recentCommitMessages"`
}

func alignmentCheckHandler(runner *engine.AlignmentRunner, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req alignmentCheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.WorkspaceID == "" || req.FeatureID == "" {
			http.Error(w, "workspaceId and featureId are required", http.StatusBadRequest)
			return
		}

		if err := runner.TriggerAlignmentCheck(r.Context(), req.WorkspaceID, req.FeatureID, req.FeatureName, req.RecentCommitMessages); err != nil {
			log.Error("alignment check failed", zap.String("workspace_id", req.WorkspaceID), zap.String("feature_id", req.FeatureID), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
