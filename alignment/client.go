// Package alignment implements the external LM alignment analyzer (§2 "interface
// only", §5 timeout/retry/circuit-breaker/fallback contract, §7 UpstreamUnavailable).
// No operation in the distilled spec constructs an ALIGNMENT_DRIFT blocker; this
// package builds the collaborator and its failure machinery so the blocker type
// and its timeout/rate-limit contract are exercised, leaving the trigger condition
// to whatever out-of-scope caller the spec leaves unspecified (SPEC_FULL.md item 4).
package alignment

import (
	"context"
	"errors"

	"github.com/pulsegrid/intelflow/model"
)

// ErrUpstreamUnavailable is returned by Analyze when the LM endpoint times
// out, returns 5xx, or the breaker is open (§7 "UpstreamUnavailable").
var ErrUpstreamUnavailable = errors.New("alignment: upstream unavailable")

// Request describes the feature the caller wants checked for drift against
// its stated intent. RecentCommitMessages is the caller-supplied evidence;
// this package does not derive it from storage (no operation names that
// derivation, per SPEC_FULL.md item 4).
type Request struct {
	WorkspaceID          string
	FeatureID            string
	FeatureName          string
	RecentCommitMessages []string
}

// Result is the LM's alignment verdict for a Request.
type Result struct {
	Drifted     bool
	Severity    model.Severity
	Description string
}

// Client is the narrow surface C2/the AlignmentRunner need from the
// upstream analyzer. Defined at point of use so callers depend on this
// interface, not the concrete Anthropic-backed implementation.
type Client interface {
	Analyze(ctx context.Context, req Request) (*Result, error)
}

// fallbackResult is the deterministic, non-drifted verdict returned
// alongside ErrUpstreamUnavailable (§7): callers must not treat a timeout
// as evidence of drift.
func fallbackResult() *Result {
	return &Result{Drifted: false, Severity: model.SeverityLow, Description: "alignment check unavailable"}
}
