package model

// ConflictSignals is the per-file input to the Severity Classifier (§4.1).
type ConflictSignals struct {
	BranchCount int
	PRCount     int
	TouchesMain bool
}

// ClassifySeverity is a pure, deterministic mapping of conflict signals to a
// severity tier. Precedence (first match wins) follows §4.1 exactly:
//
//  1. prCount >= 2        -> HIGH (two open PRs touching the same file)
//  2. touchesMain          -> HIGH (any overlap with the integration trunk)
//  3. branchCount >= 3     -> HIGH
//  4. branchCount == 2     -> MEDIUM
//  5. otherwise            -> LOW
func ClassifySeverity(s ConflictSignals) Severity {
	switch {
	case s.PRCount >= 2:
		return SeverityHigh
	case s.TouchesMain:
		return SeverityHigh
	case s.BranchCount >= 3:
		return SeverityHigh
	case s.BranchCount == 2:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
