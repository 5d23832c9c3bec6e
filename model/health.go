package model

import "math"

// HealthInputs are the aggregation-query outputs the Health Engine (§4.5)
// recomputes the workspace score from.
type HealthInputs struct {
	FeatureCompletionAvg float64
	ActiveBlockerTotal   int
	ConflictBlockerCount int
	InactiveMemberCount  int
}

// HealthScore applies the §4.5 formula, clamped to [0,100] and rounded half-up:
//
//	raw  = 0.4*featureCompletionAvg - 5.0*activeBlockerTotal
//	     - 3.0*conflictBlockerCount - 5.0*inactiveMemberCount
//	score = clamp(round(raw), 0, 100)
func HealthScore(in HealthInputs) int {
	raw := 0.4*in.FeatureCompletionAvg -
		5.0*float64(in.ActiveBlockerTotal) -
		3.0*float64(in.ConflictBlockerCount) -
		5.0*float64(in.InactiveMemberCount)

	rounded := math.Floor(raw + 0.5)
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return int(rounded)
}

// RiskTier maps a health score to the §4.5 risk tier: >=80 HEALTHY, >=50 WARNING, else CRITICAL.
func RiskTier(score int) RiskLevel {
	switch {
	case score >= 80:
		return RiskHealthy
	case score >= 50:
		return RiskWarning
	default:
		return RiskCritical
	}
}
