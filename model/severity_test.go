package model

import "testing"

func TestClassifySeverity(t *testing.T) {
	cases := []struct {
		name string
		in   ConflictSignals
		want Severity
	}{
		{"two open PRs, otherwise quiet", ConflictSignals{BranchCount: 1, PRCount: 2, TouchesMain: false}, SeverityHigh},
		{"touches trunk escalates regardless of branch count", ConflictSignals{BranchCount: 1, PRCount: 0, TouchesMain: true}, SeverityHigh},
		{"three branches, no PRs, no trunk", ConflictSignals{BranchCount: 3, PRCount: 0, TouchesMain: false}, SeverityHigh},
		{"two branches is medium", ConflictSignals{BranchCount: 2, PRCount: 0, TouchesMain: false}, SeverityMedium},
		{"single branch single PR is low", ConflictSignals{BranchCount: 1, PRCount: 1, TouchesMain: false}, SeverityLow},
		{"zero signals is low", ConflictSignals{}, SeverityLow},
		{"PR precedence beats branch count", ConflictSignals{BranchCount: 1, PRCount: 2, TouchesMain: false}, SeverityHigh},
		{"trunk precedence beats medium branch count", ConflictSignals{BranchCount: 2, PRCount: 0, TouchesMain: true}, SeverityHigh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifySeverity(tc.in)
			if got != tc.want {
				t.Errorf("ClassifySeverity(%+v) = %s, want %s", tc.in, got, tc.want)
			}
		})
	}
}
