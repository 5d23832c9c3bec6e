package webhook

import "strings"

// zeroSHA is the 40-zero sentinel Git/GitHub use for a non-existent ref
// endpoint, identifying branch create/delete pushes (§4.6 step 7).
const zeroSHA = "0000000000000000000000000000000000000000"

// pushPayload is the subset of a GitHub push event this pipeline reads
// (§6 "Inbound HTTP — webhook").
type pushPayload struct {
	Ref        string       `json:"ref"`
	Before     string       `json:"before"`
	After      string       `json:"after"`
	Commits    []commitInfo `json:"commits"`
	HeadCommit *commitInfo  `json:"head_commit"`
	Repository repository   `json:"repository"`
}

type commitInfo struct {
	ID       string   `json:"id"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

type repository struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

func (p pushPayload) valid() bool {
	return p.Ref != "" && p.After != "" && p.Repository.ID != 0 && p.Repository.FullName != ""
}

func (p pushPayload) branch() string {
	const prefix = "refs/heads/"
	if strings.HasPrefix(p.Ref, prefix) {
		return strings.TrimPrefix(p.Ref, prefix)
	}
	return p.Ref
}

type pushKind int

const (
	pushNormal pushKind = iota
	pushBranchDeleted
	pushBranchCreated
	pushForce
)

// classify implements §4.6 step 7's push classification.
func (p pushPayload) classify() pushKind {
	switch {
	case p.After == zeroSHA:
		return pushBranchDeleted
	case p.Before == zeroSHA:
		return pushBranchCreated
	case len(p.Commits) == 0:
		return pushForce
	default:
		return pushNormal
	}
}

// commitSHA is the commit hash to record on FileActivity/WebhookDelivery:
// the head commit's id when the payload carries one, otherwise the last
// entry of Commits, otherwise After (§4.6 step 8).
func (p pushPayload) commitSHA() string {
	if p.HeadCommit != nil {
		return p.HeadCommit.ID
	}
	if n := len(p.Commits); n > 0 {
		return p.Commits[n-1].ID
	}
	return p.After
}

// modifiedFiles is the union of added/modified/removed across every
// commit relevant to this push, or the head commit alone on a force-push
// (§4.6 step 8).
func (p pushPayload) modifiedFiles() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(paths []string) {
		for _, path := range paths {
			if !seen[path] {
				seen[path] = true
				out = append(out, path)
			}
		}
	}

	if p.classify() == pushForce {
		if p.HeadCommit != nil {
			add(p.HeadCommit.Added)
			add(p.HeadCommit.Modified)
			add(p.HeadCommit.Removed)
		}
		return out
	}

	for _, c := range p.Commits {
		add(c.Added)
		add(c.Modified)
		add(c.Removed)
	}
	return out
}
