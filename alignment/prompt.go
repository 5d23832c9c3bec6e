package alignment

import (
	"fmt"
	"strings"
)

// systemPrompt is the static instruction prefix, analogous to the teacher's
// PromptBuilder static prefix (agents/anthropic/prompt_builder.go): fixed
// across every request, so it is the part worth prompt-caching.
const systemPrompt = `You review whether a team's recent commit activity on a
feature still matches that feature's stated intent. Given the feature name
and a list of recent commit messages, decide if the work has drifted from
what the feature name implies. Respond with exactly one line in the form:
DRIFTED=<true|false> SEVERITY=<LOW|MEDIUM|HIGH> REASON=<one sentence>`

// buildUserPrompt renders the dynamic, per-request portion: the feature
// under review plus the evidence to judge it against. Kept as a plain
// string (no template engine) since the request shape here is fixed,
// unlike the teacher's multi-agent, multi-template builder.
func buildUserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Feature: %s\n", req.FeatureName)
	if len(req.RecentCommitMessages) == 0 {
		b.WriteString("Recent commits: (none supplied)\n")
		return b.String()
	}
	b.WriteString("Recent commits:\n")
	for _, msg := range req.RecentCommitMessages {
		fmt.Fprintf(&b, "- %s\n", msg)
	}
	return b.String()
}
