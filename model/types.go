// Package model defines the core entities of the event-to-intelligence
// pipeline and the pure, I/O-free logic that operates on them.
package model

import "time"

// Priority ranks a Feature's importance.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// FeatureStatus is the lifecycle state of a Feature.
type FeatureStatus string

const (
	FeatureActive   FeatureStatus = "ACTIVE"
	FeatureBlocked  FeatureStatus = "BLOCKED"
	FeatureComplete FeatureStatus = "COMPLETE"
)

// Severity is the output of the Severity Classifier (C1).
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// BlockerType discriminates the Blocker union (§3).
type BlockerType string

const (
	BlockerFileConflictRisk BlockerType = "FILE_CONFLICT_RISK"
	BlockerDependencyBlock  BlockerType = "DEPENDENCY_BLOCK"
	BlockerInactivity       BlockerType = "INACTIVITY"
	BlockerAlignmentDrift   BlockerType = "ALIGNMENT_DRIFT"
)

// RiskLevel is the Health Engine's risk tier (§4.5).
type RiskLevel string

const (
	RiskHealthy  RiskLevel = "HEALTHY"
	RiskWarning  RiskLevel = "WARNING"
	RiskCritical RiskLevel = "CRITICAL"
)

// PRStatus is the lifecycle state of a tracked PullRequest.
type PRStatus string

const (
	PROpen   PRStatus = "open"
	PRMerged PRStatus = "merged"
	PRClosed PRStatus = "closed"
)

// TrunkBranches is the hard-coded integration-trunk set (§6 "Trunk branch names").
var TrunkBranches = map[string]bool{
	"main":   true,
	"master": true,
}

// IsTrunk reports whether branch is a member of the trunk set.
func IsTrunk(branch string) bool {
	return TrunkBranches[branch]
}

// DefaultActivityWindowHours is used when a Workspace has no configured window (§3).
const DefaultActivityWindowHours = 72

// PerCommitCompletionDelta is the fixed bump applied by the Feature Engine (§4.4 step 4).
const PerCommitCompletionDelta = 5

// MaxAutomaticCompletion is the cap below 100 reserved for an explicit
// merge-to-trunk event that this pipeline does not implement (§4.4, §9).
const MaxAutomaticCompletion = 95

// Workspace is the tenant boundary; every pipeline read/write is scoped to one (I5).
type Workspace struct {
	ID                  string    `db:"id" json:"id"`
	GithubRepoID        int64     `db:"github_repo_id" json:"githubRepoId"`
	Name                string    `db:"name" json:"name"`
	DashboardKey        string    `db:"dashboard_key" json:"-"`
	ActivityWindowHours int       `db:"activity_window_hours" json:"activityWindowHours"`
	HealthScore         int       `db:"health_score" json:"healthScore"`
	CreatedAt           time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time `db:"updated_at" json:"updatedAt"`
}

// ActivityWindow returns the workspace's configured window, or the default.
func (w Workspace) ActivityWindow() time.Duration {
	hours := w.ActivityWindowHours
	if hours <= 0 {
		hours = DefaultActivityWindowHours
	}
	return time.Duration(hours) * time.Hour
}

// Member is a workspace-scoped contributor.
type Member struct {
	WorkspaceID string    `db:"workspace_id" json:"workspaceId"`
	UserUID     string    `db:"user_uid" json:"userUid"`
	Username    string    `db:"username" json:"username"`
	LastActive  time.Time `db:"last_active" json:"lastActive"`
}

// Feature is a workspace-scoped unit of planned work, mutated by C4 only.
type Feature struct {
	ID                  string        `db:"id" json:"id"`
	WorkspaceID         string        `db:"workspace_id" json:"workspaceId"`
	Name                string        `db:"name" json:"name"`
	Priority            Priority      `db:"priority" json:"priority"`
	Status              FeatureStatus `db:"status" json:"status"`
	CompletionPercentage int          `db:"completion_percentage" json:"completionPercentage"`
	Owner               *string       `db:"owner" json:"owner,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updatedAt"`
}

// FeatureDependency is a directed feature -> depends_on_feature edge (I2).
type FeatureDependency struct {
	WorkspaceID       string `db:"workspace_id" json:"workspaceId"`
	FeatureID         string `db:"feature_id" json:"featureId"`
	DependsOnFeature  string `db:"depends_on_feature_id" json:"dependsOnFeatureId"`
}

// FileActivity is the latest touch of a file on a branch.
type FileActivity struct {
	WorkspaceID    string    `db:"workspace_id" json:"workspaceId"`
	Branch         string    `db:"branch" json:"branch"`
	FilePath       string    `db:"file_path" json:"filePath"`
	LastCommitHash string    `db:"last_commit_hash" json:"lastCommitHash"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// PullRequest is a workspace-scoped PR tracked for cross-PR overlap detection.
type PullRequest struct {
	WorkspaceID  string   `db:"workspace_id" json:"workspaceId"`
	PRNumber     int      `db:"pr_number" json:"prNumber"`
	SourceBranch string   `db:"source_branch" json:"sourceBranch"`
	TargetBranch string   `db:"target_branch" json:"targetBranch"`
	Status       PRStatus `db:"status" json:"status"`
}

// PRFile is membership of a file path in a PullRequest.
type PRFile struct {
	WorkspaceID string `db:"workspace_id" json:"workspaceId"`
	PRNumber    int    `db:"pr_number" json:"prNumber"`
	FilePath    string `db:"file_path" json:"filePath"`
}

// Blocker is a surfaced, typed impediment unique-while-unresolved per (workspace, type, referenceId) (I1).
type Blocker struct {
	ID          string      `db:"id" json:"id"`
	WorkspaceID string      `db:"workspace_id" json:"workspaceId"`
	Type        BlockerType `db:"type" json:"type"`
	ReferenceID string      `db:"reference_id" json:"referenceId"`
	Severity    Severity    `db:"severity" json:"severity"`
	Description string      `db:"description" json:"description"`
	Resolved    bool        `db:"resolved" json:"resolved"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updatedAt"`
}

// WebhookDelivery is the idempotency log keyed by upstream delivery id (I4).
type WebhookDelivery struct {
	DeliveryID string    `db:"delivery_id" json:"deliveryId"`
	Repo       string    `db:"repo" json:"repo"`
	Branch     string    `db:"branch" json:"branch"`
	CommitSHA  string    `db:"commit_sha" json:"commitSha"`
	DurationMs int64     `db:"duration_ms" json:"durationMs"`
	ReceivedAt time.Time `db:"received_at" json:"receivedAt"`
}
