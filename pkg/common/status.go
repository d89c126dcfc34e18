// Package common holds the domain entities and status enums shared across
// the ingestion and feature-extraction pipeline. Types here are plain
// structs validated at the storage seam; they are not an ORM layer.
package common

// IngestionStatus is the lifecycle of an IngestionBuild.
type IngestionStatus string

const (
	IngestionPending         IngestionStatus = "pending"
	IngestionFetched         IngestionStatus = "fetched"
	IngestionIngesting       IngestionStatus = "ingesting"
	IngestionIngested        IngestionStatus = "ingested"
	IngestionMissingResource IngestionStatus = "missing_resource"
	IngestionFailed          IngestionStatus = "failed"
)

// ingestionTransitions enumerates the allowed forward edges. Resets to
// IngestionPending from a terminal state are handled separately by
// CanResetToPending, since they are an explicit operator action rather
// than a normal forward transition.
var ingestionTransitions = map[IngestionStatus][]IngestionStatus{
	IngestionPending:   {IngestionFetched},
	IngestionFetched:   {IngestionIngesting},
	IngestionIngesting: {IngestionIngested, IngestionMissingResource, IngestionFailed},
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition in the DAG described in spec §4.3.
func (s IngestionStatus) CanTransitionTo(next IngestionStatus) bool {
	for _, allowed := range ingestionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a resting state the orchestrator will not
// move out of without an explicit retry operation.
func (s IngestionStatus) IsTerminal() bool {
	switch s {
	case IngestionIngested, IngestionMissingResource, IngestionFailed:
		return true
	default:
		return false
	}
}

// CanResetToPending reports whether a "retry failed ingestion" operation may
// move this status back to IngestionPending. Only Failed (an actual
// retryable error) is eligible; MissingResource is expected-and-terminal.
func (s IngestionStatus) CanResetToPending() bool {
	return s == IngestionFailed
}

// ResourceStatus is the lifecycle of a single entry in
// IngestionBuild.resource_status.
type ResourceStatus string

const (
	ResourcePending    ResourceStatus = "pending"
	ResourceInProgress ResourceStatus = "in_progress"
	ResourceCompleted  ResourceStatus = "completed"
	ResourceFailed     ResourceStatus = "failed"
	ResourceSkipped    ResourceStatus = "skipped"
)

// RepoConfigStatus is the lifecycle of a RepoConfig.
type RepoConfigStatus string

const (
	RepoConfigQueued             RepoConfigStatus = "queued"
	RepoConfigIngesting          RepoConfigStatus = "ingesting"
	RepoConfigIngestionComplete  RepoConfigStatus = "ingestion_complete"
	RepoConfigIngestionPartial   RepoConfigStatus = "ingestion_partial"
	RepoConfigProcessing         RepoConfigStatus = "processing"
	RepoConfigProcessed          RepoConfigStatus = "processed"
	RepoConfigFailed             RepoConfigStatus = "failed"
)

var repoConfigTransitions = map[RepoConfigStatus][]RepoConfigStatus{
	RepoConfigQueued:            {RepoConfigIngesting},
	RepoConfigIngesting:         {RepoConfigIngestionComplete, RepoConfigIngestionPartial, RepoConfigFailed},
	RepoConfigIngestionComplete: {RepoConfigProcessing},
	RepoConfigIngestionPartial:  {RepoConfigProcessing},
	RepoConfigProcessing:        {RepoConfigProcessed, RepoConfigFailed},
	RepoConfigProcessed:         {RepoConfigQueued}, // sync requested
}

// CanTransitionTo reports whether moving from s to next is legal per §4.3's
// status transition table.
func (s RepoConfigStatus) CanTransitionTo(next RepoConfigStatus) bool {
	for _, allowed := range repoConfigTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ExtractionStatus is the lifecycle of a TrainingBuild's feature extraction.
// Kept as a distinct type from IngestionStatus/RepoConfigStatus per the
// spec's Open Question about overlapping status enums (§9).
type ExtractionStatus string

const (
	ExtractionPending   ExtractionStatus = "pending"
	ExtractionCompleted ExtractionStatus = "completed"
	ExtractionPartial   ExtractionStatus = "partial"
	ExtractionFailed    ExtractionStatus = "failed"
)

// SecurityScanStatus is the lifecycle of a per-commit scan dispatched by
// pkg/scanintegration, mirroring the original dashboard's
// sonar_commit_scan.py/trivy_commit_scan.py state machine.
type SecurityScanStatus string

const (
	ScanPending   SecurityScanStatus = "pending"
	ScanScanning  SecurityScanStatus = "scanning"
	ScanCompleted SecurityScanStatus = "completed"
	ScanFailed    SecurityScanStatus = "failed"
)

var scanTransitions = map[SecurityScanStatus][]SecurityScanStatus{
	ScanPending:  {ScanScanning},
	ScanScanning: {ScanCompleted, ScanFailed},
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition in the scan state machine.
func (s SecurityScanStatus) CanTransitionTo(next SecurityScanStatus) bool {
	for _, allowed := range scanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a resting state a retry would need to
// move out of explicitly.
func (s SecurityScanStatus) IsTerminal() bool {
	return s == ScanCompleted || s == ScanFailed
}

// ScanTool enumerates the supported security/quality scan tools.
type ScanTool string

const (
	ScanToolSonarQube ScanTool = "sonarqube"
	ScanToolTrivy     ScanTool = "trivy"
)

// TokenStatus is the lifecycle of a pooled API token.
type TokenStatus string

const (
	TokenActive      TokenStatus = "active"
	TokenRateLimited TokenStatus = "rate_limited"
	TokenInvalid     TokenStatus = "invalid"
	TokenDisabled    TokenStatus = "disabled"
)

// BuildStatus is the 5-value normalized CI status enum every provider
// adapter's NormalizeStatus must map into. It is distinct from
// ExtractionStatus and IngestionStatus (see spec §9's Open Questions).
type BuildStatus string

const (
	BuildPending   BuildStatus = "pending"
	BuildQueued    BuildStatus = "queued"
	BuildRunning   BuildStatus = "running"
	BuildCompleted BuildStatus = "completed"
	BuildUnknown   BuildStatus = "unknown"
)

// BuildConclusion carries the outcome of a completed build, orthogonal to
// BuildStatus (a build is Completed with some Conclusion).
type BuildConclusion string

const (
	ConclusionNone            BuildConclusion = ""
	ConclusionSuccess         BuildConclusion = "success"
	ConclusionFailure         BuildConclusion = "failure"
	ConclusionCancelled       BuildConclusion = "cancelled"
	ConclusionSkipped         BuildConclusion = "skipped"
	ConclusionTimedOut        BuildConclusion = "timed_out"
	ConclusionActionRequired  BuildConclusion = "action_required"
	ConclusionNeutral         BuildConclusion = "neutral"
)

// ResourceKind enumerates the resources the acquirer can produce and
// extractor nodes can declare as requirements.
type ResourceKind string

const (
	ResourceBareRepo     ResourceKind = "bare_repo"
	ResourceWorktree     ResourceKind = "worktree"
	ResourceBuildLogs    ResourceKind = "build_logs"
	ResourceGitHubClient ResourceKind = "github_api_client"
	ResourceBuildRun     ResourceKind = "build_run"
	ResourceRawBuildRuns ResourceKind = "raw_build_runs"
)

// ProviderKind enumerates the supported CI providers.
type ProviderKind string

const (
	ProviderGitHubActions ProviderKind = "github_actions"
	ProviderGitLabCI      ProviderKind = "gitlab_ci"
	ProviderJenkins       ProviderKind = "jenkins"
	ProviderCircleCI      ProviderKind = "circleci"
	ProviderTravisCI      ProviderKind = "travis_ci"
)

func (p ProviderKind) Valid() bool {
	switch p {
	case ProviderGitHubActions, ProviderGitLabCI, ProviderJenkins, ProviderCircleCI, ProviderTravisCI:
		return true
	default:
		return false
	}
}

func (p ProviderKind) String() string { return string(p) }
