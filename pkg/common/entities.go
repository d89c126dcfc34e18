package common

import "time"

// RawRepository is the immutable identity of a VCS repository. One record
// exists per physical repo; it is never forked per RepoConfig.
type RawRepository struct {
	ID              int64  `db:"id"`
	FullName        string `db:"full_name"` // "owner/repo"
	ProviderID      string `db:"provider_id"`
	DefaultBranch   string `db:"default_branch"`
	Private         bool   `db:"private"`
	PrimaryLanguage string `db:"primary_language"`
	// LanguageBytes maps language name to byte count, matching a GitHub
	// "languages" response shape.
	LanguageBytes map[string]int64 `db:"-"`
}

// Validate enforces RawRepository's identity invariants.
func (r *RawRepository) Validate() error {
	if r.FullName == "" {
		return ErrValidation("full_name is required")
	}
	if r.ProviderID == "" {
		return ErrValidation("provider_id is required")
	}
	return nil
}

// RawBuildRun is one observed CI run, immutable once Status is completed.
type RawBuildRun struct {
	ID            int64
	RepoID        int64
	Provider      ProviderKind
	ProviderBuild string // provider-internal build id, unique within repo
	BuildNumber   int64
	CommitSHA     string
	Branch        string
	Status        BuildStatus
	Conclusion    BuildConclusion
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	RawPayload    []byte // opaque provider JSON, kept for re-derivation
	IsBotCommit   bool
}

// Validate enforces RawBuildRun's identity invariants.
func (b *RawBuildRun) Validate() error {
	if b.RepoID == 0 {
		return ErrValidation("repo_id is required")
	}
	if !b.Provider.Valid() {
		return ErrValidation("provider is invalid")
	}
	if b.ProviderBuild == "" {
		return ErrValidation("provider_build is required")
	}
	if b.Status == BuildCompleted && b.CommitSHA == "" {
		return ErrValidation("commit_sha is required once a build is completed")
	}
	return nil
}

// ImportConstraints narrows what FetchBuilds will import for a RepoConfig.
type ImportConstraints struct {
	MaxBuilds      int
	SinceDays      int
	OnlyWithLogs   bool
	ExcludeBots    bool
	OnlyCompleted  bool
}

// RepoConfig is user/admin configuration over a repo, and owns all
// downstream orchestration state (IngestionBuild, TrainingBuild,
// FeatureAuditLog) for its repo.
type RepoConfig struct {
	ID             int64
	RepoID         int64
	Provider       ProviderKind
	Constraints    ImportConstraints
	FeatureSet     []string // requested feature names; advisory, see §9
	Status         RepoConfigStatus
	BuildsFetched  int64
	BuildsIngested int64
	BuildsFailed   int64
	// LastProcessedIngestionBuildID is the sync checkpoint: successive
	// processing runs only touch IngestionBuilds with id greater than this.
	LastProcessedIngestionBuildID int64
	LastSyncError                 string
	CreatedAt                     time.Time
	UpdatedAt                     time.Time
}

// ResourceOutcome records a single resource's acquisition outcome within an
// IngestionBuild.
type ResourceOutcome struct {
	Status      ResourceStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// IngestionBuild is the orchestration tracking record per (RepoConfig,
// RawBuildRun) pair. Upserts on (RepoConfigID, RawBuildRunID) are idempotent.
type IngestionBuild struct {
	ID                 int64
	RepoConfigID       int64
	RawBuildRunID      int64
	CIRunID            string // denormalized for quick lookup
	CommitSHA          string // denormalized
	EffectiveSHA       string // set when fork-commit replay diverges from CommitSHA
	Status             IngestionStatus
	RequiredResources  []ResourceKind
	ResourceStatus     map[ResourceKind]ResourceOutcome
	IngestionError     string
	CreatedAt          time.Time
	FetchedAt          *time.Time
	IngestingStartedAt *time.Time
	CompletedAt        *time.Time
}

// BusinessKey returns the (RepoConfigID, RawBuildRunID) pair upserts are
// keyed on.
func (b *IngestionBuild) BusinessKey() (int64, int64) {
	return b.RepoConfigID, b.RawBuildRunID
}

// TrainingBuild is the extraction result record per ingested build.
type TrainingBuild struct {
	ID               int64
	RawBuildRunID    int64
	RepoConfigID     int64
	ExtractionStatus ExtractionStatus
	Features         map[string]interface{}
	MissingResources []ResourceKind
	SkippedFeatures  []string
	ExtractionError  string

	PredictedLabel  *string
	Confidence      *float64
	Uncertainty     *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FeatureCount returns the number of non-null entries in Features, per the
// invariant in spec §3.
func (t *TrainingBuild) FeatureCount() int {
	n := 0
	for _, v := range t.Features {
		if v != nil {
			n++
		}
	}
	return n
}

// NodeOutcome is a single extractor node's result within a FeatureAuditLog.
type NodeOutcome struct {
	Name              string
	Status             string // success | failed | skipped
	Duration           time.Duration
	FeaturesExtracted  map[string]interface{}
	ResourcesUsed      []ResourceKind
	ResourcesMissing   []ResourceKind
	Error              string
	SkipReason         string
	RetryCount         int
}

// FeatureAuditLog is the per-extraction-run audit record.
type FeatureAuditLog struct {
	ID              int64
	CorrelationID   string
	RawBuildRunID   int64
	Nodes           []NodeOutcome
	Succeeded       int
	Failed          int
	Skipped         int
	Retries         int
	FinalStatus     ExtractionStatus
	CreatedAt       time.Time
}

// FeaturesExtracted returns the union of feature names produced by all
// successful nodes, used by the "round-trip audit" property in spec §8.
func (a *FeatureAuditLog) FeaturesExtracted() []string {
	var names []string
	for _, n := range a.Nodes {
		for name := range n.FeaturesExtracted {
			names = append(names, name)
		}
	}
	return names
}

// SecurityScan tracks one (repo, commit, tool) scan dispatched by
// pkg/scanintegration, mirroring sonar_commit_scan.py/trivy_commit_scan.py's
// per-commit tracking record.
type SecurityScan struct {
	ID           int64
	RepoID       int64
	CommitSHA    string
	Tool         ScanTool
	Status       SecurityScanStatus
	ComponentKey string // tool-specific dedup key, e.g. SonarQube project_key
	Error        string
	QualityScore *float64 // set on completion when the tool reports metrics
	DispatchedAt time.Time
	CompletedAt  *time.Time
}

// Validate enforces the fields a scan record must carry before dispatch.
func (s *SecurityScan) Validate() error {
	if s.RepoID == 0 {
		return ErrValidation("repo_id is required")
	}
	if s.CommitSHA == "" {
		return ErrValidation("commit_sha is required")
	}
	if s.Tool != ScanToolSonarQube && s.Tool != ScanToolTrivy {
		return ErrValidation("tool is not a recognized scan tool")
	}
	return nil
}

// Token is the in-pool representation of a pooled API token. RawSecret is
// never persisted alongside Hash in the priority set; see pkg/tokenpool.
type Token struct {
	Hash      string
	RawSecret string
	Label     string
	Priority  int // last-observed remaining quota
	Remaining int
	Limit     int
	ResetAt   time.Time
	Cooldown  time.Time
	Status    TokenStatus
	Requests  int64
	LastUsed  time.Time
}
