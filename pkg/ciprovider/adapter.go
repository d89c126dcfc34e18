// Package ciprovider presents a uniform interface over five dissimilar CI
// APIs (spec §4.1). Each concrete adapter lives in its own subpackage and
// registers a constructor with Registry so callers never branch on
// common.ProviderKind themselves.
package ciprovider

import (
	"context"
	"strings"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

// FetchOptions narrows a FetchBuilds page, mirroring the provider-agnostic
// filter set in spec §4.1.
type FetchOptions struct {
	Since         *int64 // unix seconds; nil = no lower bound
	Limit         int
	Page          int
	Branch        string
	OnlyWithLogs  bool
	ExcludeBots   bool
	OnlyCompleted bool
}

// LogObject is one downloadable log blob for a build/job.
type LogObject struct {
	JobID     string
	JobName   string
	Path      string
	Text      string
	SizeBytes int64
}

// BuildJob is a single job/step within a build run.
type BuildJob struct {
	JobID     string
	JobName   string
	Status    common.BuildStatus
	StartedAt *int64
	EndedAt   *int64
}

// Adapter is the interface every CI provider implementation satisfies.
type Adapter interface {
	// FetchBuilds returns one page of normalized build records; len(result)
	// <= opts.Limit. The caller is responsible for paginating with opts.Page.
	FetchBuilds(ctx context.Context, repo *common.RawRepository, opts FetchOptions) ([]*common.RawBuildRun, error)

	// FetchBuildDetails returns the full record for one build, or
	// (nil, nil) if the provider reports not-found (never an error).
	FetchBuildDetails(ctx context.Context, repo *common.RawRepository, providerBuildID string) (*common.RawBuildRun, error)

	FetchBuildJobs(ctx context.Context, repo *common.RawRepository, providerBuildID string) ([]BuildJob, error)

	// FetchBuildLogs downloads logs for a build, optionally narrowed to one
	// job. A ResourceMissingError distinguishes expected unavailability
	// (expired/404) from a RetryableError (permission/network).
	FetchBuildLogs(ctx context.Context, repo *common.RawRepository, providerBuildID, jobID string) ([]LogObject, error)

	// NormalizeStatus maps a provider-native status string into the
	// five-value enum every adapter must agree on.
	NormalizeStatus(providerStatus string) common.BuildStatus

	// WaitRateLimit paces the caller before the next request. The default
	// for most adapters is a no-op or a fixed sleep; GitHub instead draws
	// from the token pool and never blocks here.
	WaitRateLimit(ctx context.Context)

	Provider() common.ProviderKind
}

// DiscussionFetcher is an optional capability a provider Adapter may
// implement to expose PR/issue comment counts for github_discussion_features
// (spec §4.6). Only the GitHub adapter implements it today; callers type-
// assert and treat its absence as "feature not available for this
// provider" rather than an error.
type DiscussionFetcher interface {
	FetchDiscussionCounts(ctx context.Context, repo *common.RawRepository, commitSHA string) (prComments, issueComments int, err error)
}

// ConclusionNormalizer is an optional capability for providers whose
// native API (and webhook payloads) report a conclusion distinct from
// status, e.g. GitHub Actions's "completed"/"success" split. Only the
// GitHub adapter implements it; other providers fold conclusion into
// status directly when building a RawBuildRun.
type ConclusionNormalizer interface {
	NormalizeConclusion(providerConclusion string) common.BuildConclusion
}

// defaultBotSubstrings is the configured set from spec §4.1; callers may
// extend it via WithBotSubstrings.
var defaultBotSubstrings = []string{"[bot]", "dependabot", "renovate", "github-actions"}

// IsBotCommit reports whether commitAuthor should be classified as a bot
// commit, per spec §4.1's normalization rule.
func IsBotCommit(commitAuthor string) bool {
	return IsBotCommitWithSubstrings(commitAuthor, defaultBotSubstrings)
}

// IsBotCommitWithSubstrings is IsBotCommit parameterized over a custom bot
// substring list, for adapters configured with extra organization-specific
// bot accounts.
func IsBotCommitWithSubstrings(commitAuthor string, substrings []string) bool {
	lower := strings.ToLower(commitAuthor)
	for _, s := range substrings {
		if strings.Contains(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// ConsecutiveLogMissThreshold is the number of consecutive
// log-unavailable responses within a single FetchBuilds page, with
// OnlyWithLogs set, after which the adapter aborts the rest of the page —
// a defense against a misconfigured token lacking log permissions burning
// through the whole page one 403 at a time.
const ConsecutiveLogMissThreshold = 5
