package resource

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/devci-tools/buildfeatures/pkg/ciprovider"
	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/gitbackend"
)

// Acquire* lock timeouts per spec §4.4.
const (
	cloneLockTimeout    = 600 * time.Second
	worktreeLockTimeout = 120 * time.Second
)

// CloneAuth resolves the URL an acquirer should clone/fetch from, letting
// the caller decide between an App installation token, a pooled public
// token, or unauthenticated access for small public repos, per spec §4.4's
// three auth strategies.
type CloneAuth interface {
	// AuthenticatedURL returns cloneURL rewritten to embed credentials, or
	// cloneURL unchanged for unauthenticated access.
	AuthenticatedURL(ctx context.Context, cloneURL string) (string, error)
}

// Acquirer prepares bare clones, worktrees, and build logs on shared
// storage, coordinating concurrent callers with distributed locks. It is
// the single place extractors' resource dependencies get satisfied,
// mirroring the "prepare inputs, then hand to workers" split spec §9
// draws between I/O-bound acquisition and CPU-bound extraction.
type Acquirer struct {
	layout  Layout
	backend gitbackend.Backend
	locks   *LockManager
	auth    CloneAuth
}

func NewAcquirer(layout Layout, backend gitbackend.Backend, locks *LockManager, auth CloneAuth) *Acquirer {
	return &Acquirer{layout: layout, backend: backend, locks: locks, auth: auth}
}

// Backend exposes the git backend an Acquirer was built with, so callers
// assembling a featuredag ExecContext's BareRepoResource can pair it with
// the acquired path.
func (a *Acquirer) Backend() gitbackend.Backend { return a.backend }

// EnsureBareRepo guarantees repo's bare clone exists locally and contains
// sha, cloning or fetching as needed. It returns the path to the bare
// repository for downstream worktree/log operations.
func (a *Acquirer) EnsureBareRepo(ctx context.Context, repo *common.RawRepository, cloneURL, sha string) (string, error) {
	barePath := a.layout.BarePath(repo.ID)

	lock, err := a.locks.Acquire(ctx, cloneLockKey(repo.ID), cloneLockTimeout)
	if err != nil {
		return "", fmt.Errorf("resource: clone lock: %w", err)
	}
	defer lock.Release()

	if _, statErr := os.Stat(barePath); statErr == nil {
		exists, checkErr := a.backend.CommitExists(ctx, barePath, sha)
		if checkErr == nil && exists {
			return barePath, nil
		}
		if fetchErr := a.backend.Fetch(ctx, barePath); fetchErr != nil {
			return "", fetchErr
		}
		exists, checkErr = a.backend.CommitExists(ctx, barePath, sha)
		if checkErr != nil {
			return "", checkErr
		}
		if exists {
			return barePath, nil
		}
		return barePath, &common.ResourceMissingError{
			Resource: common.ResourceBareRepo,
			Reason:   "commit not reachable after fetch: " + sha,
		}
	}

	authedURL := cloneURL
	if a.auth != nil {
		authedURL, err = a.auth.AuthenticatedURL(ctx, cloneURL)
		if err != nil {
			return "", err
		}
	}
	if err := a.backend.CloneBare(ctx, authedURL, barePath); err != nil {
		return "", err
	}
	return barePath, nil
}

// ForkCommitFetcher resolves a commit that is absent from a repo's bare
// clone (typically because it only exists on a contributor's fork) into a
// tree+message pair the acquirer can replay locally.
type ForkCommitFetcher interface {
	FetchForkCommit(ctx context.Context, repo *common.RawRepository, sha string) (*ForkCommit, error)
}

// ForkCommit is the minimal shape of a commit fetched from a fork via the
// provider API, sufficient to replay it as a synthetic local commit.
type ForkCommit struct {
	Message     string
	AuthorName  string
	AuthorEmail string
	CommittedAt time.Time
}

// WorktreeResult reports the path produced and whether fork-commit replay
// had to substitute a different effective SHA.
type WorktreeResult struct {
	Path         string
	EffectiveSHA string
	Replayed     bool
}

// EnsureWorktree checks out sha into a dedicated worktree under barePath.
// When the direct checkout fails (the commit is only reachable on a
// contributor's fork, never pushed to the canonical repo) it falls back to
// fork-commit replay: fetch the commit's metadata via forkFetcher and
// synthesize a local commit carrying the same message against the bare
// repository's HEAD tree, recording the substitution via EffectiveSHA.
func (a *Acquirer) EnsureWorktree(ctx context.Context, repo *common.RawRepository, barePath, sha string, forkFetcher ForkCommitFetcher) (*WorktreeResult, error) {
	short := ShortSHA(sha)
	worktreePath := a.layout.WorktreePath(repo.ID, short)

	lock, err := a.locks.Acquire(ctx, worktreeLockKey(repo.ID, short), worktreeLockTimeout)
	if err != nil {
		return nil, fmt.Errorf("resource: worktree lock: %w", err)
	}
	defer lock.Release()

	if err := a.backend.WorktreeAdd(ctx, barePath, worktreePath, sha); err == nil {
		return &WorktreeResult{Path: worktreePath, EffectiveSHA: sha}, nil
	} else if !common.IsRetryable(err) {
		return nil, err
	}

	if forkFetcher == nil {
		return nil, &common.ResourceMissingError{
			Resource: common.ResourceWorktree,
			Reason:   "commit unreachable and no fork-commit fetcher configured: " + sha,
		}
	}

	forkCommit, fetchErr := forkFetcher.FetchForkCommit(ctx, repo, sha)
	if fetchErr != nil {
		if common.IsResourceMissing(fetchErr) {
			return nil, fetchErr
		}
		return nil, fmt.Errorf("resource: fork commit fetch: %w", fetchErr)
	}

	replayedSHA, err := a.replayForkCommit(ctx, barePath, worktreePath, sha, forkCommit)
	if err != nil {
		return nil, err
	}
	return &WorktreeResult{Path: worktreePath, EffectiveSHA: replayedSHA, Replayed: true}, nil
}

// DownloadLogs fetches a build's logs via its provider adapter,
// classifying the provider's own not-found signal (a nil, nil return from
// FetchBuildLogs) as a ResourceMissingError rather than surfacing an empty
// slice as success, per spec §4.4's actual-error-vs-expected-unavailability
// distinction.
func (a *Acquirer) DownloadLogs(ctx context.Context, adapter ciprovider.Adapter, repo *common.RawRepository, providerBuildID, jobID string) ([]ciprovider.LogObject, error) {
	adapter.WaitRateLimit(ctx)
	logs, err := adapter.FetchBuildLogs(ctx, repo, providerBuildID, jobID)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, &common.ResourceMissingError{
			Resource: common.ResourceBuildLogs,
			Reason:   fmt.Sprintf("no logs returned for build %s job %s", providerBuildID, jobID),
		}
	}
	return logs, nil
}
