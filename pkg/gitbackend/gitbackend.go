// Package gitbackend abstracts the git operations the resource acquirer
// needs behind a small interface, per spec §9's "subprocess → interface"
// strategy: a Shell implementation that exec's the system git binary
// (mirroring how most of the corpus's git-touching tools work) and a
// GoGit implementation backed by github.com/go-git/go-git/v5 for the
// read-only operations it covers well, so the acquirer can be tested and
// swapped without depending on a git binary being on PATH.
package gitbackend

import (
	"context"
	"time"
)

// CommitInfo is one commit's metadata, the unit git_commit_info (§4.6)
// extracts.
type CommitInfo struct {
	SHA         string
	AuthorName  string
	AuthorEmail string
	Message     string
	CommittedAt time.Time
	ParentSHAs  []string
}

// FileStat is one file's line-change counts from a diff, the unit
// git_diff_features (§4.6) extracts.
type FileStat struct {
	Path      string
	Additions int
	Deletions int
	Binary    bool
}

// Backend is the interface every resource-acquirer git operation goes
// through.
type Backend interface {
	// CloneBare clones url as a bare repository at path. If path already
	// exists and is a valid bare repo, implementations should fetch rather
	// than re-clone (callers are expected to have already checked
	// CommitExists before invoking Clone for an existing repo, per §4.4).
	CloneBare(ctx context.Context, url, path string) error

	// Fetch updates an existing bare repo's refs from its origin.
	Fetch(ctx context.Context, barePath string) error

	// CommitExists reports whether sha is present in barePath's object
	// database, equivalent to `git cat-file -e <sha>`.
	CommitExists(ctx context.Context, barePath, sha string) (bool, error)

	// WorktreeAdd creates a detached worktree at worktreePath checked out
	// to sha, from the bare repo at barePath.
	WorktreeAdd(ctx context.Context, barePath, worktreePath, sha string) error

	// WorktreeRemove removes a worktree previously created with
	// WorktreeAdd.
	WorktreeRemove(ctx context.Context, barePath, worktreePath string) error

	// Log returns up to limit commits reachable from sha, newest first.
	Log(ctx context.Context, barePath, sha string, limit int) ([]CommitInfo, error)

	// DiffNumstat returns per-file addition/deletion counts for sha
	// against its first parent.
	DiffNumstat(ctx context.Context, barePath, sha string) ([]FileStat, error)

	// RevList returns the commit SHAs reachable from `to` but not from
	// `from` (equivalent to `git rev-list from..to`), used to measure how
	// far a build's commit trails the default branch.
	RevList(ctx context.Context, barePath, from, to string) ([]string, error)
}
