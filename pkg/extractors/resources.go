// Package extractors implements the concrete feature-DAG nodes spec §4.6
// illustrates: git history/diff analysis, repository snapshots, team
// activity, build log parsing, and GitHub discussion counts. Each node
// registers itself with pkg/featuredag's static registry from its own
// init(), the same "decorator registry" shape boskos/crds uses for its
// CRD type registrations (§9).
package extractors

import (
	"github.com/devci-tools/buildfeatures/pkg/ciprovider"
	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/gitbackend"
)

// BareRepoResource is the ExecContext.Resources[common.ResourceBareRepo]
// value shape: a git backend bound to the shared bare-clone path.
type BareRepoResource struct {
	Backend gitbackend.Backend
	Path    string
}

// WorktreeResource is the ExecContext.Resources[common.ResourceWorktree]
// value shape: the filesystem path of a commit's checked-out worktree.
type WorktreeResource struct {
	Path         string
	EffectiveSHA string
}

// LogsResource is the ExecContext.Resources[common.ResourceBuildLogs]
// value shape: every downloaded log object for the build.
type LogsResource []ciprovider.LogObject

// GitHubClientResource is the
// ExecContext.Resources[common.ResourceGitHubClient] value shape: an
// adapter bound to this build's repo, used only by nodes that talk to the
// GitHub API directly (beyond what the CI-provider fetch already covered).
type GitHubClientResource struct {
	Adapter ciprovider.Adapter
	Repo    *common.RawRepository
}

// RawBuildRunsResource is the
// ExecContext.Resources[common.ResourceRawBuildRuns] value shape: prior
// build runs for the same repo, used by git_commit_info for
// previous-built-commit resolution.
type RawBuildRunsResource []*common.RawBuildRun
