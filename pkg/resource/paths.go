package resource

import (
	"fmt"
	"path/filepath"
)

// Layout computes the on-disk paths the acquirer reads and writes, rooted
// under a single configurable base directory shared by every worker that
// mounts the same volume (or, in a single-box deployment, the same disk).
type Layout struct {
	BaseDir string
}

// BarePath is the shared bare-clone path for a repository, keyed by its
// immutable RawRepository id so renames don't orphan a clone.
func (l Layout) BarePath(repoID int64) string {
	return filepath.Join(l.BaseDir, "repos", fmt.Sprintf("%d.git", repoID))
}

// WorktreePath is the per-(repo, short-sha) worktree checkout path.
func (l Layout) WorktreePath(repoID int64, shortSHA string) string {
	return filepath.Join(l.BaseDir, "worktrees", fmt.Sprintf("%d", repoID), shortSHA)
}

// ShortSHA truncates a commit SHA to the 12-character form used in
// worktree paths and lock keys, long enough to avoid collisions within a
// single repo's clone.
func ShortSHA(sha string) string {
	if len(sha) <= 12 {
		return sha
	}
	return sha[:12]
}
