package gitbackend

import (
	"context"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

// GoGit implements the read-only half of Backend using
// github.com/go-git/go-git/v5, avoiding a git-binary dependency for the
// extractors that only ever read history (git_commit_info,
// git_diff_features). CloneBare/Fetch/WorktreeAdd/WorktreeRemove still
// need a real checkout on disk and delegate to an embedded Shell.
type GoGit struct {
	Shell
}

func (g *GoGit) CommitExists(ctx context.Context, barePath, sha string) (bool, error) {
	repo, err := gogit.PlainOpen(barePath)
	if err != nil {
		return false, &common.RetryableError{Op: "open_repo", Err: err}
	}
	_, err = repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		if err == plumbing.ErrObjectNotFound {
			return false, nil
		}
		return false, &common.RetryableError{Op: "lookup_commit", Err: err}
	}
	return true, nil
}

func (g *GoGit) Log(ctx context.Context, barePath, sha string, limit int) ([]CommitInfo, error) {
	repo, err := gogit.PlainOpen(barePath)
	if err != nil {
		return nil, &common.RetryableError{Op: "open_repo", Err: err}
	}

	iter, err := repo.Log(&gogit.LogOptions{From: plumbing.NewHash(sha)})
	if err != nil {
		return nil, &common.RetryableError{Op: "log", Err: err}
	}
	defer iter.Close()

	var commits []CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(commits) >= limit {
			return fmt.Errorf("stop")
		}
		parents := make([]string, 0, c.NumParents())
		_ = c.Parents().ForEach(func(p *object.Commit) error {
			parents = append(parents, p.Hash.String())
			return nil
		})
		commits = append(commits, CommitInfo{
			SHA:         c.Hash.String(),
			AuthorName:  c.Author.Name,
			AuthorEmail: c.Author.Email,
			Message:     c.Message,
			CommittedAt: c.Author.When,
			ParentSHAs:  parents,
		})
		return nil
	})
	if err != nil && err.Error() != "stop" {
		return nil, &common.RetryableError{Op: "log_iterate", Err: err}
	}
	return commits, nil
}

func (g *GoGit) DiffNumstat(ctx context.Context, barePath, sha string) ([]FileStat, error) {
	repo, err := gogit.PlainOpen(barePath)
	if err != nil {
		return nil, &common.RetryableError{Op: "open_repo", Err: err}
	}

	commit, err := repo.CommitObject(plumbing.NewHash(sha))
	if err != nil {
		return nil, &common.ResourceMissingError{Resource: common.ResourceWorktree, Reason: "commit not found: " + sha}
	}
	if commit.NumParents() == 0 {
		return nil, nil
	}
	parent, err := commit.Parent(0)
	if err != nil {
		return nil, &common.RetryableError{Op: "parent_commit", Err: err}
	}

	parentTree, err := parent.Tree()
	if err != nil {
		return nil, &common.RetryableError{Op: "parent_tree", Err: err}
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, &common.RetryableError{Op: "tree", Err: err}
	}

	changes, err := parentTree.Diff(tree)
	if err != nil {
		return nil, &common.RetryableError{Op: "diff", Err: err}
	}

	stats := make([]FileStat, 0, len(changes))
	for _, change := range changes {
		patch, err := change.Patch()
		if err != nil {
			continue
		}
		for _, fp := range patch.FilePatches() {
			from, to, filesErr := change.Files()
			if filesErr != nil {
				continue
			}
			if fp.IsBinary() {
				stats = append(stats, FileStat{Path: pathOf(from, to), Binary: true})
				continue
			}
			adds, dels := 0, 0
			for _, chunk := range fp.Chunks() {
				lines := len(splitLines(chunk.Content()))
				switch chunk.Type() {
				case 1: // Add
					adds += lines
				case 2: // Delete
					dels += lines
				}
			}
			stats = append(stats, FileStat{Path: pathOf(from, to), Additions: adds, Deletions: dels})
		}
	}
	return stats, nil
}

func pathOf(from, to *object.File) string {
	if to != nil {
		return to.Name
	}
	if from != nil {
		return from.Name
	}
	return ""
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
