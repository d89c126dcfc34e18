package resource

import (
	"context"
	"fmt"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

// replayForkCommit creates a synthetic commit in barePath's object
// database carrying forkCommit's message and authorship against the
// repository's current HEAD tree, then checks it out into worktreePath.
// This does not reproduce the fork commit's actual tree contents — doing
// that would require fetching every blob the fork introduced via the
// provider's contents API, out of scope here — so extractors that depend
// on this worktree's exact file contents should treat EffectiveSHA as an
// approximation of missingSHA's tree, good enough for the diff/log/stats
// extractors that only need commit metadata and a working tree to walk,
// not the fork's literal source.
func (a *Acquirer) replayForkCommit(ctx context.Context, barePath, worktreePath, missingSHA string, forkCommit *ForkCommit) (string, error) {
	repo, err := gogit.PlainOpen(barePath)
	if err != nil {
		return "", &common.RetryableError{Op: "open_repo_for_replay", Err: err}
	}

	headRef, err := repo.Head()
	if err != nil {
		return "", &common.RetryableError{Op: "resolve_head_for_replay", Err: err}
	}
	headCommit, err := repo.CommitObject(headRef.Hash())
	if err != nil {
		return "", &common.RetryableError{Op: "resolve_head_commit_for_replay", Err: err}
	}

	sig := object.Signature{
		Name:  forkCommit.AuthorName,
		Email: forkCommit.AuthorEmail,
		When:  forkCommit.CommittedAt,
	}
	if sig.When.IsZero() {
		sig.When = time.Now().UTC()
	}

	synthetic := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      forkCommit.Message,
		TreeHash:     headCommit.TreeHash,
		ParentHashes: []plumbing.Hash{headCommit.Hash},
	}

	obj := repo.Storer.NewEncodedObject()
	if err := synthetic.Encode(obj); err != nil {
		return "", &common.RetryableError{Op: "encode_replay_commit", Err: err}
	}
	newHash, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", &common.RetryableError{Op: "store_replay_commit", Err: err}
	}

	refName := plumbing.NewBranchReferenceName(fmt.Sprintf("replay-%s", ShortSHA(missingSHA)))
	ref := plumbing.NewHashReference(refName, newHash)
	if err := repo.Storer.SetReference(ref); err != nil {
		return "", &common.RetryableError{Op: "set_replay_ref", Err: err}
	}

	if err := a.backend.WorktreeAdd(ctx, barePath, worktreePath, newHash.String()); err != nil {
		return "", &common.ResourceMissingError{
			Resource: common.ResourceWorktree,
			Reason:   fmt.Sprintf("replay commit for %s still not checkoutable: %v", missingSHA, err),
		}
	}
	return newHash.String(), nil
}
