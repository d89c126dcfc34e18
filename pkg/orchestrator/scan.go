package orchestrator

import (
	"context"
	"fmt"

	"github.com/devci-tools/buildfeatures/pkg/scanintegration"
)

// acquirerResolver adapts Service's resource.Acquirer into a
// scanintegration.WorktreeResolver: it checks out the same bare
// repo/worktree pair extractOne uses, so scan tools see exactly what the
// feature extractors saw. Kept in pkg/orchestrator rather than
// pkg/scanintegration so that package never has to import pkg/resource.
type acquirerResolver struct {
	svc *Service
}

// NewScanResolver returns the WorktreeResolver a scanintegration.Dispatcher
// needs to check out commits for scanning, backed by svc's configured
// resource.Acquirer.
func NewScanResolver(svc *Service) scanintegration.WorktreeResolver {
	return &acquirerResolver{svc: svc}
}

func (r *acquirerResolver) ResolveWorktree(ctx context.Context, repoFullName, commitSHA string) (string, error) {
	if r.svc.Acquirer == nil {
		return "", fmt.Errorf("orchestrator: no resource acquirer configured for scan dispatch")
	}
	repo, err := r.svc.Store.Repositories().GetByFullName(ctx, repoFullName)
	if err != nil {
		return "", err
	}
	cloneURL := fmt.Sprintf("https://github.com/%s.git", repo.FullName)
	barePath, err := r.svc.Acquirer.EnsureBareRepo(ctx, repo, cloneURL, commitSHA)
	if err != nil {
		return "", err
	}
	wt, err := r.svc.Acquirer.EnsureWorktree(ctx, repo, barePath, commitSHA, nil)
	if err != nil {
		return "", err
	}
	return wt.Path, nil
}

var _ scanintegration.WorktreeResolver = (*acquirerResolver)(nil)
