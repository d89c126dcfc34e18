package extractors

import (
	"context"
	"testing"

	"github.com/devci-tools/buildfeatures/pkg/ciprovider"
	"github.com/devci-tools/buildfeatures/pkg/common"
)

// fakeAdapter is a bare ciprovider.Adapter that does not implement
// DiscussionFetcher, modeling every non-GitHub provider.
type fakeAdapter struct{}

func (f *fakeAdapter) FetchBuilds(ctx context.Context, repo *common.RawRepository, opts ciprovider.FetchOptions) ([]*common.RawBuildRun, error) {
	return nil, nil
}
func (f *fakeAdapter) FetchBuildDetails(ctx context.Context, repo *common.RawRepository, id string) (*common.RawBuildRun, error) {
	return nil, nil
}
func (f *fakeAdapter) FetchBuildJobs(ctx context.Context, repo *common.RawRepository, id string) ([]ciprovider.BuildJob, error) {
	return nil, nil
}
func (f *fakeAdapter) FetchBuildLogs(ctx context.Context, repo *common.RawRepository, buildID, jobID string) ([]ciprovider.LogObject, error) {
	return nil, nil
}
func (f *fakeAdapter) NormalizeStatus(s string) common.BuildStatus { return common.BuildCompleted }
func (f *fakeAdapter) WaitRateLimit(ctx context.Context)           {}
func (f *fakeAdapter) Provider() common.ProviderKind               { return common.ProviderCircleCI }

var _ ciprovider.Adapter = (*fakeAdapter)(nil)

// fakeDiscussionAdapter additionally implements ciprovider.DiscussionFetcher,
// modeling the GitHub adapter.
type fakeDiscussionAdapter struct {
	fakeAdapter
	prComments    int
	issueComments int
	err           error
}

func (f *fakeDiscussionAdapter) FetchDiscussionCounts(ctx context.Context, repo *common.RawRepository, commitSHA string) (int, int, error) {
	return f.prComments, f.issueComments, f.err
}

func (f *fakeDiscussionAdapter) Provider() common.ProviderKind { return common.ProviderGitHubActions }

var _ ciprovider.DiscussionFetcher = (*fakeDiscussionAdapter)(nil)

func TestRunGitHubDiscussionFeaturesReturnsNullsWhenUnsupported(t *testing.T) {
	ec := execContext(
		&common.RawBuildRun{CommitSHA: "abc"},
		map[common.ResourceKind]interface{}{
			common.ResourceGitHubClient: GitHubClientResource{Adapter: &fakeAdapter{}, Repo: &common.RawRepository{FullName: "acme/widgets"}},
		},
	)

	out, err := runGitHubDiscussionFeatures(ec)
	if err != nil {
		t.Fatalf("runGitHubDiscussionFeatures() error = %v", err)
	}
	if out["gh_pr_comment_count"] != nil || out["gh_issue_comment_count"] != nil {
		t.Errorf("out = %+v, want both nil", out)
	}
}

func TestRunGitHubDiscussionFeaturesReturnsCountsWhenSupported(t *testing.T) {
	ec := execContext(
		&common.RawBuildRun{CommitSHA: "abc"},
		map[common.ResourceKind]interface{}{
			common.ResourceGitHubClient: GitHubClientResource{
				Adapter: &fakeDiscussionAdapter{prComments: 3, issueComments: 2},
				Repo:    &common.RawRepository{FullName: "acme/widgets"},
			},
		},
	)

	out, err := runGitHubDiscussionFeatures(ec)
	if err != nil {
		t.Fatalf("runGitHubDiscussionFeatures() error = %v", err)
	}
	if out["gh_pr_comment_count"] != 3 || out["gh_issue_comment_count"] != 2 {
		t.Errorf("out = %+v, want pr=3 issue=2", out)
	}
}
