package extractors

import (
	"github.com/devci-tools/buildfeatures/pkg/ciprovider"
	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/featuredag"
)

func init() {
	featuredag.Register(&featuredag.Node{
		Name: "github_discussion_features",
		FeaturesProduced: []string{
			"gh_pr_comment_count",
			"gh_issue_comment_count",
		},
		RequiresResources: []common.ResourceKind{common.ResourceGitHubClient},
		Run:               runGitHubDiscussionFeatures,
	})
}

// runGitHubDiscussionFeatures asks the adapter for PR/issue comment
// counts when it implements ciprovider.DiscussionFetcher. Providers
// that don't (everything but GitHub Actions today) emit explicit nulls
// rather than failing the node, per spec §4.6's per-provider feature
// availability rule.
func runGitHubDiscussionFeatures(ec *featuredag.ExecContext) (map[string]interface{}, error) {
	client := ec.Resources[common.ResourceGitHubClient].(GitHubClientResource)

	fetcher, ok := client.Adapter.(ciprovider.DiscussionFetcher)
	if !ok {
		return map[string]interface{}{
			"gh_pr_comment_count":    nil,
			"gh_issue_comment_count": nil,
		}, nil
	}

	prComments, issueComments, err := fetcher.FetchDiscussionCounts(ec.Context, client.Repo, ec.BuildRun.CommitSHA)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"gh_pr_comment_count":    prComments,
		"gh_issue_comment_count": issueComments,
	}, nil
}
