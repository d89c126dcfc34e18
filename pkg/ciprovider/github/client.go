// Package github implements the CI provider Adapter for GitHub Actions.
// Its request loop is grounded on github-stats/fetcher/client.go's
// channel-paginated fetch and getGithubClient lazy-init pattern, adapted
// to go-github's context-aware v57 API and the shared token pool instead
// of a single static token.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	gogithub "github.com/google/go-github/v57/github"

	"github.com/devci-tools/buildfeatures/pkg/ciprovider"
	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/tokenpool"
)

func init() {
	// Registered lazily: the constructor still requires a *tokenpool.Pool,
	// supplied via cfg by the caller wiring the registry (see
	// NewFromPool for the typed entrypoint actual callers use).
	ciprovider.Register(common.ProviderGitHubActions, func(cfg map[string]string) (ciprovider.Adapter, error) {
		return nil, fmt.Errorf("github: use ciprovider/github.NewFromPool, not the generic registry constructor")
	})
}

// Adapter implements ciprovider.Adapter over the GitHub Actions API.
type Adapter struct {
	client         *gogithub.Client
	botSubstrings  []string
}

// NewFromPool builds a GitHub adapter whose HTTP transport draws
// credentials from pool on every request.
func NewFromPool(pool *tokenpool.Pool, botSubstrings []string) *Adapter {
	httpClient := &http.Client{Transport: newPoolTransport(pool)}
	if len(botSubstrings) == 0 {
		botSubstrings = []string{"[bot]", "dependabot", "renovate", "github-actions"}
	}
	return &Adapter{
		client:        gogithub.NewClient(httpClient),
		botSubstrings: botSubstrings,
	}
}

var _ ciprovider.DiscussionFetcher = (*Adapter)(nil)
var _ ciprovider.ConclusionNormalizer = (*Adapter)(nil)

func (a *Adapter) Provider() common.ProviderKind { return common.ProviderGitHubActions }

func splitOwnerRepo(fullName string) (owner, repo string) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 {
		return fullName, ""
	}
	return parts[0], parts[1]
}

// FetchBuilds lists workflow runs and normalizes them into RawBuildRun
// records, honoring the provider-agnostic filter set.
func (a *Adapter) FetchBuilds(ctx context.Context, repo *common.RawRepository, opts ciprovider.FetchOptions) ([]*common.RawBuildRun, error) {
	owner, name := splitOwnerRepo(repo.FullName)

	listOpts := &gogithub.ListWorkflowRunsOptions{
		Branch: opts.Branch,
		ListOptions: gogithub.ListOptions{
			Page:    opts.Page,
			PerPage: opts.Limit,
		},
	}

	runs, resp, err := a.client.Actions.ListRepositoryWorkflowRuns(ctx, owner, name, listOpts)
	if err != nil {
		return nil, classifyError(err, resp)
	}

	consecutiveLogMisses := 0
	var out []*common.RawBuildRun
	for _, run := range runs.WorkflowRuns {
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}

		author := ""
		if run.GetHeadCommit() != nil && run.GetHeadCommit().GetAuthor() != nil {
			author = run.GetHeadCommit().GetAuthor().GetName()
		}
		isBot := ciprovider.IsBotCommitWithSubstrings(author, a.botSubstrings)
		if opts.ExcludeBots && isBot {
			continue
		}

		status := a.NormalizeStatus(run.GetStatus())
		if opts.OnlyCompleted && status != common.BuildCompleted {
			continue
		}

		if opts.OnlyWithLogs {
			if _, err := a.probeLogsAvailable(ctx, owner, name, run.GetID()); err != nil {
				consecutiveLogMisses++
				if consecutiveLogMisses >= ciprovider.ConsecutiveLogMissThreshold {
					break
				}
				continue
			}
			consecutiveLogMisses = 0
		}

		build := &common.RawBuildRun{
			RepoID:        repo.ID,
			Provider:      common.ProviderGitHubActions,
			ProviderBuild: fmt.Sprintf("%d", run.GetID()),
			BuildNumber:   int64(run.GetRunNumber()),
			CommitSHA:     run.GetHeadSHA(),
			Branch:        run.GetHeadBranch(),
			Status:        status,
			Conclusion:    a.NormalizeConclusion(run.GetConclusion()),
			IsBotCommit:   isBot,
		}
		if run.CreatedAt != nil {
			t := run.GetCreatedAt().Time
			build.StartedAt = &t
		}
		if run.UpdatedAt != nil && status == common.BuildCompleted {
			t := run.GetUpdatedAt().Time
			build.CompletedAt = &t
		}
		out = append(out, build)
	}
	return out, nil
}

func (a *Adapter) probeLogsAvailable(ctx context.Context, owner, repo string, runID int64) (bool, error) {
	_, resp, err := a.client.Actions.GetWorkflowRunLogs(ctx, owner, repo, runID, 1)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone) {
			return false, &common.ResourceMissingError{Resource: common.ResourceBuildLogs, Reason: "logs expired or unavailable"}
		}
		return false, err
	}
	return true, nil
}

func (a *Adapter) FetchBuildDetails(ctx context.Context, repo *common.RawRepository, providerBuildID string) (*common.RawBuildRun, error) {
	owner, name := splitOwnerRepo(repo.FullName)
	id, err := parseInt64(providerBuildID)
	if err != nil {
		return nil, &common.PermanentError{Reason: "invalid provider build id: " + providerBuildID}
	}

	run, resp, err := a.client.Actions.GetWorkflowRunByID(ctx, owner, name, id)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, classifyError(err, resp)
	}

	status := a.NormalizeStatus(run.GetStatus())
	build := &common.RawBuildRun{
		RepoID:        repo.ID,
		Provider:      common.ProviderGitHubActions,
		ProviderBuild: providerBuildID,
		BuildNumber:   int64(run.GetRunNumber()),
		CommitSHA:     run.GetHeadSHA(),
		Branch:        run.GetHeadBranch(),
		Status:        status,
		Conclusion:    a.NormalizeConclusion(run.GetConclusion()),
	}
	return build, nil
}

func (a *Adapter) FetchBuildJobs(ctx context.Context, repo *common.RawRepository, providerBuildID string) ([]ciprovider.BuildJob, error) {
	owner, name := splitOwnerRepo(repo.FullName)
	id, err := parseInt64(providerBuildID)
	if err != nil {
		return nil, &common.PermanentError{Reason: "invalid provider build id: " + providerBuildID}
	}

	jobs, resp, err := a.client.Actions.ListWorkflowJobs(ctx, owner, name, id, nil)
	if err != nil {
		return nil, classifyError(err, resp)
	}

	out := make([]ciprovider.BuildJob, 0, len(jobs.Jobs))
	for _, j := range jobs.Jobs {
		bj := ciprovider.BuildJob{
			JobID:   fmt.Sprintf("%d", j.GetID()),
			JobName: j.GetName(),
			Status:  a.NormalizeStatus(j.GetStatus()),
		}
		if j.StartedAt != nil {
			t := j.GetStartedAt().Unix()
			bj.StartedAt = &t
		}
		if j.CompletedAt != nil {
			t := j.GetCompletedAt().Unix()
			bj.EndedAt = &t
		}
		out = append(out, bj)
	}
	return out, nil
}

// FetchBuildLogs downloads the run's log archive. GitHub serves Actions
// logs as a single zip bundle per run rather than per-job text, so unlike
// the other providers this adapter always returns one LogObject covering
// the whole run, whatever jobID is; callers that need per-job text must
// extract it from Path/Text downstream.
func (a *Adapter) FetchBuildLogs(ctx context.Context, repo *common.RawRepository, providerBuildID, jobID string) ([]ciprovider.LogObject, error) {
	owner, name := splitOwnerRepo(repo.FullName)
	id, err := parseInt64(providerBuildID)
	if err != nil {
		return nil, &common.PermanentError{Reason: "invalid provider build id: " + providerBuildID}
	}

	url, resp, err := a.client.Actions.GetWorkflowRunLogs(ctx, owner, name, id, 1)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone) {
			return nil, &common.ResourceMissingError{Resource: common.ResourceBuildLogs, Reason: "logs expired or unavailable"}
		}
		return nil, classifyError(err, resp)
	}

	httpResp, err := http.Get(url.String())
	if err != nil {
		return nil, &common.RetryableError{Op: "download_logs", Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &common.RetryableError{Op: "read_logs_body", Err: err}
	}

	return []ciprovider.LogObject{{
		JobID:     jobID,
		JobName:   "all",
		Path:      url.String(),
		Text:      string(data),
		SizeBytes: int64(len(data)),
	}}, nil
}

// NormalizeStatus maps GitHub Actions's native status strings into the
// shared five-value enum.
func (a *Adapter) NormalizeStatus(providerStatus string) common.BuildStatus {
	switch providerStatus {
	case "queued":
		return common.BuildQueued
	case "in_progress", "waiting":
		return common.BuildRunning
	case "completed":
		return common.BuildCompleted
	case "requested", "pending":
		return common.BuildPending
	default:
		return common.BuildUnknown
	}
}

// NormalizeConclusion implements ciprovider.ConclusionNormalizer.
func (a *Adapter) NormalizeConclusion(c string) common.BuildConclusion {
	switch c {
	case "success":
		return common.ConclusionSuccess
	case "failure", "startup_failure":
		return common.ConclusionFailure
	case "cancelled":
		return common.ConclusionCancelled
	case "skipped":
		return common.ConclusionSkipped
	case "timed_out":
		return common.ConclusionTimedOut
	case "action_required":
		return common.ConclusionActionRequired
	case "neutral":
		return common.ConclusionNeutral
	default:
		return common.ConclusionNone
	}
}

// WaitRateLimit is a no-op: GitHub draws fresh credentials per request
// from the token pool rather than sleeping a fixed worker slot, per
// spec §4.1.
func (a *Adapter) WaitRateLimit(ctx context.Context) {}

// FetchDiscussionCounts implements ciprovider.DiscussionFetcher. It
// resolves commitSHA to the pull request(s) that introduced it, then
// sums review-comment and issue-style comment counts across them. A
// commit with no associated PR (pushed directly to a branch) returns
// zero counts, not an error.
func (a *Adapter) FetchDiscussionCounts(ctx context.Context, repo *common.RawRepository, commitSHA string) (prComments, issueComments int, err error) {
	owner, name := splitOwnerRepo(repo.FullName)

	prs, resp, err := a.client.PullRequests.ListPullRequestsWithCommit(ctx, owner, name, commitSHA, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return 0, 0, nil
		}
		return 0, 0, classifyError(err, resp)
	}

	for _, pr := range prs {
		num := pr.GetNumber()

		reviewComments, resp, err := a.client.PullRequests.ListComments(ctx, owner, name, num, nil)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				continue
			}
			return 0, 0, classifyError(err, resp)
		}
		prComments += len(reviewComments)

		issueThread, resp, err := a.client.Issues.ListComments(ctx, owner, name, num, nil)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				continue
			}
			return 0, 0, classifyError(err, resp)
		}
		issueComments += len(issueThread)
	}

	return prComments, issueComments, nil
}

func classifyError(err error, resp *gogithub.Response) error {
	if resp != nil && resp.StatusCode >= 500 {
		return &common.RetryableError{Op: "github_api", Err: err}
	}
	return err
}

func parseInt64(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
