// Package travis implements the CI provider Adapter for Travis CI,
// polling its v3 REST API through the shared retryablehttp +
// rate.Limiter discipline from spec §4.1.
package travis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/devci-tools/buildfeatures/pkg/ciprovider"
	"github.com/devci-tools/buildfeatures/pkg/common"
)

func init() {
	ciprovider.Register(common.ProviderTravisCI, func(cfg map[string]string) (ciprovider.Adapter, error) {
		return New(cfg["token"]), nil
	})
}

// Adapter implements ciprovider.Adapter over the Travis CI v3 API.
type Adapter struct {
	baseURL string
	token   string
	client  *retryablehttp.Client
	limiter *rate.Limiter
}

func New(token string) *Adapter {
	return &Adapter{
		baseURL: "https://api.travis-ci.com",
		token:   token,
		client:  ciprovider.NewRetryableClient(),
		limiter: ciprovider.NewFixedRateLimiter(3),
	}
}

func (a *Adapter) Provider() common.ProviderKind     { return common.ProviderTravisCI }
func (a *Adapter) WaitRateLimit(ctx context.Context) { ciprovider.WaitFixedRateLimiter(ctx, a.limiter) }

func (a *Adapter) headers() map[string]string {
	return map[string]string{
		"Authorization": "token " + a.token,
		"Travis-API-Version": "3",
	}
}

type tvBuild struct {
	ID          int64     `json:"id"`
	Number      string    `json:"number"`
	State       string    `json:"state"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Commit      struct {
		SHA            string `json:"sha"`
		Ref            string `json:"ref"`
		CommitterName  string `json:"committer_name"`
	} `json:"commit"`
}

type tvBuildPage struct {
	Builds []tvBuild `json:"builds"`
}

func (a *Adapter) FetchBuilds(ctx context.Context, repo *common.RawRepository, opts ciprovider.FetchOptions) ([]*common.RawBuildRun, error) {
	a.WaitRateLimit(ctx)

	endpoint := fmt.Sprintf("%s/repo/%s/builds?limit=%d", a.baseURL, repo.ProviderID, maxLimit(opts.Limit))
	if opts.Branch != "" {
		endpoint += "&branch.name=" + opts.Branch
	}
	body, resp, err := ciprovider.DoJSON(ctx, a.client, "GET", endpoint, a.headers())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 404 {
		return nil, nil
	}

	var page tvBuildPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &common.RetryableError{Op: "decode_builds", Err: err}
	}

	out := make([]*common.RawBuildRun, 0, len(page.Builds))
	for _, b := range page.Builds {
		status := a.NormalizeStatus(b.State)
		if opts.OnlyCompleted && status != common.BuildCompleted {
			continue
		}
		isBot := ciprovider.IsBotCommit(b.Commit.CommitterName)
		if opts.ExcludeBots && isBot {
			continue
		}
		build := &common.RawBuildRun{
			RepoID:        repo.ID,
			Provider:      common.ProviderTravisCI,
			ProviderBuild: fmt.Sprintf("%d", b.ID),
			CommitSHA:     b.Commit.SHA,
			Branch:        b.Commit.Ref,
			Status:        status,
			Conclusion:    normalizeConclusion(b.State),
			IsBotCommit:   isBot,
		}
		if !b.StartedAt.IsZero() {
			build.StartedAt = &b.StartedAt
		}
		if status == common.BuildCompleted && !b.FinishedAt.IsZero() {
			build.CompletedAt = &b.FinishedAt
		}
		out = append(out, build)
	}
	return out, nil
}

func (a *Adapter) FetchBuildDetails(ctx context.Context, repo *common.RawRepository, providerBuildID string) (*common.RawBuildRun, error) {
	a.WaitRateLimit(ctx)
	endpoint := fmt.Sprintf("%s/build/%s", a.baseURL, providerBuildID)
	body, resp, err := ciprovider.DoJSON(ctx, a.client, "GET", endpoint, a.headers())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 404 {
		return nil, nil
	}
	var b tvBuild
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, &common.RetryableError{Op: "decode_build", Err: err}
	}
	return &common.RawBuildRun{
		RepoID:        repo.ID,
		Provider:      common.ProviderTravisCI,
		ProviderBuild: providerBuildID,
		CommitSHA:     b.Commit.SHA,
		Branch:        b.Commit.Ref,
		Status:        a.NormalizeStatus(b.State),
		Conclusion:    normalizeConclusion(b.State),
	}, nil
}

type tvJob struct {
	ID    int64  `json:"id"`
	State string `json:"state"`
}

type tvJobPage struct {
	Jobs []tvJob `json:"jobs"`
}

func (a *Adapter) FetchBuildJobs(ctx context.Context, repo *common.RawRepository, providerBuildID string) ([]ciprovider.BuildJob, error) {
	a.WaitRateLimit(ctx)
	endpoint := fmt.Sprintf("%s/build/%s/jobs", a.baseURL, providerBuildID)
	body, _, err := ciprovider.DoJSON(ctx, a.client, "GET", endpoint, a.headers())
	if err != nil {
		return nil, err
	}
	var page tvJobPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &common.RetryableError{Op: "decode_jobs", Err: err}
	}
	out := make([]ciprovider.BuildJob, 0, len(page.Jobs))
	for _, j := range page.Jobs {
		out = append(out, ciprovider.BuildJob{JobID: fmt.Sprintf("%d", j.ID), JobName: fmt.Sprintf("job-%d", j.ID), Status: a.NormalizeStatus(j.State)})
	}
	return out, nil
}

func (a *Adapter) FetchBuildLogs(ctx context.Context, repo *common.RawRepository, providerBuildID, jobID string) ([]ciprovider.LogObject, error) {
	a.WaitRateLimit(ctx)
	endpoint := fmt.Sprintf("%s/job/%s/log.txt", a.baseURL, jobID)
	body, resp, err := ciprovider.DoJSON(ctx, a.client, "GET", endpoint, a.headers())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 404 {
		return nil, &common.ResourceMissingError{Resource: common.ResourceBuildLogs, Reason: "log expired or not found"}
	}
	return []ciprovider.LogObject{{JobID: jobID, JobName: jobID, Path: endpoint, Text: string(body), SizeBytes: int64(len(body))}}, nil
}

func (a *Adapter) NormalizeStatus(s string) common.BuildStatus {
	switch s {
	case "created", "queued", "received":
		return common.BuildPending
	case "started":
		return common.BuildRunning
	case "passed", "failed", "errored", "canceled":
		return common.BuildCompleted
	default:
		return common.BuildUnknown
	}
}

func normalizeConclusion(s string) common.BuildConclusion {
	switch s {
	case "passed":
		return common.ConclusionSuccess
	case "failed", "errored":
		return common.ConclusionFailure
	case "canceled":
		return common.ConclusionCancelled
	default:
		return common.ConclusionNone
	}
}

func maxLimit(n int) int {
	if n <= 0 || n > 100 {
		return 25
	}
	return n
}
