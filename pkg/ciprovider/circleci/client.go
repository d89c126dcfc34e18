// Package circleci implements the CI provider Adapter for CircleCI,
// polling its v2 REST API through the shared retryablehttp + rate.Limiter
// discipline from spec §4.1.
package circleci

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
	ciprovider.Register(common.ProviderCircleCI, func(cfg map[string]string) (ciprovider.Adapter, error) {
		return New(cfg["token"]), nil
	})
}

// Adapter implements ciprovider.Adapter over the CircleCI v2 API.
type Adapter struct {
	baseURL string
	token   string
	client  *retryablehttp.Client
	limiter *rate.Limiter
}

func New(token string) *Adapter {
	return &Adapter{
		baseURL: "https://circleci.com/api/v2",
		token:   token,
		client:  ciprovider.NewRetryableClient(),
		limiter: ciprovider.NewFixedRateLimiter(5),
	}
}

func (a *Adapter) Provider() common.ProviderKind     { return common.ProviderCircleCI }
func (a *Adapter) WaitRateLimit(ctx context.Context) { ciprovider.WaitFixedRateLimiter(ctx, a.limiter) }

func (a *Adapter) headers() map[string]string {
	return map[string]string{"Circle-Token": a.token}
}

type ccPipeline struct {
	ID        string    `json:"id"`
	Number    int64     `json:"number"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	VCS       struct {
		Revision string `json:"revision"`
		Branch   string `json:"branch"`
	} `json:"vcs"`
}

type ccPipelinePage struct {
	Items         []ccPipeline `json:"items"`
	NextPageToken string       `json:"next_page_token"`
}

func (a *Adapter) FetchBuilds(ctx context.Context, repo *common.RawRepository, opts ciprovider.FetchOptions) ([]*common.RawBuildRun, error) {
	a.WaitRateLimit(ctx)

	endpoint := fmt.Sprintf("%s/project/%s/pipeline", a.baseURL, repo.ProviderID)
	if opts.Branch != "" {
		endpoint += "?branch=" + opts.Branch
	}
	body, resp, err := ciprovider.DoJSON(ctx, a.client, "GET", endpoint, a.headers())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 404 {
		return nil, nil
	}

	var page ccPipelinePage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &common.RetryableError{Op: "decode_pipelines", Err: err}
	}

	out := make([]*common.RawBuildRun, 0, len(page.Items))
	for _, p := range page.Items {
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
		status := a.NormalizeStatus(p.State)
		if opts.OnlyCompleted && status != common.BuildCompleted {
			continue
		}
		build := &common.RawBuildRun{
			RepoID:        repo.ID,
			Provider:      common.ProviderCircleCI,
			ProviderBuild: p.ID,
			BuildNumber:   p.Number,
			CommitSHA:     p.VCS.Revision,
			Branch:        p.VCS.Branch,
			Status:        status,
			Conclusion:    normalizeConclusion(p.State),
			StartedAt:     &p.CreatedAt,
		}
		if status == common.BuildCompleted {
			build.CompletedAt = &p.UpdatedAt
		}
		out = append(out, build)
	}
	return out, nil
}

func (a *Adapter) FetchBuildDetails(ctx context.Context, repo *common.RawRepository, providerBuildID string) (*common.RawBuildRun, error) {
	a.WaitRateLimit(ctx)
	endpoint := fmt.Sprintf("%s/pipeline/%s", a.baseURL, providerBuildID)
	body, resp, err := ciprovider.DoJSON(ctx, a.client, "GET", endpoint, a.headers())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 404 {
		return nil, nil
	}
	var p ccPipeline
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &common.RetryableError{Op: "decode_pipeline", Err: err}
	}
	return &common.RawBuildRun{
		RepoID:        repo.ID,
		Provider:      common.ProviderCircleCI,
		ProviderBuild: providerBuildID,
		BuildNumber:   p.Number,
		CommitSHA:     p.VCS.Revision,
		Branch:        p.VCS.Branch,
		Status:        a.NormalizeStatus(p.State),
		Conclusion:    normalizeConclusion(p.State),
	}, nil
}

type ccWorkflow struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type ccWorkflowPage struct {
	Items []ccWorkflow `json:"items"`
}

func (a *Adapter) FetchBuildJobs(ctx context.Context, repo *common.RawRepository, providerBuildID string) ([]ciprovider.BuildJob, error) {
	a.WaitRateLimit(ctx)
	endpoint := fmt.Sprintf("%s/pipeline/%s/workflow", a.baseURL, providerBuildID)
	body, _, err := ciprovider.DoJSON(ctx, a.client, "GET", endpoint, a.headers())
	if err != nil {
		return nil, err
	}
	var page ccWorkflowPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &common.RetryableError{Op: "decode_workflows", Err: err}
	}
	out := make([]ciprovider.BuildJob, 0, len(page.Items))
	for _, w := range page.Items {
		out = append(out, ciprovider.BuildJob{JobID: w.ID, JobName: w.Name, Status: a.NormalizeStatus(w.Status)})
	}
	return out, nil
}

func (a *Adapter) FetchBuildLogs(ctx context.Context, repo *common.RawRepository, providerBuildID, jobID string) ([]ciprovider.LogObject, error) {
	// CircleCI exposes step output via job-details endpoints keyed by job
	// number, not the workflow job id passed here; fetching it requires an
	// extra lookup the illustrative scope of this adapter skips, so logs
	// are reported unavailable rather than guessed at.
	return nil, &common.ResourceMissingError{Resource: common.ResourceBuildLogs, Reason: "circleci step log lookup not implemented for job " + jobID}
}

func (a *Adapter) NormalizeStatus(s string) common.BuildStatus {
	switch s {
	case "created", "on_hold":
		return common.BuildPending
	case "running":
		return common.BuildRunning
	case "success", "failed", "error", "failing", "canceled", "not_run", "unauthorized":
		return common.BuildCompleted
	default:
		return common.BuildUnknown
	}
}

func normalizeConclusion(s string) common.BuildConclusion {
	switch s {
	case "success":
		return common.ConclusionSuccess
	case "failed", "failing", "error":
		return common.ConclusionFailure
	case "canceled":
		return common.ConclusionCancelled
	case "not_run":
		return common.ConclusionSkipped
	default:
		return common.ConclusionNone
	}
}

