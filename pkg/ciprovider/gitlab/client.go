// Package gitlab implements the CI provider Adapter for GitLab CI
// pipelines, polling the REST API directly (no official Go client in the
// corpus) through the shared retryablehttp + rate.Limiter discipline spec
// §4.1 specifies for the non-GitHub adapters.
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/devci-tools/buildfeatures/pkg/ciprovider"
	"github.com/devci-tools/buildfeatures/pkg/common"
)

func init() {
	ciprovider.Register(common.ProviderGitLabCI, func(cfg map[string]string) (ciprovider.Adapter, error) {
		return New(cfg["base_url"], cfg["token"]), nil
	})
}

// Adapter implements ciprovider.Adapter over the GitLab REST API.
type Adapter struct {
	baseURL string
	token   string
	client  *retryablehttp.Client
	limiter *rate.Limiter
}

// New builds a GitLab adapter. baseURL defaults to gitlab.com's API root.
func New(baseURL, token string) *Adapter {
	if baseURL == "" {
		baseURL = "https://gitlab.com/api/v4"
	}
	return &Adapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  ciprovider.NewRetryableClient(),
		limiter: ciprovider.NewFixedRateLimiter(4),
	}
}

func (a *Adapter) Provider() common.ProviderKind { return common.ProviderGitLabCI }

func (a *Adapter) WaitRateLimit(ctx context.Context) { ciprovider.WaitFixedRateLimiter(ctx, a.limiter) }

func (a *Adapter) headers() map[string]string {
	return map[string]string{"PRIVATE-TOKEN": a.token}
}

type glPipeline struct {
	ID        int64      `json:"id"`
	IID       int64      `json:"iid"`
	SHA       string     `json:"sha"`
	Ref       string     `json:"ref"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

func (a *Adapter) FetchBuilds(ctx context.Context, repo *common.RawRepository, opts ciprovider.FetchOptions) ([]*common.RawBuildRun, error) {
	a.WaitRateLimit(ctx)

	q := url.Values{}
	q.Set("per_page", strconv.Itoa(opts.Limit))
	q.Set("page", strconv.Itoa(max1(opts.Page)))
	if opts.Branch != "" {
		q.Set("ref", opts.Branch)
	}
	if opts.Since != nil {
		q.Set("updated_after", time.Unix(*opts.Since, 0).Format(time.RFC3339))
	}

	endpoint := fmt.Sprintf("%s/projects/%s/pipelines?%s", a.baseURL, url.PathEscape(repo.ProviderID), q.Encode())
	body, resp, err := ciprovider.DoJSON(ctx, a.client, "GET", endpoint, a.headers())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 404 {
		return nil, nil
	}

	var pipelines []glPipeline
	if err := json.Unmarshal(body, &pipelines); err != nil {
		return nil, &common.RetryableError{Op: "decode_pipelines", Err: err}
	}

	out := make([]*common.RawBuildRun, 0, len(pipelines))
	for _, p := range pipelines {
		status := a.NormalizeStatus(p.Status)
		if opts.OnlyCompleted && status != common.BuildCompleted {
			continue
		}
		b := &common.RawBuildRun{
			RepoID:        repo.ID,
			Provider:      common.ProviderGitLabCI,
			ProviderBuild: fmt.Sprintf("%d", p.ID),
			BuildNumber:   p.IID,
			CommitSHA:     p.SHA,
			Branch:        p.Ref,
			Status:        status,
			Conclusion:    normalizeConclusion(p.Status),
			StartedAt:     p.CreatedAt,
			CompletedAt:   completedAt(status, p.UpdatedAt),
		}
		out = append(out, b)
	}
	return out, nil
}

func (a *Adapter) FetchBuildDetails(ctx context.Context, repo *common.RawRepository, providerBuildID string) (*common.RawBuildRun, error) {
	a.WaitRateLimit(ctx)
	endpoint := fmt.Sprintf("%s/projects/%s/pipelines/%s", a.baseURL, url.PathEscape(repo.ProviderID), providerBuildID)
	body, resp, err := ciprovider.DoJSON(ctx, a.client, "GET", endpoint, a.headers())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 404 {
		return nil, nil
	}
	var p glPipeline
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &common.RetryableError{Op: "decode_pipeline", Err: err}
	}
	status := a.NormalizeStatus(p.Status)
	return &common.RawBuildRun{
		RepoID:        repo.ID,
		Provider:      common.ProviderGitLabCI,
		ProviderBuild: providerBuildID,
		BuildNumber:   p.IID,
		CommitSHA:     p.SHA,
		Branch:        p.Ref,
		Status:        status,
		Conclusion:    normalizeConclusion(p.Status),
	}, nil
}

type glJob struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	StartedAt *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

func (a *Adapter) FetchBuildJobs(ctx context.Context, repo *common.RawRepository, providerBuildID string) ([]ciprovider.BuildJob, error) {
	a.WaitRateLimit(ctx)
	endpoint := fmt.Sprintf("%s/projects/%s/pipelines/%s/jobs", a.baseURL, url.PathEscape(repo.ProviderID), providerBuildID)
	body, _, err := ciprovider.DoJSON(ctx, a.client, "GET", endpoint, a.headers())
	if err != nil {
		return nil, err
	}
	var jobs []glJob
	if err := json.Unmarshal(body, &jobs); err != nil {
		return nil, &common.RetryableError{Op: "decode_jobs", Err: err}
	}
	out := make([]ciprovider.BuildJob, 0, len(jobs))
	for _, j := range jobs {
		bj := ciprovider.BuildJob{JobID: fmt.Sprintf("%d", j.ID), JobName: j.Name, Status: a.NormalizeStatus(j.Status)}
		if j.StartedAt != nil {
			t := j.StartedAt.Unix()
			bj.StartedAt = &t
		}
		if j.FinishedAt != nil {
			t := j.FinishedAt.Unix()
			bj.EndedAt = &t
		}
		out = append(out, bj)
	}
	return out, nil
}

func (a *Adapter) FetchBuildLogs(ctx context.Context, repo *common.RawRepository, providerBuildID, jobID string) ([]ciprovider.LogObject, error) {
	a.WaitRateLimit(ctx)
	endpoint := fmt.Sprintf("%s/projects/%s/jobs/%s/trace", a.baseURL, url.PathEscape(repo.ProviderID), jobID)
	body, resp, err := ciprovider.DoJSON(ctx, a.client, "GET", endpoint, a.headers())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 404 {
		return nil, &common.ResourceMissingError{Resource: common.ResourceBuildLogs, Reason: "trace not found"}
	}
	return []ciprovider.LogObject{{JobID: jobID, JobName: jobID, Path: endpoint, Text: string(body), SizeBytes: int64(len(body))}}, nil
}

func (a *Adapter) NormalizeStatus(s string) common.BuildStatus {
	switch s {
	case "created", "pending", "waiting_for_resource", "preparing", "scheduled":
		return common.BuildPending
	case "running":
		return common.BuildRunning
	case "success", "failed", "canceled", "skipped", "manual":
		return common.BuildCompleted
	default:
		return common.BuildUnknown
	}
}

func normalizeConclusion(s string) common.BuildConclusion {
	switch s {
	case "success":
		return common.ConclusionSuccess
	case "failed":
		return common.ConclusionFailure
	case "canceled":
		return common.ConclusionCancelled
	case "skipped", "manual":
		return common.ConclusionSkipped
	default:
		return common.ConclusionNone
	}
}

func completedAt(status common.BuildStatus, t *time.Time) *time.Time {
	if status == common.BuildCompleted {
		return t
	}
	return nil
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
