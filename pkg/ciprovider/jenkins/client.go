// Package jenkins implements the CI provider Adapter for Jenkins, polling
// its JSON API (`/job/<name>/api/json`) through the shared retryablehttp +
// rate.Limiter discipline from spec §4.1.
package jenkins

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/devci-tools/buildfeatures/pkg/ciprovider"
	"github.com/devci-tools/buildfeatures/pkg/common"
)

func init() {
	ciprovider.Register(common.ProviderJenkins, func(cfg map[string]string) (ciprovider.Adapter, error) {
		return New(cfg["base_url"], cfg["user"], cfg["token"]), nil
	})
}

// Adapter implements ciprovider.Adapter over a Jenkins server's JSON API.
type Adapter struct {
	baseURL string
	user    string
	token   string
	client  *retryablehttp.Client
	limiter *rate.Limiter
}

func New(baseURL, user, token string) *Adapter {
	return &Adapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		user:    user,
		token:   token,
		client:  ciprovider.NewRetryableClient(),
		limiter: ciprovider.NewFixedRateLimiter(3),
	}
}

func (a *Adapter) Provider() common.ProviderKind     { return common.ProviderJenkins }
func (a *Adapter) WaitRateLimit(ctx context.Context) { ciprovider.WaitFixedRateLimiter(ctx, a.limiter) }

func (a *Adapter) headers() map[string]string {
	if a.user == "" {
		return nil
	}
	return map[string]string{"Authorization": "Basic " + basicAuth(a.user, a.token)}
}

type jkBuild struct {
	Number    int64  `json:"number"`
	Result    string `json:"result"`
	Building  bool   `json:"building"`
	Timestamp int64  `json:"timestamp"` // ms
	Duration  int64  `json:"duration"`  // ms
	ChangeSet struct {
		Items []struct {
			CommitID string `json:"commitId"`
			Author   struct {
				FullName string `json:"fullName"`
			} `json:"author"`
		} `json:"items"`
	} `json:"changeSet"`
}

type jkJobRuns struct {
	Builds []jkBuild `json:"builds"`
}

// FetchBuilds fetches the job's build history. repo.ProviderID holds the
// job path (e.g. "folder/job/my-job").
func (a *Adapter) FetchBuilds(ctx context.Context, repo *common.RawRepository, opts ciprovider.FetchOptions) ([]*common.RawBuildRun, error) {
	a.WaitRateLimit(ctx)

	endpoint := fmt.Sprintf("%s/job/%s/api/json?tree=builds[number,result,building,timestamp,duration,changeSet[items[commitId,author[fullName]]]]", a.baseURL, repo.ProviderID)
	body, resp, err := ciprovider.DoJSON(ctx, a.client, "GET", endpoint, a.headers())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 404 {
		return nil, nil
	}

	var runs jkJobRuns
	if err := json.Unmarshal(body, &runs); err != nil {
		return nil, &common.RetryableError{Op: "decode_builds", Err: err}
	}

	out := make([]*common.RawBuildRun, 0, len(runs.Builds))
	for _, b := range runs.Builds {
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
		status := a.normalizeFromBuild(b)
		if opts.OnlyCompleted && status != common.BuildCompleted {
			continue
		}

		sha, author := "", ""
		if len(b.ChangeSet.Items) > 0 {
			sha = b.ChangeSet.Items[0].CommitID
			author = b.ChangeSet.Items[0].Author.FullName
		}
		isBot := ciprovider.IsBotCommit(author)
		if opts.ExcludeBots && isBot {
			continue
		}

		build := &common.RawBuildRun{
			RepoID:        repo.ID,
			Provider:      common.ProviderJenkins,
			ProviderBuild: fmt.Sprintf("%d", b.Number),
			BuildNumber:   b.Number,
			CommitSHA:     sha,
			Status:        status,
			Conclusion:    normalizeConclusion(b.Result),
			IsBotCommit:   isBot,
		}
		out = append(out, build)
	}
	return out, nil
}

func (a *Adapter) FetchBuildDetails(ctx context.Context, repo *common.RawRepository, providerBuildID string) (*common.RawBuildRun, error) {
	a.WaitRateLimit(ctx)
	endpoint := fmt.Sprintf("%s/job/%s/%s/api/json", a.baseURL, repo.ProviderID, providerBuildID)
	body, resp, err := ciprovider.DoJSON(ctx, a.client, "GET", endpoint, a.headers())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 404 {
		return nil, nil
	}
	var b jkBuild
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, &common.RetryableError{Op: "decode_build", Err: err}
	}
	return &common.RawBuildRun{
		RepoID:        repo.ID,
		Provider:      common.ProviderJenkins,
		ProviderBuild: providerBuildID,
		BuildNumber:   b.Number,
		Status:        a.normalizeFromBuild(b),
		Conclusion:    normalizeConclusion(b.Result),
	}, nil
}

// FetchBuildJobs returns a single synthetic job representing the build
// itself: Jenkins freestyle/pipeline jobs do not expose GitHub Actions-style
// sub-jobs through this API without the Pipeline Stage plugin, which is
// out of scope here.
func (a *Adapter) FetchBuildJobs(ctx context.Context, repo *common.RawRepository, providerBuildID string) ([]ciprovider.BuildJob, error) {
	return []ciprovider.BuildJob{{JobID: providerBuildID, JobName: repo.ProviderID, Status: common.BuildCompleted}}, nil
}

func (a *Adapter) FetchBuildLogs(ctx context.Context, repo *common.RawRepository, providerBuildID, jobID string) ([]ciprovider.LogObject, error) {
	a.WaitRateLimit(ctx)
	endpoint := fmt.Sprintf("%s/job/%s/%s/consoleText", a.baseURL, repo.ProviderID, providerBuildID)
	body, resp, err := ciprovider.DoJSON(ctx, a.client, "GET", endpoint, a.headers())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 404 {
		return nil, &common.ResourceMissingError{Resource: common.ResourceBuildLogs, Reason: "console log not found"}
	}
	return []ciprovider.LogObject{{JobID: providerBuildID, JobName: "console", Path: endpoint, Text: string(body), SizeBytes: int64(len(body))}}, nil
}

func (a *Adapter) normalizeFromBuild(b jkBuild) common.BuildStatus {
	if b.Building {
		return common.BuildRunning
	}
	if b.Result == "" {
		return common.BuildPending
	}
	return common.BuildCompleted
}

func (a *Adapter) NormalizeStatus(s string) common.BuildStatus {
	switch s {
	case "BUILDING":
		return common.BuildRunning
	case "":
		return common.BuildPending
	default:
		return common.BuildCompleted
	}
}

func normalizeConclusion(result string) common.BuildConclusion {
	switch result {
	case "SUCCESS":
		return common.ConclusionSuccess
	case "FAILURE":
		return common.ConclusionFailure
	case "ABORTED":
		return common.ConclusionCancelled
	case "NOT_BUILT":
		return common.ConclusionSkipped
	case "UNSTABLE":
		return common.ConclusionNeutral
	default:
		return common.ConclusionNone
	}
}

func basicAuth(user, token string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + token))
}
