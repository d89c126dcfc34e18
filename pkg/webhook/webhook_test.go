package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/devci-tools/buildfeatures/pkg/ciprovider"
	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage/memory"
)

const testSecret = "s3cr3t"

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

type fakeAdapter struct{}

func (fakeAdapter) FetchBuilds(context.Context, *common.RawRepository, ciprovider.FetchOptions) ([]*common.RawBuildRun, error) {
	return nil, nil
}
func (fakeAdapter) FetchBuildDetails(context.Context, *common.RawRepository, string) (*common.RawBuildRun, error) {
	return nil, nil
}
func (fakeAdapter) FetchBuildJobs(context.Context, *common.RawRepository, string) ([]ciprovider.BuildJob, error) {
	return nil, nil
}
func (fakeAdapter) FetchBuildLogs(context.Context, *common.RawRepository, string, string) ([]ciprovider.LogObject, error) {
	return nil, nil
}
func (fakeAdapter) NormalizeStatus(s string) common.BuildStatus {
	if s == "completed" {
		return common.BuildCompleted
	}
	return common.BuildQueued
}
func (fakeAdapter) WaitRateLimit(context.Context)         {}
func (fakeAdapter) Provider() common.ProviderKind         { return common.ProviderGitHubActions }
func (fakeAdapter) NormalizeConclusion(c string) common.BuildConclusion {
	if c == "success" {
		return common.ConclusionSuccess
	}
	return common.ConclusionFailure
}

var _ ciprovider.Adapter = fakeAdapter{}
var _ ciprovider.ConclusionNormalizer = fakeAdapter{}

type fakeDispatcher struct {
	calls int
}

func (d *fakeDispatcher) DispatchBuild(ctx context.Context, cfg *common.RepoConfig, rawBuildRunID int64) error {
	d.calls++
	return nil
}

type fakeInvalidator struct {
	invalidated []string
}

func (f *fakeInvalidator) Invalidate(installationID string) {
	f.invalidated = append(f.invalidated, installationID)
}

func TestHandleGitHubRejectsInvalidSignature(t *testing.T) {
	store := memory.New()
	srv := NewServer(Config{Secret: []byte(testSecret), Store: store, Adapter: fakeAdapter{}})

	body := []byte(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "ping")
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestHandleGitHubWorkflowRunCompletedDispatchesIngestion(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	repoID, err := store.Repositories().Upsert(ctx, &common.RawRepository{FullName: "acme/widgets", ProviderID: "1"})
	if err != nil {
		t.Fatalf("Upsert repo: %v", err)
	}
	if _, err := store.RepoConfigs().Create(ctx, &common.RepoConfig{
		RepoID:   repoID,
		Provider: common.ProviderGitHubActions,
		Status:   common.RepoConfigProcessed,
	}); err != nil {
		t.Fatalf("Create config: %v", err)
	}

	dispatcher := &fakeDispatcher{}
	srv := NewServer(Config{
		Secret:     []byte(testSecret),
		Store:      store,
		Adapter:    fakeAdapter{},
		Dispatcher: dispatcher,
	})

	payload := map[string]interface{}{
		"action": "completed",
		"repository": map[string]interface{}{
			"full_name": "acme/widgets",
		},
		"workflow_run": map[string]interface{}{
			"id":           12345,
			"run_number":   7,
			"head_sha":     "abc123",
			"head_branch":  "main",
			"status":       "completed",
			"conclusion":   "success",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "workflow_run")
	req.Header.Set("X-Hub-Signature-256", sign(body))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if dispatcher.calls != 1 {
		t.Errorf("dispatcher.calls = %d, want 1", dispatcher.calls)
	}

	build, err := store.BuildRuns().GetByProviderBuild(ctx, repoID, "12345")
	if err != nil {
		t.Fatalf("GetByProviderBuild: %v", err)
	}
	if build.Status != common.BuildCompleted {
		t.Errorf("Status = %v, want completed", build.Status)
	}
	if build.Conclusion != common.ConclusionSuccess {
		t.Errorf("Conclusion = %v, want success", build.Conclusion)
	}
}

func TestHandleInstallationInvalidatesCachedToken(t *testing.T) {
	store := memory.New()
	invalidator := &fakeInvalidator{}
	srv := NewServer(Config{Secret: []byte(testSecret), Store: store, Adapter: fakeAdapter{}, Tokens: invalidator})

	payload := map[string]interface{}{
		"action": "deleted",
		"installation": map[string]interface{}{
			"id": 999,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", "installation")
	req.Header.Set("X-Hub-Signature-256", sign(body))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(invalidator.invalidated) != 1 || invalidator.invalidated[0] != "999" {
		t.Errorf("invalidated = %v, want [999]", invalidator.invalidated)
	}
}
