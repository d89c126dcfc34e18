package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/devci-tools/buildfeatures/pkg/ciprovider"
	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/orchestrator"
	"github.com/devci-tools/buildfeatures/pkg/orchestrator/inprocpool"
	"github.com/devci-tools/buildfeatures/pkg/storage"
	"github.com/devci-tools/buildfeatures/pkg/storage/memory"
)

// syncDispatcher wraps a real Dispatcher and signals done after every Chord
// call settles, so tests can wait out Service's "go s.runX(...)" goroutines
// deterministically instead of sleeping.
type syncDispatcher struct {
	inner orchestrator.Dispatcher
	done  chan struct{}
}

func newSyncDispatcher() *syncDispatcher {
	return &syncDispatcher{inner: inprocpool.New(0), done: make(chan struct{}, 16)}
}

func (d *syncDispatcher) Chord(ctx context.Context, group orchestrator.Group, callback orchestrator.Callback, errback orchestrator.Errback) error {
	err := d.inner.Chord(ctx, group, callback, errback)
	d.done <- struct{}{}
	return err
}

func (d *syncDispatcher) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chord to complete")
	}
}

// fakeAdapter returns the same fixed page of builds on every call, so a
// MaxBuilds=0 (single page) import fetches exactly len(builds) once.
type fakeAdapter struct {
	builds []*common.RawBuildRun
}

func (a *fakeAdapter) FetchBuilds(ctx context.Context, repo *common.RawRepository, opts ciprovider.FetchOptions) ([]*common.RawBuildRun, error) {
	return a.builds, nil
}
func (a *fakeAdapter) FetchBuildDetails(ctx context.Context, repo *common.RawRepository, providerBuildID string) (*common.RawBuildRun, error) {
	return nil, nil
}
func (a *fakeAdapter) FetchBuildJobs(ctx context.Context, repo *common.RawRepository, providerBuildID string) ([]ciprovider.BuildJob, error) {
	return nil, nil
}
func (a *fakeAdapter) FetchBuildLogs(ctx context.Context, repo *common.RawRepository, providerBuildID, jobID string) ([]ciprovider.LogObject, error) {
	return nil, nil
}
func (a *fakeAdapter) NormalizeStatus(providerStatus string) common.BuildStatus { return common.BuildCompleted }
func (a *fakeAdapter) WaitRateLimit(ctx context.Context)                        {}
func (a *fakeAdapter) Provider() common.ProviderKind                            { return common.ProviderGitHubActions }

var _ ciprovider.Adapter = (*fakeAdapter)(nil)

func newTestService(adapter ciprovider.Adapter, dispatcher orchestrator.Dispatcher) (*orchestrator.Service, storage.Store) {
	store := memory.New()
	svc := &orchestrator.Service{
		Store:      store,
		Adapters:   map[common.ProviderKind]ciprovider.Adapter{common.ProviderGitHubActions: adapter},
		Dispatcher: dispatcher,
	}
	return svc, store
}

func TestImportRepositoryQueuesAndCompletesIngestion(t *testing.T) {
	adapter := &fakeAdapter{builds: []*common.RawBuildRun{
		{RepoID: 1, Provider: common.ProviderGitHubActions, ProviderBuild: "1", CommitSHA: "a"},
		{RepoID: 1, Provider: common.ProviderGitHubActions, ProviderBuild: "2", CommitSHA: "b"},
	}}
	dispatcher := newSyncDispatcher()
	svc, store := newTestService(adapter, dispatcher)

	cfgID, err := svc.ImportRepository(context.Background(), "acme/widgets", common.ProviderGitHubActions, common.ImportConstraints{}, nil)
	if err != nil {
		t.Fatalf("ImportRepository() error = %v", err)
	}

	dispatcher.waitDone(t)

	cfg, err := store.RepoConfigs().Get(context.Background(), cfgID)
	if err != nil {
		t.Fatalf("Get(%d) error = %v", cfgID, err)
	}
	if cfg.Status != common.RepoConfigIngestionComplete {
		t.Errorf("Status = %q, want %q", cfg.Status, common.RepoConfigIngestionComplete)
	}
	if cfg.BuildsFetched != 2 {
		t.Errorf("BuildsFetched = %d, want 2", cfg.BuildsFetched)
	}
}

func TestSyncRepositoryRejectsIneligibleStatus(t *testing.T) {
	adapter := &fakeAdapter{}
	dispatcher := newSyncDispatcher()
	svc, store := newTestService(adapter, dispatcher)

	repoID, err := store.Repositories().Upsert(context.Background(), &common.RawRepository{FullName: "acme/widgets", ProviderID: "acme/widgets"})
	if err != nil {
		t.Fatal(err)
	}
	cfgID, err := store.RepoConfigs().Create(context.Background(), &common.RepoConfig{
		RepoID:   repoID,
		Provider: common.ProviderGitHubActions,
		Status:   common.RepoConfigProcessing, // only Processed -> Queued is legal
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.SyncRepository(context.Background(), cfgID); err == nil {
		t.Fatal("expected an error syncing from Processing status")
	}
}

func TestSyncRepositoryFromProcessedRequeues(t *testing.T) {
	adapter := &fakeAdapter{}
	dispatcher := newSyncDispatcher()
	svc, store := newTestService(adapter, dispatcher)

	repoID, err := store.Repositories().Upsert(context.Background(), &common.RawRepository{FullName: "acme/widgets", ProviderID: "acme/widgets"})
	if err != nil {
		t.Fatal(err)
	}
	cfgID, err := store.RepoConfigs().Create(context.Background(), &common.RepoConfig{
		RepoID:   repoID,
		Provider: common.ProviderGitHubActions,
		Status:   common.RepoConfigProcessed,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.SyncRepository(context.Background(), cfgID); err != nil {
		t.Fatalf("SyncRepository() error = %v", err)
	}
	dispatcher.waitDone(t)

	cfg, err := store.RepoConfigs().Get(context.Background(), cfgID)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Status == common.RepoConfigProcessed {
		t.Error("expected status to have moved off Processed after sync")
	}
}

func TestRetryFailedIngestionOnlyResetsFailedStatus(t *testing.T) {
	adapter := &fakeAdapter{}
	svc, store := newTestService(adapter, newSyncDispatcher())

	repoID, err := store.Repositories().Upsert(context.Background(), &common.RawRepository{FullName: "acme/widgets", ProviderID: "acme/widgets"})
	if err != nil {
		t.Fatal(err)
	}
	cfgID, err := store.RepoConfigs().Create(context.Background(), &common.RepoConfig{RepoID: repoID, Provider: common.ProviderGitHubActions, Status: common.RepoConfigIngestionPartial})
	if err != nil {
		t.Fatal(err)
	}

	buildID, err := store.BuildRuns().Upsert(context.Background(), &common.RawBuildRun{RepoID: repoID, Provider: common.ProviderGitHubActions, ProviderBuild: "1", CommitSHA: "a"})
	if err != nil {
		t.Fatal(err)
	}
	failedID, err := store.IngestionBuilds().Upsert(context.Background(), &common.IngestionBuild{RepoConfigID: cfgID, RawBuildRunID: buildID, Status: common.IngestionFailed})
	if err != nil {
		t.Fatal(err)
	}

	otherBuildID, err := store.BuildRuns().Upsert(context.Background(), &common.RawBuildRun{RepoID: repoID, Provider: common.ProviderGitHubActions, ProviderBuild: "2", CommitSHA: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.IngestionBuilds().Upsert(context.Background(), &common.IngestionBuild{RepoConfigID: cfgID, RawBuildRunID: otherBuildID, Status: common.IngestionMissingResource}); err != nil {
		t.Fatal(err)
	}

	n, err := svc.RetryFailedIngestion(context.Background(), cfgID)
	if err != nil {
		t.Fatalf("RetryFailedIngestion() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("reset count = %d, want 1", n)
	}

	reset, err := store.IngestionBuilds().Get(context.Background(), failedID)
	if err != nil {
		t.Fatal(err)
	}
	if reset.Status != common.IngestionPending {
		t.Errorf("Status = %q, want %q", reset.Status, common.IngestionPending)
	}
}

func TestDeleteRepositoryCascades(t *testing.T) {
	adapter := &fakeAdapter{}
	svc, store := newTestService(adapter, newSyncDispatcher())

	repoID, err := store.Repositories().Upsert(context.Background(), &common.RawRepository{FullName: "acme/widgets", ProviderID: "acme/widgets"})
	if err != nil {
		t.Fatal(err)
	}
	cfgID, err := store.RepoConfigs().Create(context.Background(), &common.RepoConfig{RepoID: repoID, Provider: common.ProviderGitHubActions, Status: common.RepoConfigProcessed})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.DeleteRepository(context.Background(), cfgID); err != nil {
		t.Fatalf("DeleteRepository() error = %v", err)
	}

	if _, err := store.RepoConfigs().Get(context.Background(), cfgID); err != storage.ErrNotFound {
		t.Errorf("Get() after delete error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestGetImportProgressReportsCounters(t *testing.T) {
	adapter := &fakeAdapter{}
	svc, store := newTestService(adapter, newSyncDispatcher())

	repoID, err := store.Repositories().Upsert(context.Background(), &common.RawRepository{FullName: "acme/widgets", ProviderID: "acme/widgets"})
	if err != nil {
		t.Fatal(err)
	}
	cfgID, err := store.RepoConfigs().Create(context.Background(), &common.RepoConfig{
		RepoID:         repoID,
		Provider:       common.ProviderGitHubActions,
		Status:         common.RepoConfigIngestionComplete,
		BuildsFetched:  10,
		BuildsIngested: 8,
		BuildsFailed:   2,
	})
	if err != nil {
		t.Fatal(err)
	}

	progress, err := svc.GetImportProgress(context.Background(), cfgID)
	if err != nil {
		t.Fatalf("GetImportProgress() error = %v", err)
	}
	if progress.BuildsFetched != 10 || progress.BuildsIngested != 8 || progress.BuildsFailed != 2 {
		t.Errorf("progress = %+v, want fetched=10 ingested=8 failed=2", progress)
	}
	if progress.Status != common.RepoConfigIngestionComplete {
		t.Errorf("Status = %q, want %q", progress.Status, common.RepoConfigIngestionComplete)
	}
}
