package scanintegration_test

import (
	"context"
	"testing"
	"time"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/scanintegration"
)

type fakeTool struct {
	name    common.ScanTool
	scanned []string
	fail    map[string]bool
}

func (f *fakeTool) Name() common.ScanTool              { return f.name }
func (f *fakeTool) Available(ctx context.Context) bool { return true }
func (f *fakeTool) AlreadyScanned(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (f *fakeTool) ScanCommit(ctx context.Context, repoFullName, commitSHA, worktreePath string) (string, error) {
	if f.fail[commitSHA] {
		return "", errScan
	}
	f.scanned = append(f.scanned, commitSHA)
	return string(f.name) + "_" + commitSHA, nil
}

var errScan = &scanError{"scan failed"}

type scanError struct{ msg string }

func (e *scanError) Error() string { return e.msg }

type fakeResolver struct{}

func (fakeResolver) ResolveWorktree(ctx context.Context, repoFullName, commitSHA string) (string, error) {
	return "/worktrees/" + commitSHA, nil
}

func buildsWithCommits(shas ...string) []*common.IngestionBuild {
	builds := make([]*common.IngestionBuild, len(shas))
	for i, sha := range shas {
		builds[i] = &common.IngestionBuild{RawBuildRunID: int64(i + 1), CommitSHA: sha}
	}
	return builds
}

func TestDispatchForBuildsNoToolsIsNoop(t *testing.T) {
	d := &scanintegration.Dispatcher{Store: scanintegration.NewMemoryStore(), Resolver: fakeResolver{}}
	summary, err := d.DispatchForBuilds(context.Background(), 1, "acme/widgets", buildsWithCommits("a", "b"))
	if err != nil {
		t.Fatalf("DispatchForBuilds() error = %v", err)
	}
	if summary.BatchesDispatched != 0 {
		t.Errorf("BatchesDispatched = %d, want 0", summary.BatchesDispatched)
	}
}

func TestDispatchForBuildsBatchesAndThrottles(t *testing.T) {
	tool := &fakeTool{name: common.ScanToolSonarQube}
	var sleeps int
	d := &scanintegration.Dispatcher{
		Store:           scanintegration.NewMemoryStore(),
		Tools:           []scanintegration.Tool{tool},
		Resolver:        fakeResolver{},
		CommitsPerBatch: 2,
		Sleep:           func(time.Duration) { sleeps++ },
	}

	summary, err := d.DispatchForBuilds(context.Background(), 1, "acme/widgets", buildsWithCommits("a", "b", "c", "d", "e"))
	if err != nil {
		t.Fatalf("DispatchForBuilds() error = %v", err)
	}
	if summary.BuildsProcessed != 5 {
		t.Errorf("BuildsProcessed = %d, want 5", summary.BuildsProcessed)
	}
	if summary.BatchesDispatched != 3 {
		t.Errorf("BatchesDispatched = %d, want 3 (2+2+1)", summary.BatchesDispatched)
	}
	if !summary.HasSonar || summary.HasTrivy {
		t.Errorf("HasSonar/HasTrivy = %v/%v, want true/false", summary.HasSonar, summary.HasTrivy)
	}
	if sleeps != summary.BatchesDispatched {
		t.Errorf("sleeps = %d, want %d (one per batch)", sleeps, summary.BatchesDispatched)
	}
	if len(tool.scanned) != 5 {
		t.Errorf("scanned %d commits, want 5", len(tool.scanned))
	}
}

func TestDispatchForBuildsDedupesRepeatedCommits(t *testing.T) {
	tool := &fakeTool{name: common.ScanToolTrivy}
	d := &scanintegration.Dispatcher{
		Store:           scanintegration.NewMemoryStore(),
		Tools:           []scanintegration.Tool{tool},
		Resolver:        fakeResolver{},
		CommitsPerBatch: 10,
	}

	// Two IngestionBuild rows can share a commit (e.g. a retried build);
	// the dispatcher must only scan it once.
	_, err := d.DispatchForBuilds(context.Background(), 1, "acme/widgets", buildsWithCommits("a", "a", "b"))
	if err != nil {
		t.Fatalf("DispatchForBuilds() error = %v", err)
	}
	if len(tool.scanned) != 2 {
		t.Errorf("scanned %v, want exactly 2 distinct commits", tool.scanned)
	}
}

func TestDispatchForBuildsSkipsAlreadyCompletedScan(t *testing.T) {
	tool := &fakeTool{name: common.ScanToolSonarQube}
	store := scanintegration.NewMemoryStore()
	if _, err := store.Upsert(context.Background(), &common.SecurityScan{
		RepoID: 1, CommitSHA: "a", Tool: common.ScanToolSonarQube, Status: common.ScanCompleted,
	}); err != nil {
		t.Fatal(err)
	}

	d := &scanintegration.Dispatcher{Store: store, Tools: []scanintegration.Tool{tool}, Resolver: fakeResolver{}, CommitsPerBatch: 10}
	if _, err := d.DispatchForBuilds(context.Background(), 1, "acme/widgets", buildsWithCommits("a", "b")); err != nil {
		t.Fatalf("DispatchForBuilds() error = %v", err)
	}
	if len(tool.scanned) != 1 || tool.scanned[0] != "b" {
		t.Errorf("scanned = %v, want only [b]", tool.scanned)
	}
}

func TestDispatchForBuildsMarksFailureFromTool(t *testing.T) {
	tool := &fakeTool{name: common.ScanToolTrivy, fail: map[string]bool{"a": true}}
	store := scanintegration.NewMemoryStore()
	d := &scanintegration.Dispatcher{Store: store, Tools: []scanintegration.Tool{tool}, Resolver: fakeResolver{}, CommitsPerBatch: 10}

	if _, err := d.DispatchForBuilds(context.Background(), 1, "acme/widgets", buildsWithCommits("a")); err != nil {
		t.Fatalf("DispatchForBuilds() error = %v", err)
	}
	scan, err := store.GetByKey(context.Background(), 1, "a", common.ScanToolTrivy)
	if err != nil {
		t.Fatal(err)
	}
	if scan.Status != common.ScanFailed {
		t.Errorf("Status = %q, want %q", scan.Status, common.ScanFailed)
	}
}
