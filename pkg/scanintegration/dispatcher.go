package scanintegration

import (
	"context"
	"time"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

// WorktreeResolver resolves a checked-out worktree for a commit so a Tool
// has something to scan. Implementations typically wrap
// resource.Acquirer.EnsureBareRepo/EnsureWorktree; kept as a narrow
// interface here so this package never imports pkg/resource directly.
type WorktreeResolver interface {
	ResolveWorktree(ctx context.Context, repoFullName, commitSHA string) (path string, err error)
}

// DispatchSummary mirrors the summary dict dispatch_version_scans returns:
// counts processed, batches dispatched, and which tools ran.
type DispatchSummary struct {
	BuildsProcessed   int
	BatchesDispatched int
	HasSonar          bool
	HasTrivy          bool
}

// Dispatcher paginates a repo config's ingested builds, dedupes commits,
// and dispatches scan batches throttled by BuildsPerQuery/CommitsPerBatch/
// BatchDelay — the Go translation of dispatch_version_scans, consuming the
// three SCAN_* config keys spec.md names but the distillation left dead.
type Dispatcher struct {
	Store    Store
	Tools    []Tool
	Resolver WorktreeResolver

	BuildsPerQuery  int
	CommitsPerBatch int
	BatchDelay      time.Duration

	// Sleep overrides time.Sleep for tests; nil uses the real clock.
	Sleep func(time.Duration)
}

func (d *Dispatcher) sleep(dur time.Duration) {
	if d.Sleep != nil {
		d.Sleep(dur)
		return
	}
	time.Sleep(dur)
}

// DispatchForBuilds runs the throttled per-commit scan dispatch over
// builds, a repo config's ingested IngestionBuild rows. If no Tools are
// configured it is a no-op, matching dispatch_version_scans's early return
// when a dataset version has neither "sonarqube" nor "trivy" selected.
func (d *Dispatcher) DispatchForBuilds(ctx context.Context, repoID int64, repoFullName string, builds []*common.IngestionBuild) (DispatchSummary, error) {
	summary := DispatchSummary{}
	if len(d.Tools) == 0 {
		return summary, nil
	}
	for _, t := range d.Tools {
		switch t.Name() {
		case common.ScanToolSonarQube:
			summary.HasSonar = true
		case common.ScanToolTrivy:
			summary.HasTrivy = true
		}
	}

	perQuery := d.BuildsPerQuery
	if perQuery <= 0 {
		perQuery = len(builds)
	}
	if perQuery <= 0 {
		perQuery = 1
	}

	pending := map[string]struct{}{}
	var batch []string

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := d.dispatchBatch(ctx, repoID, repoFullName, batch); err != nil {
			return err
		}
		summary.BatchesDispatched++
		batch = nil
		pending = map[string]struct{}{}
		d.sleep(d.BatchDelay)
		return nil
	}

	for start := 0; start < len(builds); start += perQuery {
		end := start + perQuery
		if end > len(builds) {
			end = len(builds)
		}
		for _, b := range builds[start:end] {
			summary.BuildsProcessed++
			if b.CommitSHA == "" {
				continue
			}
			if _, seen := pending[b.CommitSHA]; seen {
				continue
			}
			pending[b.CommitSHA] = struct{}{}
			batch = append(batch, b.CommitSHA)
			if len(batch) >= d.CommitsPerBatch {
				if err := flush(); err != nil {
					return summary, err
				}
			}
		}
	}
	// Final partial batch, matching dispatch_version_scans's trailing
	// dispatch of whatever didn't fill a full batch.
	if err := flush(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (d *Dispatcher) dispatchBatch(ctx context.Context, repoID int64, repoFullName string, commits []string) error {
	for _, sha := range commits {
		for _, tool := range d.Tools {
			if err := d.dispatchOne(ctx, repoID, repoFullName, sha, tool); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, repoID int64, repoFullName, commitSHA string, tool Tool) error {
	existing, err := d.Store.GetByKey(ctx, repoID, commitSHA, tool.Name())
	if err != nil && err != storage.ErrNotFound {
		return err
	}
	if existing != nil && existing.Status != common.ScanFailed {
		return nil // already dispatched or completed; this dispatcher's own dedup
	}

	scan := &common.SecurityScan{
		RepoID:       repoID,
		CommitSHA:    commitSHA,
		Tool:         tool.Name(),
		Status:       common.ScanScanning,
		DispatchedAt: time.Now(),
	}
	if _, err := d.Store.Upsert(ctx, scan); err != nil {
		return err
	}

	path, err := d.Resolver.ResolveWorktree(ctx, repoFullName, commitSHA)
	if err != nil {
		return d.markFailed(ctx, scan, err)
	}

	componentKey, err := tool.ScanCommit(ctx, repoFullName, commitSHA, path)
	if err != nil {
		return d.markFailed(ctx, scan, err)
	}

	now := time.Now()
	scan.Status = common.ScanCompleted
	scan.ComponentKey = componentKey
	scan.CompletedAt = &now
	_, err = d.Store.Upsert(ctx, scan)
	return err
}

func (d *Dispatcher) markFailed(ctx context.Context, scan *common.SecurityScan, cause error) error {
	now := time.Now()
	scan.Status = common.ScanFailed
	scan.Error = cause.Error()
	scan.CompletedAt = &now
	_, err := d.Store.Upsert(ctx, scan)
	return err
}
