package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devci-tools/buildfeatures/pkg/ciprovider"
	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/extractors"
	"github.com/devci-tools/buildfeatures/pkg/featuredag"
	"github.com/devci-tools/buildfeatures/pkg/metrics"
	"github.com/devci-tools/buildfeatures/pkg/resource"
	"github.com/devci-tools/buildfeatures/pkg/scanintegration"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

// Progress is the response shape for GetImportProgress.
type Progress struct {
	RepoConfigID   int64
	Status         common.RepoConfigStatus
	BuildsFetched  int64
	BuildsIngested int64
	BuildsFailed   int64
	LastSyncError  string
}

// Service implements spec §6's seven admin operations — ImportRepository,
// SyncRepository, StartProcessing, RetryFailedIngestion,
// RetryFailedProcessing, DeleteRepository, GetImportProgress — as the
// orchestrator's public surface, the way boskos/ranch.Ranch exposes
// Acquire/Release/Update as the ranch's public surface over its locked
// resource map. cmd/featurectl and cmd/ingestord's webhook Dispatcher are
// both thin callers of this type; neither reimplements pipeline logic.
type Service struct {
	Store      storage.Store
	Adapters   map[common.ProviderKind]ciprovider.Adapter
	Acquirer   *resource.Acquirer
	Dispatcher Dispatcher
	// Scanner is nil-safe, the same pattern as Acquirer: when set, every
	// processing run also dispatches per-commit SonarQube/Trivy scans for
	// the builds it just processed (spec.md's named-but-unbuilt
	// scan-integration throttles). When nil, processing behaves exactly as
	// it did before scan integration existed.
	Scanner        *scanintegration.Dispatcher
	BuildsPerPage  int
	BuildsPerBatch int
}

// Service satisfies webhook.Dispatcher via DispatchBuild without either
// package importing the other; this assertion just makes that wiring
// explicit at compile time.
var _ interface {
	DispatchBuild(ctx context.Context, cfg *common.RepoConfig, rawBuildRunID int64) error
} = (*Service)(nil)

func (s *Service) adapterFor(provider common.ProviderKind) (ciprovider.Adapter, error) {
	a, ok := s.Adapters[provider]
	if !ok {
		return nil, fmt.Errorf("orchestrator: no adapter configured for provider %q", provider)
	}
	return a, nil
}

// ImportRepository registers repoFullName under provider, creates its
// RepoConfig, and dispatches the initial ingestion fetch as a chord group
// (spec §4.3: fetch happens in the group, the callback advances
// RepoConfig's status once every page task has settled).
func (s *Service) ImportRepository(ctx context.Context, repoFullName string, provider common.ProviderKind, constraints common.ImportConstraints, featureSet []string) (int64, error) {
	adapter, err := s.adapterFor(provider)
	if err != nil {
		return 0, err
	}

	// ProviderID defaults to the full name itself: GitHub's adapter keys
	// every call off FullName already, and other providers overwrite this
	// with their real project/job id once the first fetch resolves it.
	repoID, err := s.Store.Repositories().Upsert(ctx, &common.RawRepository{FullName: repoFullName, ProviderID: repoFullName})
	if err != nil {
		return 0, fmt.Errorf("orchestrator: upsert repository: %w", err)
	}

	cfg := &common.RepoConfig{
		RepoID:      repoID,
		Provider:    provider,
		Constraints: constraints,
		FeatureSet:  featureSet,
		Status:      common.RepoConfigQueued,
	}
	cfgID, err := s.Store.RepoConfigs().Create(ctx, cfg)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: create repo config: %w", err)
	}
	cfg.ID = cfgID

	repo, err := s.Store.Repositories().GetByID(ctx, repoID)
	if err != nil {
		return 0, err
	}

	go s.runIngestion(context.Background(), adapter, repo, cfg)
	return cfgID, nil
}

// SyncRepository re-queues cfg for a fresh incremental fetch, the "sync
// requested" transition spec §4.3's status table allows from Processed.
func (s *Service) SyncRepository(ctx context.Context, repoConfigID int64) error {
	cfg, err := s.Store.RepoConfigs().Get(ctx, repoConfigID)
	if err != nil {
		return err
	}
	if !cfg.Status.CanTransitionTo(common.RepoConfigQueued) {
		return fmt.Errorf("orchestrator: cannot sync repo config %d from status %q", repoConfigID, cfg.Status)
	}
	cfg.Status = common.RepoConfigQueued
	if err := s.Store.RepoConfigs().Update(ctx, cfg); err != nil {
		return err
	}

	adapter, err := s.adapterFor(cfg.Provider)
	if err != nil {
		return err
	}
	repo, err := s.Store.Repositories().GetByID(ctx, cfg.RepoID)
	if err != nil {
		return err
	}

	go s.runIngestion(context.Background(), adapter, repo, cfg)
	return nil
}

// runIngestion fetches up to cfg.Constraints.MaxBuilds build runs (paged at
// s.BuildsPerPage) and records one IngestionBuild per RawBuildRun, then
// moves cfg to IngestionComplete or IngestionPartial depending on whether
// every fetch task within the chord group succeeded.
func (s *Service) runIngestion(ctx context.Context, adapter ciprovider.Adapter, repo *common.RawRepository, cfg *common.RepoConfig) {
	cfg.Status = common.RepoConfigIngesting
	if err := s.Store.RepoConfigs().Update(ctx, cfg); err != nil {
		logrus.WithError(err).WithField("repo_config_id", cfg.ID).Warning("orchestrator: failed to mark ingesting")
		return
	}

	pageSize := s.BuildsPerPage
	if pageSize <= 0 {
		pageSize = 100
	}
	pages := 1
	if cfg.Constraints.MaxBuilds > 0 {
		pages = (cfg.Constraints.MaxBuilds + pageSize - 1) / pageSize
	}

	group := Group{Name: fmt.Sprintf("ingest:%d", cfg.ID)}
	for page := 1; page <= pages; page++ {
		page := page
		group.Tasks = append(group.Tasks, Task{
			Name:  fmt.Sprintf("fetch-page-%d", page),
			Retry: FetchRetryPolicy,
			Fn: func(taskCtx context.Context) (interface{}, error) {
				builds, err := adapter.FetchBuilds(taskCtx, repo, ciprovider.FetchOptions{
					Limit:         pageSize,
					Page:          page,
					OnlyWithLogs:  cfg.Constraints.OnlyWithLogs,
					ExcludeBots:   cfg.Constraints.ExcludeBots,
					OnlyCompleted: cfg.Constraints.OnlyCompleted,
				})
				if err != nil {
					return nil, err
				}
				if max := cfg.Constraints.MaxBuilds; max > 0 {
					if remaining := max - (page-1)*pageSize; len(builds) > remaining {
						builds = builds[:remaining]
					}
				}
				for _, b := range builds {
					buildID, err := s.Store.BuildRuns().Upsert(taskCtx, b)
					if err != nil {
						return nil, err
					}
					if _, err := s.Store.IngestionBuilds().Upsert(taskCtx, &common.IngestionBuild{
						RepoConfigID:  cfg.ID,
						RawBuildRunID: buildID,
						CommitSHA:     b.CommitSHA,
						Status:        common.IngestionPending,
					}); err != nil {
						return nil, err
					}
				}
				return len(builds), nil
			},
		})
	}

	callback := func(cbCtx context.Context, results []TaskResult) error {
		failed := false
		fetched := int64(0)
		for _, r := range results {
			if r.Err != nil {
				failed = true
				continue
			}
			if n, ok := r.Value.(int); ok {
				fetched += int64(n)
			}
		}
		metrics.ChordGroupsCompletedTotal.WithLabelValues("ingestion", fmt.Sprintf("%v", failed)).Inc()

		cfg, err := s.Store.RepoConfigs().Get(cbCtx, cfg.ID)
		if err != nil {
			return err
		}
		cfg.BuildsFetched += fetched
		if failed {
			cfg.Status = common.RepoConfigIngestionPartial
		} else {
			cfg.Status = common.RepoConfigIngestionComplete
		}
		return s.Store.RepoConfigs().Update(cbCtx, cfg)
	}

	errback := func(ebCtx context.Context, err error) {
		cfg, getErr := s.Store.RepoConfigs().Get(ebCtx, cfg.ID)
		if getErr != nil {
			return
		}
		cfg.Status = common.RepoConfigFailed
		cfg.LastSyncError = err.Error()
		_ = s.Store.RepoConfigs().Update(ebCtx, cfg)
	}

	if err := s.Dispatcher.Chord(ctx, group, callback, errback); err != nil {
		logrus.WithError(err).WithField("repo_config_id", cfg.ID).Warning("orchestrator: ingestion chord failed")
	}
}

// StartProcessing moves cfg from IngestionComplete/IngestionPartial to
// Processing and dispatches feature extraction for every Ingested
// IngestionBuild, batched at s.BuildsPerBatch per spec §6's
// PROCESSING_BUILDS_PER_BATCH.
func (s *Service) StartProcessing(ctx context.Context, repoConfigID int64) error {
	cfg, err := s.Store.RepoConfigs().Get(ctx, repoConfigID)
	if err != nil {
		return err
	}
	if !cfg.Status.CanTransitionTo(common.RepoConfigProcessing) {
		return fmt.Errorf("orchestrator: cannot start processing repo config %d from status %q", repoConfigID, cfg.Status)
	}
	cfg.Status = common.RepoConfigProcessing
	if err := s.Store.RepoConfigs().Update(ctx, cfg); err != nil {
		return err
	}

	ingested, err := s.Store.IngestionBuilds().ListByStatus(ctx, repoConfigID, common.IngestionIngested)
	if err != nil {
		return err
	}

	go s.runProcessing(context.Background(), cfg, ingested)
	return nil
}

func (s *Service) runProcessing(ctx context.Context, cfg *common.RepoConfig, builds []*common.IngestionBuild) {
	plan, err := featuredag.Schedule(cfg.FeatureSet)
	if err != nil {
		logrus.WithError(err).WithField("repo_config_id", cfg.ID).Warning("orchestrator: schedule failed")
		return
	}

	batch := s.BuildsPerBatch
	if batch <= 0 {
		batch = 50
	}

	group := Group{Name: fmt.Sprintf("process:%d", cfg.ID)}
	for _, b := range builds {
		b := b
		group.Tasks = append(group.Tasks, Task{
			Name:  fmt.Sprintf("extract-%d", b.RawBuildRunID),
			Retry: DefaultRetryPolicy,
			Fn: func(taskCtx context.Context) (interface{}, error) {
				return s.extractOne(taskCtx, cfg, b, plan)
			},
		})
		if len(group.Tasks) >= batch {
			break
		}
	}

	callback := func(cbCtx context.Context, results []TaskResult) error {
		failed := false
		for _, r := range results {
			if r.Err != nil {
				failed = true
			}
		}
		metrics.ChordGroupsCompletedTotal.WithLabelValues("processing", fmt.Sprintf("%v", failed)).Inc()

		cfg, err := s.Store.RepoConfigs().Get(cbCtx, cfg.ID)
		if err != nil {
			return err
		}
		if failed {
			cfg.Status = common.RepoConfigFailed
		} else {
			cfg.Status = common.RepoConfigProcessed
		}
		return s.Store.RepoConfigs().Update(cbCtx, cfg)
	}

	errback := func(ebCtx context.Context, err error) {
		cfg, getErr := s.Store.RepoConfigs().Get(ebCtx, cfg.ID)
		if getErr != nil {
			return
		}
		cfg.Status = common.RepoConfigFailed
		cfg.LastSyncError = err.Error()
		_ = s.Store.RepoConfigs().Update(ebCtx, cfg)
	}

	if err := s.Dispatcher.Chord(ctx, group, callback, errback); err != nil {
		logrus.WithError(err).WithField("repo_config_id", cfg.ID).Warning("orchestrator: processing chord failed")
	}

	s.dispatchScans(ctx, cfg, builds)
}

// dispatchScans fires the scan-integration dispatcher, when configured, for
// the commits just processed. It is supplementary to the core pipeline:
// failures here are logged, never surfaced to the caller or retried through
// RetryFailedProcessing.
func (s *Service) dispatchScans(ctx context.Context, cfg *common.RepoConfig, builds []*common.IngestionBuild) {
	if s.Scanner == nil {
		return
	}
	repo, err := s.Store.Repositories().GetByID(ctx, cfg.RepoID)
	if err != nil {
		logrus.WithError(err).WithField("repo_config_id", cfg.ID).Warning("orchestrator: scan dispatch: repo lookup failed")
		return
	}
	summary, err := s.Scanner.DispatchForBuilds(ctx, repo.ID, repo.FullName, builds)
	if err != nil {
		logrus.WithError(err).WithField("repo_config_id", cfg.ID).Warning("orchestrator: scan dispatch failed")
		return
	}
	logrus.WithField("repo_config_id", cfg.ID).
		WithField("batches", summary.BatchesDispatched).
		Debug("orchestrator: scan dispatch complete")
}

// extractOne acquires what it can of a build's resources, runs the DAG
// over whatever resources were acquired successfully, and persists the
// resulting TrainingBuild + FeatureAuditLog. A resource that can't be
// acquired is recorded in resourceStatus and simply absent from the
// ExecContext — per spec §4.5, a node missing a dependency is skipped, not
// a task failure.
func (s *Service) extractOne(ctx context.Context, cfg *common.RepoConfig, ib *common.IngestionBuild, plan *featuredag.Plan) (interface{}, error) {
	build, err := s.Store.BuildRuns().GetByID(ctx, ib.RawBuildRunID)
	if err != nil {
		return nil, err
	}
	repo, err := s.Store.Repositories().GetByID(ctx, cfg.RepoID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapterFor(cfg.Provider)
	if err != nil {
		return nil, err
	}

	resources := map[common.ResourceKind]interface{}{}
	resourceStatus := map[common.ResourceKind]common.ResourceOutcome{}

	if s.Acquirer != nil {
		cloneURL := fmt.Sprintf("https://github.com/%s.git", repo.FullName)
		start := time.Now()
		barePath, err := s.Acquirer.EnsureBareRepo(ctx, repo, cloneURL, build.CommitSHA)
		done := time.Now()
		if err != nil {
			resourceStatus[common.ResourceBareRepo] = common.ResourceOutcome{Status: common.ResourceFailed, Error: err.Error(), StartedAt: &start, CompletedAt: &done}
		} else {
			resourceStatus[common.ResourceBareRepo] = common.ResourceOutcome{Status: common.ResourceCompleted, StartedAt: &start, CompletedAt: &done}
			resources[common.ResourceBareRepo] = extractors.BareRepoResource{Backend: s.Acquirer.Backend(), Path: barePath}

			wtStart := time.Now()
			wt, err := s.Acquirer.EnsureWorktree(ctx, repo, barePath, build.CommitSHA, nil)
			wtDone := time.Now()
			if err != nil {
				resourceStatus[common.ResourceWorktree] = common.ResourceOutcome{Status: common.ResourceFailed, Error: err.Error(), StartedAt: &wtStart, CompletedAt: &wtDone}
			} else {
				resourceStatus[common.ResourceWorktree] = common.ResourceOutcome{Status: common.ResourceCompleted, StartedAt: &wtStart, CompletedAt: &wtDone}
				resources[common.ResourceWorktree] = extractors.WorktreeResource{Path: wt.Path, EffectiveSHA: wt.EffectiveSHA}
			}
		}

		logStart := time.Now()
		logs, err := s.Acquirer.DownloadLogs(ctx, adapter, repo, build.ProviderBuild, "")
		logDone := time.Now()
		if err != nil {
			resourceStatus[common.ResourceBuildLogs] = common.ResourceOutcome{Status: common.ResourceSkipped, Error: err.Error(), StartedAt: &logStart, CompletedAt: &logDone}
		} else {
			resourceStatus[common.ResourceBuildLogs] = common.ResourceOutcome{Status: common.ResourceCompleted, StartedAt: &logStart, CompletedAt: &logDone}
			resources[common.ResourceBuildLogs] = extractors.LogsResource(logs)
		}
	}

	result, err := featuredag.Execute(ctx, build, resources, plan)
	if err != nil {
		return nil, err
	}

	extractionStatus := featuredag.DetermineExtractionStatus(result)
	var missing []common.ResourceKind
	for kind, outcome := range resourceStatus {
		if outcome.Status != common.ResourceCompleted {
			missing = append(missing, kind)
		}
	}

	tb := &common.TrainingBuild{
		RepoConfigID:     cfg.ID,
		RawBuildRunID:    build.ID,
		ExtractionStatus: extractionStatus,
		Features:         result.Features,
		MissingResources: missing,
	}
	if _, err := s.Store.TrainingBuilds().Upsert(ctx, tb); err != nil {
		return nil, err
	}

	succeeded, failedCount, skipped, retries := 0, 0, 0, 0
	for _, n := range result.Audit {
		switch n.Status {
		case "success":
			succeeded++
		case "failed":
			failedCount++
		case "skipped":
			skipped++
		}
		retries += n.RetryCount
	}
	if _, err := s.Store.AuditLogs().Insert(ctx, &common.FeatureAuditLog{
		RawBuildRunID: build.ID,
		CorrelationID: fmt.Sprintf("%d-%d", cfg.ID, build.ID),
		Nodes:         result.Audit,
		Succeeded:     succeeded,
		Failed:        failedCount,
		Skipped:       skipped,
		Retries:       retries,
		FinalStatus:   extractionStatus,
	}); err != nil {
		return nil, err
	}

	ib.Status = common.IngestionIngested
	ib.ResourceStatus = resourceStatus
	_, _ = s.Store.IngestionBuilds().Upsert(ctx, ib)

	return tb.ID, nil
}

// RetryFailedIngestion resets Failed (never MissingResource)
// IngestionBuilds back to Pending, per spec §7.
func (s *Service) RetryFailedIngestion(ctx context.Context, repoConfigID int64) (int, error) {
	return s.Store.IngestionBuilds().ResetToPending(ctx, repoConfigID, []common.IngestionStatus{common.IngestionFailed})
}

// RetryFailedProcessing resets Failed TrainingBuilds back to Pending and
// redispatches extraction, per spec §7's "reprocess failed" operation.
func (s *Service) RetryFailedProcessing(ctx context.Context, repoConfigID int64) (int, error) {
	n, err := s.Store.TrainingBuilds().ResetFailedToPending(ctx, repoConfigID)
	if err != nil || n == 0 {
		return n, err
	}
	if err := s.StartProcessing(ctx, repoConfigID); err != nil {
		return n, err
	}
	return n, nil
}

// DeleteRepository removes cfg and its cascaded entities.
func (s *Service) DeleteRepository(ctx context.Context, repoConfigID int64) error {
	return s.Store.RepoConfigs().Delete(ctx, repoConfigID)
}

// GetImportProgress reports cfg's current counters and status.
func (s *Service) GetImportProgress(ctx context.Context, repoConfigID int64) (*Progress, error) {
	cfg, err := s.Store.RepoConfigs().Get(ctx, repoConfigID)
	if err != nil {
		return nil, err
	}
	return &Progress{
		RepoConfigID:   cfg.ID,
		Status:         cfg.Status,
		BuildsFetched:  cfg.BuildsFetched,
		BuildsIngested: cfg.BuildsIngested,
		BuildsFailed:   cfg.BuildsFailed,
		LastSyncError:  cfg.LastSyncError,
	}, nil
}

// DispatchBuild implements webhook.Dispatcher: it extracts features for a
// single webhook-delivered build immediately, skipping the batch/chord
// machinery StartProcessing uses for a full resync.
func (s *Service) DispatchBuild(ctx context.Context, cfg *common.RepoConfig, rawBuildRunID int64) error {
	ib, err := s.Store.IngestionBuilds().GetByBusinessKey(ctx, cfg.ID, rawBuildRunID)
	if err != nil {
		if err != storage.ErrNotFound {
			return err
		}
		ib = &common.IngestionBuild{RepoConfigID: cfg.ID, RawBuildRunID: rawBuildRunID, Status: common.IngestionPending}
		if _, err := s.Store.IngestionBuilds().Upsert(ctx, ib); err != nil {
			return err
		}
	}

	plan, err := featuredag.Schedule(cfg.FeatureSet)
	if err != nil {
		return err
	}
	_, err = s.extractOne(ctx, cfg, ib, plan)
	return err
}
