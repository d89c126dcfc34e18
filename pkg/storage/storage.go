// Package storage defines the persistence interfaces for every entity in
// spec §3, one interface per entity rather than boskos's single
// PersistenceLayer — RawRepository/RawBuildRun are shared, independently
// keyed records, while RepoConfig owns a cascading subtree of
// IngestionBuild/TrainingBuild/FeatureAuditLog rows, so a single
// CRUD-on-one-type interface (as boskos/storage.PersistenceLayer models for
// its one Resource type) doesn't fit the whole schema. pkg/storage/memory
// and pkg/storage/postgres each implement the full Store aggregate.
package storage

import (
	"context"
	"errors"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

// ErrNotFound is returned by any Get/lookup method when no matching row
// exists.
var ErrNotFound = errors.New("storage: not found")

// ErrAlreadyExists names a collision with an existing unique key
// (RawRepository.FullName, RawBuildRun's per-repo provider build id). The
// memory and postgres stores never return it: writes on those keys are
// upserts.
var ErrAlreadyExists = errors.New("storage: already exists")

// RawRepositoryStore persists RawRepository identity records.
type RawRepositoryStore interface {
	// Upsert inserts or updates by FullName (globally unique), returning
	// the row's assigned ID.
	Upsert(ctx context.Context, repo *common.RawRepository) (int64, error)
	GetByID(ctx context.Context, id int64) (*common.RawRepository, error)
	GetByFullName(ctx context.Context, fullName string) (*common.RawRepository, error)
}

// RawBuildRunStore persists RawBuildRun records, shared across every
// RepoConfig pointed at the same repo.
type RawBuildRunStore interface {
	// Upsert inserts or updates by (RepoID, ProviderBuild), the per-provider
	// uniqueness invariant from spec §3, returning the row's assigned ID.
	Upsert(ctx context.Context, build *common.RawBuildRun) (int64, error)
	GetByID(ctx context.Context, id int64) (*common.RawBuildRun, error)
	GetByProviderBuild(ctx context.Context, repoID int64, providerBuild string) (*common.RawBuildRun, error)
	// ListByRepo returns builds for repoID ordered by BuildNumber descending,
	// newest first, up to limit (0 = no limit).
	ListByRepo(ctx context.Context, repoID int64, limit int) ([]*common.RawBuildRun, error)
}

// RepoConfigStore persists RepoConfig records and owns the cascading
// delete across its downstream entities.
type RepoConfigStore interface {
	Create(ctx context.Context, cfg *common.RepoConfig) (int64, error)
	Get(ctx context.Context, id int64) (*common.RepoConfig, error)
	Update(ctx context.Context, cfg *common.RepoConfig) error
	List(ctx context.Context) ([]*common.RepoConfig, error)
	// ListByRepo returns every RepoConfig pointed at repoID, the lookup the
	// webhook receiver uses to find which config(s) a workflow_run event's
	// build belongs to.
	ListByRepo(ctx context.Context, repoID int64) ([]*common.RepoConfig, error)
	// Delete removes cfg and every IngestionBuild, TrainingBuild, and
	// FeatureAuditLog it owns, per spec §3's ownership rule.
	// RawRepository/RawBuildRun are untouched. The postgres store does this
	// in one transaction; the memory store deletes store by store, so a
	// concurrent reader can observe the cascade part-way.
	Delete(ctx context.Context, id int64) error
}

// IngestionBuildStore persists IngestionBuild orchestration-tracking
// records. Upserts are idempotent on (RepoConfigID, RawBuildRunID).
type IngestionBuildStore interface {
	Upsert(ctx context.Context, b *common.IngestionBuild) (int64, error)
	Get(ctx context.Context, id int64) (*common.IngestionBuild, error)
	GetByBusinessKey(ctx context.Context, repoConfigID, rawBuildRunID int64) (*common.IngestionBuild, error)
	ListByRepoConfig(ctx context.Context, repoConfigID int64) ([]*common.IngestionBuild, error)
	ListByStatus(ctx context.Context, repoConfigID int64, status common.IngestionStatus) ([]*common.IngestionBuild, error)
	// ResetToPending resets every row in statuses (expected to be a
	// CanResetToPending-eligible subset, e.g. just Failed) back to Pending,
	// the "retry failed ingestion" operation from spec §6/§7.
	ResetToPending(ctx context.Context, repoConfigID int64, statuses []common.IngestionStatus) (int, error)
}

// TrainingBuildStore persists TrainingBuild extraction results.
type TrainingBuildStore interface {
	Upsert(ctx context.Context, t *common.TrainingBuild) (int64, error)
	Get(ctx context.Context, id int64) (*common.TrainingBuild, error)
	GetByRawBuildRun(ctx context.Context, rawBuildRunID int64) (*common.TrainingBuild, error)
	ListByRepoConfig(ctx context.Context, repoConfigID int64) ([]*common.TrainingBuild, error)
	// ResetFailedToPending resets every Failed row owned by repoConfigID
	// back to Pending, the "reprocess failed" operation from spec §7.
	ResetFailedToPending(ctx context.Context, repoConfigID int64) (int, error)
}

// FeatureAuditLogStore persists per-extraction-run audit records.
type FeatureAuditLogStore interface {
	Insert(ctx context.Context, a *common.FeatureAuditLog) (int64, error)
	GetByRawBuildRun(ctx context.Context, rawBuildRunID int64) (*common.FeatureAuditLog, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*common.FeatureAuditLog, error)
}

// Store aggregates every per-entity store behind one handle, the shape
// callers (orchestrator, cmd/ingestord, cmd/featurectl) depend on.
type Store interface {
	Repositories() RawRepositoryStore
	BuildRuns() RawBuildRunStore
	RepoConfigs() RepoConfigStore
	IngestionBuilds() IngestionBuildStore
	TrainingBuilds() TrainingBuildStore
	AuditLogs() FeatureAuditLogStore
}
