package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

// openTestStore connects to a real PostgreSQL instance from BUILDFEATURES_TEST_DSN
// and applies migrations, mirroring jordigilh-kubernaut's integration-test style of
// running these suites against a real database rather than a mock. Skipped when the
// variable isn't set, since no database is provisioned in this environment.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("BUILDFEATURES_TEST_DSN")
	if dsn == "" {
		t.Skip("BUILDFEATURES_TEST_DSN not set, skipping postgres integration test")
	}
	store, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return store
}

func TestRepositoryUpsertIsIdempotentOnFullName(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id1, err := store.Repositories().Upsert(ctx, &common.RawRepository{FullName: "acme/widgets", ProviderID: "1"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	id2, err := store.Repositories().Upsert(ctx, &common.RawRepository{FullName: "acme/widgets", ProviderID: "1", Private: true})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if id1 != id2 {
		t.Errorf("id1=%d id2=%d, want equal (idempotent upsert)", id1, id2)
	}

	got, err := store.Repositories().GetByFullName(ctx, "acme/widgets")
	if err != nil {
		t.Fatalf("GetByFullName() error = %v", err)
	}
	if !got.Private {
		t.Error("expected the second Upsert's fields to have overwritten the first")
	}
}

func TestRepoConfigDeleteCascadesToOwnedEntities(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	repoID, err := store.Repositories().Upsert(ctx, &common.RawRepository{FullName: "acme/cascade", ProviderID: "2"})
	if err != nil {
		t.Fatalf("Upsert repository error = %v", err)
	}
	buildID, err := store.BuildRuns().Upsert(ctx, &common.RawBuildRun{
		RepoID: repoID, Provider: common.ProviderGitHubActions, ProviderBuild: "99", Status: common.BuildQueued,
	})
	if err != nil {
		t.Fatalf("Upsert build error = %v", err)
	}
	cfgID, err := store.RepoConfigs().Create(ctx, &common.RepoConfig{RepoID: repoID, Provider: common.ProviderGitHubActions, Status: common.RepoConfigQueued})
	if err != nil {
		t.Fatalf("Create config error = %v", err)
	}

	ingestID, err := store.IngestionBuilds().Upsert(ctx, &common.IngestionBuild{RepoConfigID: cfgID, RawBuildRunID: buildID, Status: common.IngestionPending})
	if err != nil {
		t.Fatalf("Upsert ingestion build error = %v", err)
	}
	trainingID, err := store.TrainingBuilds().Upsert(ctx, &common.TrainingBuild{RawBuildRunID: buildID, RepoConfigID: cfgID, ExtractionStatus: common.ExtractionPending})
	if err != nil {
		t.Fatalf("Upsert training build error = %v", err)
	}
	auditID, err := store.AuditLogs().Insert(ctx, &common.FeatureAuditLog{RawBuildRunID: buildID, FinalStatus: common.ExtractionCompleted})
	if err != nil {
		t.Fatalf("Insert audit log error = %v", err)
	}

	if err := store.RepoConfigs().Delete(ctx, cfgID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := store.RepoConfigs().Get(ctx, cfgID); err == nil {
		t.Error("expected config to be gone after Delete")
	}
	if _, err := store.IngestionBuilds().Get(ctx, ingestID); err == nil {
		t.Error("expected ingestion build to cascade-delete")
	}
	if _, err := store.TrainingBuilds().Get(ctx, trainingID); err == nil {
		t.Error("expected training build to cascade-delete")
	}
	if _, err := store.AuditLogs().GetByRawBuildRun(ctx, buildID); err == nil {
		t.Error("expected audit log to cascade-delete")
	}
	_ = auditID

	if _, err := store.Repositories().GetByID(ctx, repoID); err != nil {
		t.Errorf("expected shared RawRepository to survive the cascade, got error = %v", err)
	}
	if _, err := store.BuildRuns().GetByID(ctx, buildID); err != nil {
		t.Errorf("expected shared RawBuildRun to survive the cascade, got error = %v", err)
	}
}

func TestIngestionBuildResetToPendingOnlyResetsEligibleStatuses(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	repoID, err := store.Repositories().Upsert(ctx, &common.RawRepository{FullName: "acme/reset", ProviderID: "3"})
	if err != nil {
		t.Fatalf("Upsert repository error = %v", err)
	}
	cfgID, err := store.RepoConfigs().Create(ctx, &common.RepoConfig{RepoID: repoID, Provider: common.ProviderGitHubActions, Status: common.RepoConfigIngesting})
	if err != nil {
		t.Fatalf("Create config error = %v", err)
	}

	failedBuildID, err := store.BuildRuns().Upsert(ctx, &common.RawBuildRun{RepoID: repoID, Provider: common.ProviderGitHubActions, ProviderBuild: "f1", Status: common.BuildQueued})
	if err != nil {
		t.Fatalf("Upsert build error = %v", err)
	}
	missingBuildID, err := store.BuildRuns().Upsert(ctx, &common.RawBuildRun{RepoID: repoID, Provider: common.ProviderGitHubActions, ProviderBuild: "f2", Status: common.BuildQueued})
	if err != nil {
		t.Fatalf("Upsert build error = %v", err)
	}

	failedID, err := store.IngestionBuilds().Upsert(ctx, &common.IngestionBuild{RepoConfigID: cfgID, RawBuildRunID: failedBuildID, Status: common.IngestionFailed})
	if err != nil {
		t.Fatalf("Upsert ingestion build error = %v", err)
	}
	missingID, err := store.IngestionBuilds().Upsert(ctx, &common.IngestionBuild{RepoConfigID: cfgID, RawBuildRunID: missingBuildID, Status: common.IngestionMissingResource})
	if err != nil {
		t.Fatalf("Upsert ingestion build error = %v", err)
	}

	n, err := store.IngestionBuilds().ResetToPending(ctx, cfgID, []common.IngestionStatus{common.IngestionFailed, common.IngestionMissingResource})
	if err != nil {
		t.Fatalf("ResetToPending() error = %v", err)
	}
	if n != 1 {
		t.Errorf("ResetToPending() reset %d rows, want 1", n)
	}

	failed, err := store.IngestionBuilds().Get(ctx, failedID)
	if err != nil {
		t.Fatalf("Get(failed) error = %v", err)
	}
	if failed.Status != common.IngestionPending {
		t.Errorf("failed row status = %v, want pending", failed.Status)
	}

	missing, err := store.IngestionBuilds().Get(ctx, missingID)
	if err != nil {
		t.Fatalf("Get(missing) error = %v", err)
	}
	if missing.Status != common.IngestionMissingResource {
		t.Errorf("missing_resource row status = %v, want unchanged", missing.Status)
	}
}
