package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

type ingestStore struct{ db *sqlx.DB }

type ingestRow struct {
	ID                 int64          `db:"id"`
	RepoConfigID       int64          `db:"repo_config_id"`
	RawBuildRunID      int64          `db:"raw_build_run_id"`
	CIRunID            string         `db:"ci_run_id"`
	CommitSHA          string         `db:"commit_sha"`
	EffectiveSHA       string         `db:"effective_sha"`
	Status             string         `db:"status"`
	RequiredResources  pq.StringArray `db:"required_resources"`
	ResourceStatus     []byte         `db:"resource_status"`
	IngestionError     string         `db:"ingestion_error"`
	CreatedAt          time.Time      `db:"created_at"`
	FetchedAt          sql.NullTime   `db:"fetched_at"`
	IngestingStartedAt sql.NullTime   `db:"ingesting_started_at"`
	CompletedAt        sql.NullTime   `db:"completed_at"`
}

func (r *ingestRow) toEntity() (*common.IngestionBuild, error) {
	required := make([]common.ResourceKind, len(r.RequiredResources))
	for i, s := range r.RequiredResources {
		required[i] = common.ResourceKind(s)
	}
	var resourceStatus map[common.ResourceKind]common.ResourceOutcome
	if len(r.ResourceStatus) > 0 {
		if err := json.Unmarshal(r.ResourceStatus, &resourceStatus); err != nil {
			return nil, err
		}
	}
	b := &common.IngestionBuild{
		ID:                r.ID,
		RepoConfigID:      r.RepoConfigID,
		RawBuildRunID:     r.RawBuildRunID,
		CIRunID:           r.CIRunID,
		CommitSHA:         r.CommitSHA,
		EffectiveSHA:      r.EffectiveSHA,
		Status:            common.IngestionStatus(r.Status),
		RequiredResources: required,
		ResourceStatus:    resourceStatus,
		IngestionError:    r.IngestionError,
		CreatedAt:         r.CreatedAt,
	}
	if r.FetchedAt.Valid {
		b.FetchedAt = &r.FetchedAt.Time
	}
	if r.IngestingStartedAt.Valid {
		b.IngestingStartedAt = &r.IngestingStartedAt.Time
	}
	if r.CompletedAt.Valid {
		b.CompletedAt = &r.CompletedAt.Time
	}
	return b, nil
}

const ingestSelect = `SELECT id, repo_config_id, raw_build_run_id, ci_run_id, commit_sha, effective_sha, status,
	required_resources, resource_status, ingestion_error, created_at, fetched_at, ingesting_started_at, completed_at
	FROM ingestion_builds`

func (s *ingestStore) Upsert(ctx context.Context, b *common.IngestionBuild) (int64, error) {
	required := make([]string, len(b.RequiredResources))
	for i, r := range b.RequiredResources {
		required[i] = string(r)
	}
	resourceStatus, err := json.Marshal(b.ResourceStatus)
	if err != nil {
		return 0, err
	}
	const q = `
		INSERT INTO ingestion_builds
			(repo_config_id, raw_build_run_id, ci_run_id, commit_sha, effective_sha, status,
			 required_resources, resource_status, ingestion_error, fetched_at, ingesting_started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (repo_config_id, raw_build_run_id) DO UPDATE SET
			ci_run_id = EXCLUDED.ci_run_id,
			commit_sha = EXCLUDED.commit_sha,
			effective_sha = EXCLUDED.effective_sha,
			status = EXCLUDED.status,
			required_resources = EXCLUDED.required_resources,
			resource_status = EXCLUDED.resource_status,
			ingestion_error = EXCLUDED.ingestion_error,
			fetched_at = EXCLUDED.fetched_at,
			ingesting_started_at = EXCLUDED.ingesting_started_at,
			completed_at = EXCLUDED.completed_at
		RETURNING id`
	var id int64
	err = s.db.GetContext(ctx, &id, q,
		b.RepoConfigID, b.RawBuildRunID, b.CIRunID, b.CommitSHA, b.EffectiveSHA, string(b.Status),
		pq.Array(required), resourceStatus, b.IngestionError, b.FetchedAt, b.IngestingStartedAt, b.CompletedAt)
	if err != nil {
		return 0, err
	}
	b.ID = id
	return id, nil
}

func (s *ingestStore) Get(ctx context.Context, id int64) (*common.IngestionBuild, error) {
	var row ingestRow
	if err := s.db.GetContext(ctx, &row, ingestSelect+` WHERE id = $1`, id); err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toEntity()
}

func (s *ingestStore) GetByBusinessKey(ctx context.Context, repoConfigID, rawBuildRunID int64) (*common.IngestionBuild, error) {
	var row ingestRow
	err := s.db.GetContext(ctx, &row, ingestSelect+` WHERE repo_config_id = $1 AND raw_build_run_id = $2`, repoConfigID, rawBuildRunID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toEntity()
}

func (s *ingestStore) ListByRepoConfig(ctx context.Context, repoConfigID int64) ([]*common.IngestionBuild, error) {
	var rows []ingestRow
	if err := s.db.SelectContext(ctx, &rows, ingestSelect+` WHERE repo_config_id = $1`, repoConfigID); err != nil {
		return nil, err
	}
	return ingestRowsToEntities(rows)
}

func (s *ingestStore) ListByStatus(ctx context.Context, repoConfigID int64, status common.IngestionStatus) ([]*common.IngestionBuild, error) {
	var rows []ingestRow
	err := s.db.SelectContext(ctx, &rows, ingestSelect+` WHERE repo_config_id = $1 AND status = $2`, repoConfigID, string(status))
	if err != nil {
		return nil, err
	}
	return ingestRowsToEntities(rows)
}

// ResetToPending resets every row in repoConfigID whose status is both in
// statuses and CanResetToPending-eligible back to pending. Ineligible
// statuses are dropped from the list before the UPDATE runs, so a caller
// passing a broader statuses slice, e.g. including missing_resource, can
// never reset an expected-terminal row.
func (s *ingestStore) ResetToPending(ctx context.Context, repoConfigID int64, statuses []common.IngestionStatus) (int, error) {
	eligible := make([]string, 0, len(statuses))
	for _, st := range statuses {
		if st.CanResetToPending() {
			eligible = append(eligible, string(st))
		}
	}
	if len(eligible) == 0 {
		return 0, nil
	}
	const q = `UPDATE ingestion_builds SET status = $1 WHERE repo_config_id = $2 AND status = ANY($3)`
	res, err := s.db.ExecContext(ctx, q, string(common.IngestionPending), repoConfigID, pq.Array(eligible))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func ingestRowsToEntities(rows []ingestRow) ([]*common.IngestionBuild, error) {
	out := make([]*common.IngestionBuild, len(rows))
	for i := range rows {
		e, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

var _ storage.IngestionBuildStore = (*ingestStore)(nil)
