package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

type buildStore struct{ db *sqlx.DB }

type buildRow struct {
	ID            int64          `db:"id"`
	RepoID        int64          `db:"repo_id"`
	Provider      string         `db:"provider"`
	ProviderBuild string         `db:"provider_build"`
	BuildNumber   int64          `db:"build_number"`
	CommitSHA     string         `db:"commit_sha"`
	Branch        string         `db:"branch"`
	Status        string         `db:"status"`
	Conclusion    string         `db:"conclusion"`
	StartedAt     sql.NullTime   `db:"started_at"`
	CompletedAt   sql.NullTime   `db:"completed_at"`
	CreatedAt     time.Time      `db:"created_at"`
	RawPayload    []byte         `db:"raw_payload"`
	IsBotCommit   bool           `db:"is_bot_commit"`
}

func (r *buildRow) toEntity() *common.RawBuildRun {
	b := &common.RawBuildRun{
		ID:            r.ID,
		RepoID:        r.RepoID,
		Provider:      common.ProviderKind(r.Provider),
		ProviderBuild: r.ProviderBuild,
		BuildNumber:   r.BuildNumber,
		CommitSHA:     r.CommitSHA,
		Branch:        r.Branch,
		Status:        common.BuildStatus(r.Status),
		Conclusion:    common.BuildConclusion(r.Conclusion),
		CreatedAt:     r.CreatedAt,
		RawPayload:    r.RawPayload,
		IsBotCommit:   r.IsBotCommit,
	}
	if r.StartedAt.Valid {
		b.StartedAt = &r.StartedAt.Time
	}
	if r.CompletedAt.Valid {
		b.CompletedAt = &r.CompletedAt.Time
	}
	return b
}

func (s *buildStore) Upsert(ctx context.Context, build *common.RawBuildRun) (int64, error) {
	if err := build.Validate(); err != nil {
		return 0, err
	}
	const q = `
		INSERT INTO raw_build_runs
			(repo_id, provider, provider_build, build_number, commit_sha, branch, status, conclusion, started_at, completed_at, raw_payload, is_bot_commit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (repo_id, provider_build) DO UPDATE SET
			build_number = EXCLUDED.build_number,
			commit_sha = EXCLUDED.commit_sha,
			branch = EXCLUDED.branch,
			status = EXCLUDED.status,
			conclusion = EXCLUDED.conclusion,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			raw_payload = EXCLUDED.raw_payload,
			is_bot_commit = EXCLUDED.is_bot_commit
		RETURNING id`
	var id int64
	err := s.db.GetContext(ctx, &id, q,
		build.RepoID, string(build.Provider), build.ProviderBuild, build.BuildNumber, build.CommitSHA, build.Branch,
		string(build.Status), string(build.Conclusion), build.StartedAt, build.CompletedAt, build.RawPayload, build.IsBotCommit)
	if err != nil {
		return 0, err
	}
	build.ID = id
	return id, nil
}

func (s *buildStore) GetByID(ctx context.Context, id int64) (*common.RawBuildRun, error) {
	var row buildRow
	err := s.db.GetContext(ctx, &row, buildSelect+` WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toEntity(), nil
}

func (s *buildStore) GetByProviderBuild(ctx context.Context, repoID int64, providerBuild string) (*common.RawBuildRun, error) {
	var row buildRow
	err := s.db.GetContext(ctx, &row, buildSelect+` WHERE repo_id = $1 AND provider_build = $2`, repoID, providerBuild)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toEntity(), nil
}

func (s *buildStore) ListByRepo(ctx context.Context, repoID int64, limit int) ([]*common.RawBuildRun, error) {
	q := buildSelect + ` WHERE repo_id = $1 ORDER BY build_number DESC`
	args := []interface{}{repoID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	var rows []buildRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	out := make([]*common.RawBuildRun, len(rows))
	for i := range rows {
		out[i] = rows[i].toEntity()
	}
	return out, nil
}

const buildSelect = `SELECT id, repo_id, provider, provider_build, build_number, commit_sha, branch, status, conclusion, started_at, completed_at, created_at, raw_payload, is_bot_commit FROM raw_build_runs`

var _ storage.RawBuildRunStore = (*buildStore)(nil)
