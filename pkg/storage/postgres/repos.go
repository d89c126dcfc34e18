package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

type repoStore struct{ db *sqlx.DB }

type repoRow struct {
	ID              int64  `db:"id"`
	FullName        string `db:"full_name"`
	ProviderID      string `db:"provider_id"`
	DefaultBranch   string `db:"default_branch"`
	Private         bool   `db:"private"`
	PrimaryLanguage string `db:"primary_language"`
}

func (r *repoRow) toEntity() *common.RawRepository {
	return &common.RawRepository{
		ID:              r.ID,
		FullName:        r.FullName,
		ProviderID:      r.ProviderID,
		DefaultBranch:   r.DefaultBranch,
		Private:         r.Private,
		PrimaryLanguage: r.PrimaryLanguage,
	}
}

func (s *repoStore) Upsert(ctx context.Context, repo *common.RawRepository) (int64, error) {
	if err := repo.Validate(); err != nil {
		return 0, err
	}
	const q = `
		INSERT INTO raw_repositories (full_name, provider_id, default_branch, private, primary_language)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (full_name) DO UPDATE SET
			provider_id = EXCLUDED.provider_id,
			default_branch = EXCLUDED.default_branch,
			private = EXCLUDED.private,
			primary_language = EXCLUDED.primary_language
		RETURNING id`
	var id int64
	if err := s.db.GetContext(ctx, &id, q, repo.FullName, repo.ProviderID, repo.DefaultBranch, repo.Private, repo.PrimaryLanguage); err != nil {
		return 0, err
	}
	repo.ID = id
	return id, nil
}

func (s *repoStore) GetByID(ctx context.Context, id int64) (*common.RawRepository, error) {
	var row repoRow
	err := s.db.GetContext(ctx, &row, `SELECT id, full_name, provider_id, default_branch, private, primary_language FROM raw_repositories WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toEntity(), nil
}

func (s *repoStore) GetByFullName(ctx context.Context, fullName string) (*common.RawRepository, error) {
	var row repoRow
	err := s.db.GetContext(ctx, &row, `SELECT id, full_name, provider_id, default_branch, private, primary_language FROM raw_repositories WHERE full_name = $1`, fullName)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toEntity(), nil
}

var _ storage.RawRepositoryStore = (*repoStore)(nil)
