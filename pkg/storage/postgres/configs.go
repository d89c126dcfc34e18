package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

type configStore struct{ db *sqlx.DB }

type configRow struct {
	ID                             int64          `db:"id"`
	RepoID                         int64          `db:"repo_id"`
	Provider                       string         `db:"provider"`
	MaxBuilds                      int            `db:"max_builds"`
	SinceDays                      int            `db:"since_days"`
	OnlyWithLogs                   bool           `db:"only_with_logs"`
	ExcludeBots                    bool           `db:"exclude_bots"`
	OnlyCompleted                  bool           `db:"only_completed"`
	FeatureSet                     pq.StringArray `db:"feature_set"`
	Status                         string         `db:"status"`
	BuildsFetched                  int64          `db:"builds_fetched"`
	BuildsIngested                 int64          `db:"builds_ingested"`
	BuildsFailed                   int64          `db:"builds_failed"`
	LastProcessedIngestionBuildID  int64          `db:"last_processed_ingestion_build_id"`
	LastSyncError                  string         `db:"last_sync_error"`
	CreatedAt                      time.Time      `db:"created_at"`
	UpdatedAt                      time.Time      `db:"updated_at"`
}

func (r *configRow) toEntity() *common.RepoConfig {
	return &common.RepoConfig{
		ID:     r.ID,
		RepoID: r.RepoID,
		Provider: common.ProviderKind(r.Provider),
		Constraints: common.ImportConstraints{
			MaxBuilds:     r.MaxBuilds,
			SinceDays:     r.SinceDays,
			OnlyWithLogs:  r.OnlyWithLogs,
			ExcludeBots:   r.ExcludeBots,
			OnlyCompleted: r.OnlyCompleted,
		},
		FeatureSet:                     []string(r.FeatureSet),
		Status:                         common.RepoConfigStatus(r.Status),
		BuildsFetched:                  r.BuildsFetched,
		BuildsIngested:                 r.BuildsIngested,
		BuildsFailed:                   r.BuildsFailed,
		LastProcessedIngestionBuildID:  r.LastProcessedIngestionBuildID,
		LastSyncError:                  r.LastSyncError,
		CreatedAt:                      r.CreatedAt,
		UpdatedAt:                      r.UpdatedAt,
	}
}

const configSelect = `SELECT id, repo_id, provider, max_builds, since_days, only_with_logs, exclude_bots, only_completed,
	feature_set, status, builds_fetched, builds_ingested, builds_failed, last_processed_ingestion_build_id,
	last_sync_error, created_at, updated_at FROM repo_configs`

func (s *configStore) Create(ctx context.Context, cfg *common.RepoConfig) (int64, error) {
	const q = `
		INSERT INTO repo_configs
			(repo_id, provider, max_builds, since_days, only_with_logs, exclude_bots, only_completed,
			 feature_set, status, builds_fetched, builds_ingested, builds_failed,
			 last_processed_ingestion_build_id, last_sync_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`
	var id int64
	err := s.db.GetContext(ctx, &id, q,
		cfg.RepoID, string(cfg.Provider), cfg.Constraints.MaxBuilds, cfg.Constraints.SinceDays,
		cfg.Constraints.OnlyWithLogs, cfg.Constraints.ExcludeBots, cfg.Constraints.OnlyCompleted,
		pq.Array(cfg.FeatureSet), string(cfg.Status), cfg.BuildsFetched, cfg.BuildsIngested, cfg.BuildsFailed,
		cfg.LastProcessedIngestionBuildID, cfg.LastSyncError)
	if err != nil {
		return 0, err
	}
	cfg.ID = id
	return id, nil
}

func (s *configStore) Get(ctx context.Context, id int64) (*common.RepoConfig, error) {
	var row configRow
	if err := s.db.GetContext(ctx, &row, configSelect+` WHERE id = $1`, id); err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toEntity(), nil
}

func (s *configStore) Update(ctx context.Context, cfg *common.RepoConfig) error {
	const q = `
		UPDATE repo_configs SET
			max_builds = $2, since_days = $3, only_with_logs = $4, exclude_bots = $5, only_completed = $6,
			feature_set = $7, status = $8, builds_fetched = $9, builds_ingested = $10, builds_failed = $11,
			last_processed_ingestion_build_id = $12, last_sync_error = $13, updated_at = now()
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q,
		cfg.ID, cfg.Constraints.MaxBuilds, cfg.Constraints.SinceDays, cfg.Constraints.OnlyWithLogs,
		cfg.Constraints.ExcludeBots, cfg.Constraints.OnlyCompleted, pq.Array(cfg.FeatureSet), string(cfg.Status),
		cfg.BuildsFetched, cfg.BuildsIngested, cfg.BuildsFailed, cfg.LastProcessedIngestionBuildID, cfg.LastSyncError)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *configStore) List(ctx context.Context) ([]*common.RepoConfig, error) {
	var rows []configRow
	if err := s.db.SelectContext(ctx, &rows, configSelect+` ORDER BY id`); err != nil {
		return nil, err
	}
	out := make([]*common.RepoConfig, len(rows))
	for i := range rows {
		out[i] = rows[i].toEntity()
	}
	return out, nil
}

func (s *configStore) ListByRepo(ctx context.Context, repoID int64) ([]*common.RepoConfig, error) {
	var rows []configRow
	if err := s.db.SelectContext(ctx, &rows, configSelect+` WHERE repo_id = $1 ORDER BY id`, repoID); err != nil {
		return nil, err
	}
	out := make([]*common.RepoConfig, len(rows))
	for i := range rows {
		out[i] = rows[i].toEntity()
	}
	return out, nil
}

// Delete removes cfg and cascades to every IngestionBuild, TrainingBuild,
// and FeatureAuditLog it owns, within a single transaction, per spec §3's
// ownership rule. RawRepository/RawBuildRun rows are untouched.
func (s *configStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM feature_audit_logs WHERE raw_build_run_id IN (
			SELECT raw_build_run_id FROM training_builds WHERE repo_config_id = $1
		)`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM training_builds WHERE repo_config_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ingestion_builds WHERE repo_config_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM repo_configs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return tx.Commit()
}

var _ storage.RepoConfigStore = (*configStore)(nil)
