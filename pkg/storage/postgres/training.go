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

type trainingStore struct{ db *sqlx.DB }

type trainingRow struct {
	ID               int64           `db:"id"`
	RawBuildRunID    int64           `db:"raw_build_run_id"`
	RepoConfigID     int64           `db:"repo_config_id"`
	ExtractionStatus string          `db:"extraction_status"`
	Features         []byte          `db:"features"`
	MissingResources pq.StringArray  `db:"missing_resources"`
	SkippedFeatures  pq.StringArray  `db:"skipped_features"`
	ExtractionError  string          `db:"extraction_error"`
	PredictedLabel   sql.NullString  `db:"predicted_label"`
	Confidence       sql.NullFloat64 `db:"confidence"`
	Uncertainty      sql.NullFloat64 `db:"uncertainty"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

func (r *trainingRow) toEntity() (*common.TrainingBuild, error) {
	missing := make([]common.ResourceKind, len(r.MissingResources))
	for i, s := range r.MissingResources {
		missing[i] = common.ResourceKind(s)
	}
	var features map[string]interface{}
	if len(r.Features) > 0 {
		if err := json.Unmarshal(r.Features, &features); err != nil {
			return nil, err
		}
	}
	t := &common.TrainingBuild{
		ID:               r.ID,
		RawBuildRunID:    r.RawBuildRunID,
		RepoConfigID:     r.RepoConfigID,
		ExtractionStatus: common.ExtractionStatus(r.ExtractionStatus),
		Features:         features,
		MissingResources: missing,
		SkippedFeatures:  []string(r.SkippedFeatures),
		ExtractionError:  r.ExtractionError,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.PredictedLabel.Valid {
		t.PredictedLabel = &r.PredictedLabel.String
	}
	if r.Confidence.Valid {
		t.Confidence = &r.Confidence.Float64
	}
	if r.Uncertainty.Valid {
		t.Uncertainty = &r.Uncertainty.Float64
	}
	return t, nil
}

const trainingSelect = `SELECT id, raw_build_run_id, repo_config_id, extraction_status, features, missing_resources,
	skipped_features, extraction_error, predicted_label, confidence, uncertainty, created_at, updated_at
	FROM training_builds`

func (s *trainingStore) Upsert(ctx context.Context, t *common.TrainingBuild) (int64, error) {
	features, err := json.Marshal(t.Features)
	if err != nil {
		return 0, err
	}
	missing := make([]string, len(t.MissingResources))
	for i, r := range t.MissingResources {
		missing[i] = string(r)
	}
	const q = `
		INSERT INTO training_builds
			(raw_build_run_id, repo_config_id, extraction_status, features, missing_resources, skipped_features,
			 extraction_error, predicted_label, confidence, uncertainty)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (raw_build_run_id) DO UPDATE SET
			extraction_status = EXCLUDED.extraction_status,
			features = EXCLUDED.features,
			missing_resources = EXCLUDED.missing_resources,
			skipped_features = EXCLUDED.skipped_features,
			extraction_error = EXCLUDED.extraction_error,
			predicted_label = EXCLUDED.predicted_label,
			confidence = EXCLUDED.confidence,
			uncertainty = EXCLUDED.uncertainty,
			updated_at = now()
		RETURNING id`
	var id int64
	err = s.db.GetContext(ctx, &id, q,
		t.RawBuildRunID, t.RepoConfigID, string(t.ExtractionStatus), features, pq.Array(missing),
		pq.Array(t.SkippedFeatures), t.ExtractionError, t.PredictedLabel, t.Confidence, t.Uncertainty)
	if err != nil {
		return 0, err
	}
	t.ID = id
	return id, nil
}

func (s *trainingStore) Get(ctx context.Context, id int64) (*common.TrainingBuild, error) {
	var row trainingRow
	if err := s.db.GetContext(ctx, &row, trainingSelect+` WHERE id = $1`, id); err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toEntity()
}

func (s *trainingStore) GetByRawBuildRun(ctx context.Context, rawBuildRunID int64) (*common.TrainingBuild, error) {
	var row trainingRow
	if err := s.db.GetContext(ctx, &row, trainingSelect+` WHERE raw_build_run_id = $1`, rawBuildRunID); err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toEntity()
}

func (s *trainingStore) ListByRepoConfig(ctx context.Context, repoConfigID int64) ([]*common.TrainingBuild, error) {
	var rows []trainingRow
	if err := s.db.SelectContext(ctx, &rows, trainingSelect+` WHERE repo_config_id = $1`, repoConfigID); err != nil {
		return nil, err
	}
	out := make([]*common.TrainingBuild, len(rows))
	for i := range rows {
		e, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (s *trainingStore) ResetFailedToPending(ctx context.Context, repoConfigID int64) (int, error) {
	const q = `UPDATE training_builds SET extraction_status = $1, updated_at = now() WHERE repo_config_id = $2 AND extraction_status = $3`
	res, err := s.db.ExecContext(ctx, q, string(common.ExtractionPending), repoConfigID, string(common.ExtractionFailed))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

var _ storage.TrainingBuildStore = (*trainingStore)(nil)
