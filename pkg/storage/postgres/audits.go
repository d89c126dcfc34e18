package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

type auditStore struct{ db *sqlx.DB }

type auditRow struct {
	ID            int64     `db:"id"`
	CorrelationID string    `db:"correlation_id"`
	RawBuildRunID int64     `db:"raw_build_run_id"`
	Nodes         []byte    `db:"nodes"`
	Succeeded     int       `db:"succeeded"`
	Failed        int       `db:"failed"`
	Skipped       int       `db:"skipped"`
	Retries       int       `db:"retries"`
	FinalStatus   string    `db:"final_status"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r *auditRow) toEntity() (*common.FeatureAuditLog, error) {
	var nodes []common.NodeOutcome
	if len(r.Nodes) > 0 {
		if err := json.Unmarshal(r.Nodes, &nodes); err != nil {
			return nil, err
		}
	}
	return &common.FeatureAuditLog{
		ID:            r.ID,
		CorrelationID: r.CorrelationID,
		RawBuildRunID: r.RawBuildRunID,
		Nodes:         nodes,
		Succeeded:     r.Succeeded,
		Failed:        r.Failed,
		Skipped:       r.Skipped,
		Retries:       r.Retries,
		FinalStatus:   common.ExtractionStatus(r.FinalStatus),
		CreatedAt:     r.CreatedAt,
	}, nil
}

const auditSelect = `SELECT id, correlation_id, raw_build_run_id, nodes, succeeded, failed, skipped, retries,
	final_status, created_at FROM feature_audit_logs`

func (s *auditStore) Insert(ctx context.Context, a *common.FeatureAuditLog) (int64, error) {
	nodes, err := json.Marshal(a.Nodes)
	if err != nil {
		return 0, err
	}
	const q = `
		INSERT INTO feature_audit_logs
			(correlation_id, raw_build_run_id, nodes, succeeded, failed, skipped, retries, final_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (raw_build_run_id) DO UPDATE SET
			correlation_id = EXCLUDED.correlation_id,
			nodes = EXCLUDED.nodes,
			succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed,
			skipped = EXCLUDED.skipped,
			retries = EXCLUDED.retries,
			final_status = EXCLUDED.final_status
		RETURNING id`
	var id int64
	err = s.db.GetContext(ctx, &id, q,
		a.CorrelationID, a.RawBuildRunID, nodes, a.Succeeded, a.Failed, a.Skipped, a.Retries, string(a.FinalStatus))
	if err != nil {
		return 0, err
	}
	a.ID = id
	return id, nil
}

func (s *auditStore) GetByRawBuildRun(ctx context.Context, rawBuildRunID int64) (*common.FeatureAuditLog, error) {
	var row auditRow
	if err := s.db.GetContext(ctx, &row, auditSelect+` WHERE raw_build_run_id = $1`, rawBuildRunID); err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toEntity()
}

func (s *auditStore) GetByCorrelationID(ctx context.Context, correlationID string) (*common.FeatureAuditLog, error) {
	var row auditRow
	if err := s.db.GetContext(ctx, &row, auditSelect+` WHERE correlation_id = $1`, correlationID); err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toEntity()
}

var _ storage.FeatureAuditLogStore = (*auditStore)(nil)
