package memory

import (
	"context"
	"sync"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

type auditStore struct {
	mu            sync.RWMutex
	lastID        int64
	byID          map[int64]*common.FeatureAuditLog
	byBuildRun    map[int64]int64
	byCorrelation map[string]int64
}

func (s *auditStore) Insert(ctx context.Context, a *common.FeatureAuditLog) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	a.ID = s.lastID
	cp := *a
	s.byID[s.lastID] = &cp
	s.byBuildRun[a.RawBuildRunID] = s.lastID
	if a.CorrelationID != "" {
		s.byCorrelation[a.CorrelationID] = s.lastID
	}
	return s.lastID, nil
}

func (s *auditStore) GetByRawBuildRun(ctx context.Context, rawBuildRunID int64) (*common.FeatureAuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byBuildRun[rawBuildRunID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *auditStore) GetByCorrelationID(ctx context.Context, correlationID string) (*common.FeatureAuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCorrelation[correlationID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

// deleteByBuildRun removes the audit log owned by rawBuildRunID, used by
// configStore.Delete's cascade.
func (s *auditStore) deleteByBuildRun(rawBuildRunID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byBuildRun[rawBuildRunID]
	if !ok {
		return
	}
	if a := s.byID[id]; a != nil && a.CorrelationID != "" {
		delete(s.byCorrelation, a.CorrelationID)
	}
	delete(s.byBuildRun, rawBuildRunID)
	delete(s.byID, id)
}

var _ storage.FeatureAuditLogStore = (*auditStore)(nil)
