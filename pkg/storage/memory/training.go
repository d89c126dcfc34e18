package memory

import (
	"context"
	"sync"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

type trainingStore struct {
	mu         sync.RWMutex
	lastID     int64
	byID       map[int64]*common.TrainingBuild
	byBuildRun map[int64]int64
}

func (s *trainingStore) Upsert(ctx context.Context, t *common.TrainingBuild) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byBuildRun[t.RawBuildRunID]; ok {
		t.ID = id
		cp := *t
		s.byID[id] = &cp
		return id, nil
	}

	s.lastID++
	t.ID = s.lastID
	cp := *t
	s.byID[s.lastID] = &cp
	s.byBuildRun[t.RawBuildRunID] = s.lastID
	return s.lastID, nil
}

func (s *trainingStore) Get(ctx context.Context, id int64) (*common.TrainingBuild, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *trainingStore) GetByRawBuildRun(ctx context.Context, rawBuildRunID int64) (*common.TrainingBuild, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byBuildRun[rawBuildRunID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *trainingStore) ListByRepoConfig(ctx context.Context, repoConfigID int64) ([]*common.TrainingBuild, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*common.TrainingBuild
	for _, t := range s.byID {
		if t.RepoConfigID == repoConfigID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *trainingStore) ResetFailedToPending(ctx context.Context, repoConfigID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.byID {
		if t.RepoConfigID == repoConfigID && t.ExtractionStatus == common.ExtractionFailed {
			t.ExtractionStatus = common.ExtractionPending
			n++
		}
	}
	return n, nil
}

// deleteByRepoConfig removes every row owned by repoConfigID, returning
// their RawBuildRunIDs so the caller can cascade into FeatureAuditLogs too.
func (s *trainingStore) deleteByRepoConfig(repoConfigID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rawBuildRunIDs []int64
	for id, t := range s.byID {
		if t.RepoConfigID == repoConfigID {
			rawBuildRunIDs = append(rawBuildRunIDs, t.RawBuildRunID)
			delete(s.byBuildRun, t.RawBuildRunID)
			delete(s.byID, id)
		}
	}
	return rawBuildRunIDs
}

var _ storage.TrainingBuildStore = (*trainingStore)(nil)
