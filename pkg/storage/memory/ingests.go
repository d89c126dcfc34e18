package memory

import (
	"context"
	"sync"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

type ingestKey struct {
	repoConfigID  int64
	rawBuildRunID int64
}

type ingestStore struct {
	mu     sync.RWMutex
	lastID int64
	byID   map[int64]*common.IngestionBuild
	byKey  map[ingestKey]int64
}

func (s *ingestStore) Upsert(ctx context.Context, b *common.IngestionBuild) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ingestKey{b.RepoConfigID, b.RawBuildRunID}
	if id, ok := s.byKey[key]; ok {
		b.ID = id
		cp := *b
		s.byID[id] = &cp
		return id, nil
	}

	s.lastID++
	b.ID = s.lastID
	cp := *b
	s.byID[s.lastID] = &cp
	s.byKey[key] = s.lastID
	return s.lastID, nil
}

func (s *ingestStore) Get(ctx context.Context, id int64) (*common.IngestionBuild, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *ingestStore) GetByBusinessKey(ctx context.Context, repoConfigID, rawBuildRunID int64) (*common.IngestionBuild, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[ingestKey{repoConfigID, rawBuildRunID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *ingestStore) ListByRepoConfig(ctx context.Context, repoConfigID int64) ([]*common.IngestionBuild, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*common.IngestionBuild
	for _, b := range s.byID {
		if b.RepoConfigID == repoConfigID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *ingestStore) ListByStatus(ctx context.Context, repoConfigID int64, status common.IngestionStatus) ([]*common.IngestionBuild, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*common.IngestionBuild
	for _, b := range s.byID {
		if b.RepoConfigID == repoConfigID && b.Status == status {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *ingestStore) ResetToPending(ctx context.Context, repoConfigID int64, statuses []common.IngestionStatus) (int, error) {
	eligible := make(map[common.IngestionStatus]bool, len(statuses))
	for _, st := range statuses {
		eligible[st] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.byID {
		if b.RepoConfigID == repoConfigID && eligible[b.Status] && b.Status.CanResetToPending() {
			b.Status = common.IngestionPending
			n++
		}
	}
	return n, nil
}

// deleteByRepoConfig removes every row owned by repoConfigID, used by
// configStore.Delete's cascade.
func (s *ingestStore) deleteByRepoConfig(repoConfigID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.byID {
		if b.RepoConfigID == repoConfigID {
			delete(s.byKey, ingestKey{b.RepoConfigID, b.RawBuildRunID})
			delete(s.byID, id)
		}
	}
}

var _ storage.IngestionBuildStore = (*ingestStore)(nil)
