package memory

import (
	"context"
	"sync"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

type repoStore struct {
	mu     sync.RWMutex
	lastID int64
	byID   map[int64]*common.RawRepository
	byName map[string]int64
}

func (s *repoStore) Upsert(ctx context.Context, repo *common.RawRepository) (int64, error) {
	if err := repo.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byName[repo.FullName]; ok {
		existing := s.byID[id]
		repo.ID = existing.ID
		cp := *repo
		s.byID[id] = &cp
		return id, nil
	}

	s.lastID++
	repo.ID = s.lastID
	cp := *repo
	s.byID[s.lastID] = &cp
	s.byName[repo.FullName] = s.lastID
	return s.lastID, nil
}

func (s *repoStore) GetByID(ctx context.Context, id int64) (*common.RawRepository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *repoStore) GetByFullName(ctx context.Context, fullName string) (*common.RawRepository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[fullName]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

var _ storage.RawRepositoryStore = (*repoStore)(nil)
