package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

type buildKey struct {
	repoID        int64
	providerBuild string
}

type buildStore struct {
	mu     sync.RWMutex
	lastID int64
	byID   map[int64]*common.RawBuildRun
	byKey  map[buildKey]int64
}

func (s *buildStore) Upsert(ctx context.Context, build *common.RawBuildRun) (int64, error) {
	if err := build.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := buildKey{build.RepoID, build.ProviderBuild}
	if id, ok := s.byKey[key]; ok {
		build.ID = id
		cp := *build
		s.byID[id] = &cp
		return id, nil
	}

	s.lastID++
	build.ID = s.lastID
	cp := *build
	s.byID[s.lastID] = &cp
	s.byKey[key] = s.lastID
	return s.lastID, nil
}

func (s *buildStore) GetByID(ctx context.Context, id int64) (*common.RawBuildRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *buildStore) GetByProviderBuild(ctx context.Context, repoID int64, providerBuild string) (*common.RawBuildRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[buildKey{repoID, providerBuild}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *buildStore) ListByRepo(ctx context.Context, repoID int64, limit int) ([]*common.RawBuildRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*common.RawBuildRun
	for _, b := range s.byID {
		if b.RepoID == repoID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BuildNumber > out[j].BuildNumber })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ storage.RawBuildRunStore = (*buildStore)(nil)
