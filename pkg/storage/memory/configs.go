package memory

import (
	"context"
	"sync"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

type configStore struct {
	mu       sync.RWMutex
	lastID   int64
	byID     map[int64]*common.RepoConfig
	ingests  *ingestStore
	training *trainingStore
	audits   *auditStore
}

func (s *configStore) Create(ctx context.Context, cfg *common.RepoConfig) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	cfg.ID = s.lastID
	cp := *cfg
	s.byID[s.lastID] = &cp
	return s.lastID, nil
}

func (s *configStore) Get(ctx context.Context, id int64) (*common.RepoConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *configStore) Update(ctx context.Context, cfg *common.RepoConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[cfg.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *cfg
	s.byID[cfg.ID] = &cp
	return nil
}

func (s *configStore) List(ctx context.Context) ([]*common.RepoConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*common.RepoConfig, 0, len(s.byID))
	for _, c := range s.byID {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (s *configStore) ListByRepo(ctx context.Context, repoID int64) ([]*common.RepoConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*common.RepoConfig
	for _, c := range s.byID {
		if c.RepoID == repoID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Delete removes cfg and cascades to every IngestionBuild, TrainingBuild,
// and FeatureAuditLog it owns, per spec §3's ownership rule. RawRepository
// and RawBuildRun rows are untouched.
func (s *configStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	if _, ok := s.byID[id]; !ok {
		s.mu.Unlock()
		return storage.ErrNotFound
	}
	delete(s.byID, id)
	s.mu.Unlock()

	s.ingests.deleteByRepoConfig(id)
	rawBuildRunIDs := s.training.deleteByRepoConfig(id)
	for _, rid := range rawBuildRunIDs {
		s.audits.deleteByBuildRun(rid)
	}
	return nil
}

var _ storage.RepoConfigStore = (*configStore)(nil)
