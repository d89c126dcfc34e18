package scanintegration

import (
	"context"
	"fmt"
	"sync"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

// Store persists SecurityScan records. It is deliberately its own
// interface rather than another method on storage.Store: scan dispatch is
// an optional, additive subsystem, and keeping it separate means neither
// pkg/storage/memory nor pkg/storage/postgres has to grow a method it
// wouldn't otherwise need.
type Store interface {
	// Upsert inserts or updates by (RepoID, CommitSHA, Tool), returning the
	// row's assigned ID.
	Upsert(ctx context.Context, scan *common.SecurityScan) (int64, error)
	GetByKey(ctx context.Context, repoID int64, commitSHA string, tool common.ScanTool) (*common.SecurityScan, error)
	ListByRepo(ctx context.Context, repoID int64) ([]*common.SecurityScan, error)
}

// memoryStore is an in-process Store, the same locked-map shape as
// pkg/storage/memory's per-entity stores, for tests and single-process
// deployments that don't need Postgres-backed scan bookkeeping.
type memoryStore struct {
	mu     sync.RWMutex
	lastID int64
	byID   map[int64]*common.SecurityScan
	byKey  map[string]int64
}

// NewMemoryStore returns an empty in-process Store.
func NewMemoryStore() Store {
	return &memoryStore{
		byID:  make(map[int64]*common.SecurityScan),
		byKey: make(map[string]int64),
	}
}

func scanKey(repoID int64, commitSHA string, tool common.ScanTool) string {
	return fmt.Sprintf("%d:%s:%s", repoID, commitSHA, tool)
}

func (s *memoryStore) Upsert(ctx context.Context, scan *common.SecurityScan) (int64, error) {
	if err := scan.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := scanKey(scan.RepoID, scan.CommitSHA, scan.Tool)
	if id, ok := s.byKey[key]; ok {
		scan.ID = id
		cp := *scan
		s.byID[id] = &cp
		return id, nil
	}

	s.lastID++
	scan.ID = s.lastID
	cp := *scan
	s.byID[s.lastID] = &cp
	s.byKey[key] = s.lastID
	return s.lastID, nil
}

func (s *memoryStore) GetByKey(ctx context.Context, repoID int64, commitSHA string, tool common.ScanTool) (*common.SecurityScan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[scanKey(repoID, commitSHA, tool)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *memoryStore) ListByRepo(ctx context.Context, repoID int64) ([]*common.SecurityScan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*common.SecurityScan
	for _, scan := range s.byID {
		if scan.RepoID == repoID {
			cp := *scan
			out = append(out, &cp)
		}
	}
	return out, nil
}

var _ Store = (*memoryStore)(nil)
