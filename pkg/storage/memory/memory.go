// Package memory implements storage.Store entirely in-process, grounded
// on boskos/storage.PersistenceLayer's mutex-guarded map pattern
// (boskos/storage/storage.go's inMemoryStore), split into one guarded map
// per entity instead of one map of a single Resource type. It exists for
// tests and for a dependency-free local run; cmd/ingestord wires
// pkg/storage/postgres in production.
package memory

import (
	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

// Store is the in-memory storage.Store implementation. The zero value is
// not usable; construct with New.
type Store struct {
	repos    *repoStore
	builds   *buildStore
	configs  *configStore
	ingests  *ingestStore
	training *trainingStore
	audits   *auditStore
}

// New returns an empty in-memory Store.
func New() *Store {
	ingests := &ingestStore{byID: map[int64]*common.IngestionBuild{}, byKey: map[ingestKey]int64{}}
	training := &trainingStore{byID: map[int64]*common.TrainingBuild{}, byBuildRun: map[int64]int64{}}
	audits := &auditStore{byID: map[int64]*common.FeatureAuditLog{}, byBuildRun: map[int64]int64{}, byCorrelation: map[string]int64{}}
	return &Store{
		repos:  &repoStore{byID: map[int64]*common.RawRepository{}, byName: map[string]int64{}},
		builds: &buildStore{byID: map[int64]*common.RawBuildRun{}, byKey: map[buildKey]int64{}},
		configs: &configStore{
			byID:     map[int64]*common.RepoConfig{},
			ingests:  ingests,
			training: training,
			audits:   audits,
		},
		ingests:  ingests,
		training: training,
		audits:   audits,
	}
}

func (s *Store) Repositories() storage.RawRepositoryStore    { return s.repos }
func (s *Store) BuildRuns() storage.RawBuildRunStore          { return s.builds }
func (s *Store) RepoConfigs() storage.RepoConfigStore         { return s.configs }
func (s *Store) IngestionBuilds() storage.IngestionBuildStore { return s.ingests }
func (s *Store) TrainingBuilds() storage.TrainingBuildStore   { return s.training }
func (s *Store) AuditLogs() storage.FeatureAuditLogStore      { return s.audits }

var _ storage.Store = (*Store)(nil)
