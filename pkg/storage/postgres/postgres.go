// Package postgres implements storage.Store against PostgreSQL, grounded
// on jordigilh-kubernaut's datastorage integration layer (pgx/v5's stdlib
// driver opened through sqlx.DB, schema managed with goose migrations)
// rather than the teacher's in-memory/CRD persistence — boskos never
// talks to a relational store, but the pack's kubernaut repo does for
// exactly this kind of foreign-keyed entity graph.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/devci-tools/buildfeatures/pkg/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the PostgreSQL storage.Store implementation.
type Store struct {
	db       *sqlx.DB
	repos    *repoStore
	builds   *buildStore
	configs  *configStore
	ingests  *ingestStore
	training *trainingStore
	audits   *auditStore
}

// Open connects to dsn and wraps it as a Store. Callers must call Migrate
// before first use against a fresh database.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return New(db), nil
}

// New wraps an already-open *sqlx.DB as a Store.
func New(db *sqlx.DB) *Store {
	return &Store{
		db:       db,
		repos:    &repoStore{db: db},
		builds:   &buildStore{db: db},
		configs:  &configStore{db: db},
		ingests:  &ingestStore{db: db},
		training: &trainingStore{db: db},
		audits:   &auditStore{db: db},
	}
}

// Migrate applies every pending embedded migration via goose.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("postgres: set dialect: %w", err)
	}
	return goose.UpContext(ctx, s.db.DB, "migrations")
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Repositories() storage.RawRepositoryStore    { return s.repos }
func (s *Store) BuildRuns() storage.RawBuildRunStore          { return s.builds }
func (s *Store) RepoConfigs() storage.RepoConfigStore         { return s.configs }
func (s *Store) IngestionBuilds() storage.IngestionBuildStore { return s.ingests }
func (s *Store) TrainingBuilds() storage.TrainingBuildStore   { return s.training }
func (s *Store) AuditLogs() storage.FeatureAuditLogStore      { return s.audits }

var _ storage.Store = (*Store)(nil)

// wrapNotFound maps sql.ErrNoRows onto the package-agnostic storage.ErrNotFound.
func wrapNotFound(err error) error {
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	return err
}
