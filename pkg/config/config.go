// Package config loads process-level configuration for the ingestion and
// feature-extraction pipeline. It follows the DefaultConfig/LoadFromEnv/
// Validate shape used by the pack's jordigilh-kubernaut database config,
// built on envconfig's struct-tag env loading the way knative-pkg uses it.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every process-level value spec §6 enumerates.
type Config struct {
	// Database connection, following jordigilh-kubernaut's DefaultConfig
	// shape (host/port/user/password/database/sslmode + pool sizing).
	DBHost            string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort            int           `envconfig:"DB_PORT" default:"5432"`
	DBUser            string        `envconfig:"DB_USER" default:"buildfeatures"`
	DBPassword        string        `envconfig:"DB_PASSWORD"`
	DBName            string        `envconfig:"DB_NAME" default:"buildfeatures"`
	DBSSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`

	// Coordination store.
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	// Spec §6 configuration keys.
	IngestionBuildsPerPage  int    `envconfig:"INGESTION_BUILDS_PER_PAGE" default:"100"`
	ProcessingBuildsPerBatch int   `envconfig:"PROCESSING_BUILDS_PER_BATCH" default:"50"`
	LogUnavailableThreshold int    `envconfig:"LOG_UNAVAILABLE_THRESHOLD" default:"5"`
	GitHubTokens            string `envconfig:"GITHUB_TOKENS"` // comma-separated seed tokens
	GitHubWebhookSecret     string `envconfig:"GITHUB_WEBHOOK_SECRET"`
	ReposDir                string `envconfig:"REPOS_DIR" default:"/var/lib/buildfeatures/repos"`
	WorktreesDir            string `envconfig:"WORKTREES_DIR" default:"/var/lib/buildfeatures/worktrees"`
	ScanBuildsPerQuery      int    `envconfig:"SCAN_BUILDS_PER_QUERY" default:"100"`
	ScanCommitsPerBatch     int    `envconfig:"SCAN_COMMITS_PER_BATCH" default:"200"`
	ScanBatchDelaySeconds   int    `envconfig:"SCAN_BATCH_DELAY_SECONDS" default:"1"`

	// Scan-integration tool configuration (pkg/scanintegration). Empty
	// SonarHostURL disables SonarQube dispatch; empty TrivyResultsDir
	// disables Trivy dispatch. Both can be enabled together.
	SonarHostURL     string `envconfig:"SONAR_HOST_URL"`
	SonarToken       string `envconfig:"SONAR_TOKEN"`
	SonarProjectKey  string `envconfig:"SONAR_PROJECT_KEY" default:"buildfeatures"`
	TrivyResultsDir  string `envconfig:"TRIVY_RESULTS_DIR"`

	// Deadlines per §5.
	SoftDeadline time.Duration `envconfig:"SOFT_DEADLINE" default:"30m"`
	HardDeadline time.Duration `envconfig:"HARD_DEADLINE" default:"35m"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// DefaultConfig returns a Config populated with the documented defaults,
// overlaid with any of its variables that are already set in the
// environment; a processing error is ignored.
func DefaultConfig() *Config {
	cfg := &Config{}
	envconfig.Process("", cfg) // unset vars take their default tag; set vars are read from the environment
	return cfg
}

// LoadFromEnv overlays environment variables onto cfg. An unset variable
// with a default tag is reset to that default; an unset variable without
// one keeps its prior value. If any variable fails to parse, it returns
// the error and leaves cfg entirely unchanged.
func (c *Config) LoadFromEnv() error {
	tmp := *c
	if err := envconfig.Process("", &tmp); err != nil {
		return fmt.Errorf("config: load from env: %w", err)
	}
	*c = tmp
	return nil
}

// Validate enforces cross-field and range invariants.
func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("config: DB_HOST is required")
	}
	if c.DBPort <= 0 || c.DBPort > 65535 {
		return fmt.Errorf("config: DB_PORT %d out of range", c.DBPort)
	}
	if c.IngestionBuildsPerPage <= 0 {
		return fmt.Errorf("config: INGESTION_BUILDS_PER_PAGE must be positive")
	}
	if c.ProcessingBuildsPerBatch <= 0 {
		return fmt.Errorf("config: PROCESSING_BUILDS_PER_BATCH must be positive")
	}
	if c.LogUnavailableThreshold <= 0 {
		return fmt.Errorf("config: LOG_UNAVAILABLE_THRESHOLD must be positive")
	}
	if c.SoftDeadline <= 0 || c.HardDeadline <= 0 {
		return fmt.Errorf("config: deadlines must be positive")
	}
	if c.HardDeadline <= c.SoftDeadline {
		return fmt.Errorf("config: HARD_DEADLINE must exceed SOFT_DEADLINE")
	}
	return nil
}

// DSN returns a libpq-style connection string for pgx/sqlx.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}
