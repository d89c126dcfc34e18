// Package scanintegration dispatches per-commit SonarQube/Trivy security and
// code-quality scans for a repository's ingested builds. It supplements the
// core ingestion/extraction pipeline (spec §4) with the scan-integration
// surface spec.md itself names but never specifies: the `clone:{repo_id}`
// lock is documented as "shared across all extractors and scan
// integrations", and SCAN_BUILDS_PER_QUERY/SCAN_COMMITS_PER_BATCH/
// SCAN_BATCH_DELAY_SECONDS are named as "scan dispatch throttles" without a
// consumer. Grounded on the original dashboard's
// app/integrations/tools/{sonarqube,trivy} and
// app/tasks/enrichment_processing.py's dispatch_version_scans.
//
// A scan is recorded as completed once the tool's scanner invocation exits;
// this package owns dispatch and bookkeeping, not result ingestion (reading
// back SonarQube's server-side analysis or Trivy's JSON report).
package scanintegration

import (
	"context"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

// Tool is the capability every scan tool implementation satisfies, the same
// interface-segregation idiom as ciprovider.Adapter: a minimal required
// surface, with provider-specific behavior exposed through optional
// capability interfaces rather than a bloated single interface.
type Tool interface {
	// Name identifies the tool for SecurityScan.Tool and log lines.
	Name() common.ScanTool

	// Available reports whether the tool's runtime dependency (the Docker
	// CLI, in both implementations here) is usable on this host.
	Available(ctx context.Context) bool

	// ScanCommit runs the tool's scan for one (repo, commit) and returns when
	// the scanner invocation exits. componentKey is the tool's dedup key;
	// both implementations here check AlreadyScanned for it first and return
	// it without rescanning when a prior scan exists.
	ScanCommit(ctx context.Context, repoFullName, commitSHA, worktreePath string) (componentKey string, err error)

	// AlreadyScanned reports whether componentKey has a prior scan the tool
	// knows about, so ScanCommit can skip a redundant run — mirroring
	// SonarQubeTool._project_exists's /api/projects/search dedup check.
	AlreadyScanned(ctx context.Context, componentKey string) (bool, error)
}
