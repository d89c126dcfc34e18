package extractors

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/gitbackend"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestScanWorktreeCountsSourceAndTestLines(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pkg/widget.go", "package pkg\n\nfunc Widget() int {\n\treturn 1\n}\n")
	writeFile(t, root, "pkg/widget_test.go", "package pkg\n\nfunc TestWidget(t *testing.T) {\n\tassert(Widget() == 1)\n}\n")
	writeFile(t, root, "vendor/dep/dep.go", "package dep\nfunc ShouldBeSkipped() {}\n")

	srcLines, testLines, testCases, assertions, err := scanWorktree(root)
	if err != nil {
		t.Fatalf("scanWorktree() error = %v", err)
	}
	if srcLines != 5 {
		t.Errorf("srcLines = %d, want 5", srcLines)
	}
	if testLines != 5 {
		t.Errorf("testLines = %d, want 5", testLines)
	}
	if testCases != 1 {
		t.Errorf("testCases = %d, want 1", testCases)
	}
	if assertions != 1 {
		t.Errorf("assertions = %d, want 1", assertions)
	}
}

func TestRunRepoSnapshotFeaturesComputesAgeAndRatios(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pkg/widget.go", "package pkg\nfunc Widget() int { return 1 }\n")
	writeFile(t, root, "pkg/widget_test.go", "package pkg\nfunc TestWidget(t *testing.T) {\n\tassert(true)\n}\n")

	oldest := time.Now().Add(-30 * 24 * time.Hour)
	backend := &fakeBackend{log: []gitbackend.CommitInfo{
		{SHA: "head", CommittedAt: time.Now()},
		{SHA: "first", CommittedAt: oldest},
	}}
	ec := execContext(
		&common.RawBuildRun{CommitSHA: "head"},
		map[common.ResourceKind]interface{}{
			common.ResourceBareRepo: BareRepoResource{Backend: backend, Path: "/repo.git"},
			common.ResourceWorktree: WorktreeResource{Path: root, EffectiveSHA: "head"},
		},
	)

	out, err := runRepoSnapshotFeatures(ec)
	if err != nil {
		t.Fatalf("runRepoSnapshotFeatures() error = %v", err)
	}
	if out["repo_num_commits"] != 2 {
		t.Errorf("repo_num_commits = %v, want 2", out["repo_num_commits"])
	}
	ageDays := out["repo_age_days"].(float64)
	if ageDays < 29 || ageDays > 31 {
		t.Errorf("repo_age_days = %v, want ~30", ageDays)
	}
	if out["repo_test_lines_per_kloc"].(float64) <= 0 {
		t.Errorf("repo_test_lines_per_kloc = %v, want > 0", out["repo_test_lines_per_kloc"])
	}
}
