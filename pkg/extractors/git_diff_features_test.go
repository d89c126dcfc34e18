package extractors

import (
	"testing"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/gitbackend"
)

func TestClassifyBucketsFilePaths(t *testing.T) {
	cases := map[string]string{
		"pkg/foo/bar.go":         "source",
		"pkg/foo/bar_test.go":    "test",
		"__tests__/widget.js":    "test",
		"docs/guide.md":          "doc",
		"README.md":              "doc",
		"testdata/fixture.json":  "test",
		"assets/logo.png":        "other",
	}
	for path, want := range cases {
		if got := classify(path); got != want {
			t.Errorf("classify(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestRunGitDiffFeaturesSumsAcrossWalkedCommits(t *testing.T) {
	backend := &fakeBackend{
		diffs: map[string][]gitbackend.FileStat{
			"head": {{Path: "pkg/a.go", Additions: 10, Deletions: 2}},
			"c1":   {{Path: "pkg/a_test.go", Additions: 5, Deletions: 0}, {Path: "docs/x.md", Additions: 1, Deletions: 1}},
		},
	}
	ec := execContext(
		&common.RawBuildRun{CommitSHA: "head"},
		map[common.ResourceKind]interface{}{
			common.ResourceBareRepo: BareRepoResource{Backend: backend, Path: "/repo.git"},
		},
	)
	ec.Features["git_all_built_commits"] = []string{"c1"}

	out, err := runGitDiffFeatures(ec)
	if err != nil {
		t.Fatalf("runGitDiffFeatures() error = %v", err)
	}
	if out["git_diff_src_churn"] != 12 {
		t.Errorf("git_diff_src_churn = %v, want 12", out["git_diff_src_churn"])
	}
	if out["git_diff_test_churn"] != 5 {
		t.Errorf("git_diff_test_churn = %v, want 5", out["git_diff_test_churn"])
	}
	if out["git_diff_doc_churn"] != 2 {
		t.Errorf("git_diff_doc_churn = %v, want 2", out["git_diff_doc_churn"])
	}
	if out["git_diff_num_files_touched"] != 3 {
		t.Errorf("git_diff_num_files_touched = %v, want 3", out["git_diff_num_files_touched"])
	}
	if out["git_diff_test_additions"] != 5 {
		t.Errorf("git_diff_test_additions = %v, want 5", out["git_diff_test_additions"])
	}
}

func TestRunGitDiffFeaturesSkipsMissingResourceDiffs(t *testing.T) {
	backend := &fakeBackend{
		diffs:    map[string][]gitbackend.FileStat{},
		diffErrs: map[string]error{"root": &common.ResourceMissingError{Resource: common.ResourceBareRepo, Reason: "root commit has no parent"}},
	}
	ec := execContext(
		&common.RawBuildRun{CommitSHA: "root"},
		map[common.ResourceKind]interface{}{
			common.ResourceBareRepo: BareRepoResource{Backend: backend, Path: "/repo.git"},
		},
	)

	out, err := runGitDiffFeatures(ec)
	if err != nil {
		t.Fatalf("runGitDiffFeatures() error = %v", err)
	}
	if out["git_diff_num_files_touched"] != 0 {
		t.Errorf("git_diff_num_files_touched = %v, want 0", out["git_diff_num_files_touched"])
	}
}
