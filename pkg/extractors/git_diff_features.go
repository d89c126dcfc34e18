package extractors

import (
	"path"
	"regexp"
	"strings"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/featuredag"
)

var (
	docExtensions  = map[string]bool{".md": true, ".rst": true, ".txt": true, ".adoc": true}
	testPathMarker = regexp.MustCompile(`(?i)(^|/)(tests?|testdata|spec|__tests__)(/|$)|_test\.|\.test\.|_spec\.|\.spec\.`)
)

func init() {
	featuredag.Register(&featuredag.Node{
		Name: "git_diff_features",
		FeaturesProduced: []string{
			"git_diff_src_churn",
			"git_diff_test_churn",
			"git_diff_doc_churn",
			"git_diff_other_churn",
			"git_diff_num_files_touched",
			"git_diff_files_touched",
			"git_diff_test_additions",
		},
		RequiresResources: []common.ResourceKind{common.ResourceBareRepo},
		RequiresFeatures:  []string{"git_prev_built_commit"},
		Run:               runGitDiffFeatures,
	})
}

// classify buckets a changed file path into one of source/test/doc/other,
// using extension plus path heuristics the way a human reviewer would
// eyeball a diff.
func classify(filePath string) string {
	if testPathMarker.MatchString(filePath) {
		return "test"
	}
	ext := strings.ToLower(path.Ext(filePath))
	if docExtensions[ext] {
		return "doc"
	}
	if strings.HasPrefix(filePath, "docs/") {
		return "doc"
	}
	switch ext {
	case ".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".java", ".rb", ".c", ".cc", ".cpp", ".h", ".hpp", ".rs", ".kt", ".scala", ".cs":
		return "source"
	default:
		return "other"
	}
}

// runGitDiffFeatures sums diff --numstat over every commit since the
// previous build (git_all_built_commits, produced by git_commit_info),
// bucketing changed files into source/test/doc/other by path. Test
// additions are derived from the same numstat pass restricted
// to files classified as test files, rather than a separate per-language
// regex pass over diff text, since gitbackend.Backend exposes line counts
// but not patch content.
func runGitDiffFeatures(ec *featuredag.ExecContext) (map[string]interface{}, error) {
	repo := ec.Resources[common.ResourceBareRepo].(BareRepoResource)

	walked, _ := ec.Features["git_all_built_commits"].([]string)
	commits := append([]string{ec.BuildRun.CommitSHA}, walked...)

	churn := map[string]int{"source": 0, "test": 0, "doc": 0, "other": 0}
	touchedSet := map[string]bool{}
	testAdditions := 0

	for _, sha := range commits {
		stats, err := repo.Backend.DiffNumstat(ec.Context, repo.Path, sha)
		if err != nil {
			if common.IsResourceMissing(err) {
				continue // root commit or otherwise parentless; nothing to diff
			}
			return nil, err
		}
		for _, fs := range stats {
			touchedSet[fs.Path] = true
			kind := classify(fs.Path)
			churn[kind] += fs.Additions + fs.Deletions
			if kind == "test" {
				testAdditions += fs.Additions
			}
		}
	}

	touched := make([]string, 0, len(touchedSet))
	for p := range touchedSet {
		touched = append(touched, p)
	}

	return map[string]interface{}{
		"git_diff_src_churn":          churn["source"],
		"git_diff_test_churn":         churn["test"],
		"git_diff_doc_churn":          churn["doc"],
		"git_diff_other_churn":        churn["other"],
		"git_diff_num_files_touched":  len(touched),
		"git_diff_files_touched":      touched,
		"git_diff_test_additions":     testAdditions,
	}, nil
}
