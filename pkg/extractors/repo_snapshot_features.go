package extractors

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/featuredag"
)

// skipDirs are never walked when counting worktree lines; they hold
// vendored or generated content that would otherwise dominate the count.
var skipDirs = map[string]bool{".git": true, "vendor": true, "node_modules": true, "dist": true, "build": true}

var (
	testCaseMarker  = regexp.MustCompile(`\b(func Test\w|def test_\w|\bit\(['"]|\bdescribe\(['"]|@Test\b)`)
	assertionMarker = regexp.MustCompile(`\b(assert|Assert|expect|Expect|should\.)\w*\s*\(`)
)

const snapshotCommitScanLimit = 100000

func init() {
	featuredag.Register(&featuredag.Node{
		Name: "repo_snapshot_features",
		FeaturesProduced: []string{
			"repo_num_commits",
			"repo_age_days",
			"repo_src_lines",
			"repo_test_lines",
			"repo_test_cases",
			"repo_assertions",
			"repo_test_lines_per_kloc",
			"repo_assertions_per_kloc",
		},
		RequiresResources: []common.ResourceKind{common.ResourceBareRepo, common.ResourceWorktree},
		Run:               runRepoSnapshotFeatures,
	})
}

func runRepoSnapshotFeatures(ec *featuredag.ExecContext) (map[string]interface{}, error) {
	repo := ec.Resources[common.ResourceBareRepo].(BareRepoResource)
	worktree := ec.Resources[common.ResourceWorktree].(WorktreeResource)

	commits, err := repo.Backend.Log(ec.Context, repo.Path, ec.BuildRun.CommitSHA, snapshotCommitScanLimit)
	if err != nil {
		return nil, err
	}
	numCommits := len(commits)

	var ageDays float64
	if numCommits > 0 {
		oldest := commits[numCommits-1].CommittedAt
		if !oldest.IsZero() {
			ageDays = time.Since(oldest).Hours() / 24
		}
	}

	srcLines, testLines, testCases, assertions, err := scanWorktree(worktree.Path)
	if err != nil {
		return nil, err
	}

	kloc := float64(srcLines) / 1000.0
	var testLinesPerKLOC, assertionsPerKLOC float64
	if kloc > 0 {
		testLinesPerKLOC = float64(testLines) / kloc
		assertionsPerKLOC = float64(assertions) / kloc
	}

	return map[string]interface{}{
		"repo_num_commits":         numCommits,
		"repo_age_days":            ageDays,
		"repo_src_lines":           srcLines,
		"repo_test_lines":          testLines,
		"repo_test_cases":          testCases,
		"repo_assertions":          assertions,
		"repo_test_lines_per_kloc": testLinesPerKLOC,
		"repo_assertions_per_kloc": assertionsPerKLOC,
	}, nil
}

// scanWorktree walks a checked-out tree, classifying files with the same
// source/test bucketing git_diff_features applies to changed paths, and
// counts lines, test-case definitions, and assertion-style calls.
func scanWorktree(root string) (srcLines, testLines, testCases, assertions int, err error) {
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		kind := classify(rel)
		if kind != "source" && kind != "test" {
			return nil
		}

		f, openErr := os.Open(p)
		if openErr != nil {
			return nil // unreadable file (permissions, symlink race); skip rather than fail the whole scan
		}
		defer f.Close()

		lines := 0
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines++
			line := scanner.Text()
			if kind == "test" {
				if testCaseMarker.MatchString(line) {
					testCases++
				}
				if assertionMarker.MatchString(line) {
					assertions++
				}
			}
		}

		if kind == "source" {
			srcLines += lines
		} else {
			testLines += lines
		}
		return nil
	})
	if walkErr != nil {
		return 0, 0, 0, 0, &common.RetryableError{Op: "scan_worktree", Err: walkErr}
	}
	return srcLines, testLines, testCases, assertions, nil
}
