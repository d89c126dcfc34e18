package extractors

import (
	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/featuredag"
)

// maxCommitWalk bounds git_commit_info's backward walk, per spec §4.6.
const maxCommitWalk = 1000

const (
	resolutionBuildFound      = "build_found"
	resolutionMergeFound      = "merge_found"
	resolutionNoPreviousBuild = "no_previous_build"
)

func init() {
	featuredag.Register(&featuredag.Node{
		Name: "git_commit_info",
		FeaturesProduced: []string{
			"git_all_built_commits",
			"git_num_all_built_commits",
			"git_prev_built_commit",
			"git_prev_commit_resolution_status",
			"tr_prev_build",
		},
		RequiresResources: []common.ResourceKind{common.ResourceBareRepo, common.ResourceRawBuildRuns},
		Run:               runGitCommitInfo,
	})
}

// runGitCommitInfo walks commits backward from the build's SHA (up to
// maxCommitWalk) until it hits a commit matching a prior build's SHA, a
// merge commit, or exhausts the walk.
func runGitCommitInfo(ec *featuredag.ExecContext) (map[string]interface{}, error) {
	repo := ec.Resources[common.ResourceBareRepo].(BareRepoResource)
	priorBuilds := ec.Resources[common.ResourceRawBuildRuns].(RawBuildRunsResource)

	priorBySHA := make(map[string]*common.RawBuildRun, len(priorBuilds))
	for _, b := range priorBuilds {
		if b.CommitSHA != "" && b.CommitSHA != ec.BuildRun.CommitSHA {
			priorBySHA[b.CommitSHA] = b
		}
	}

	commits, err := repo.Backend.Log(ec.Context, repo.Path, ec.BuildRun.CommitSHA, maxCommitWalk+1)
	if err != nil {
		return nil, err
	}

	var walked []string
	status := resolutionNoPreviousBuild
	var prevBuiltCommit string
	var prevBuildNumber *int64

	for i, c := range commits {
		if i == 0 {
			continue // commits[0] is the build's own commit
		}
		walked = append(walked, c.SHA)

		if match, ok := priorBySHA[c.SHA]; ok {
			status = resolutionBuildFound
			prevBuiltCommit = c.SHA
			n := match.BuildNumber
			prevBuildNumber = &n
			break
		}
		if len(c.ParentSHAs) > 1 {
			status = resolutionMergeFound
			prevBuiltCommit = c.SHA
			break
		}
	}

	features := map[string]interface{}{
		"git_all_built_commits":             walked,
		"git_num_all_built_commits":         len(walked),
		"git_prev_commit_resolution_status": status,
	}
	if prevBuiltCommit != "" {
		features["git_prev_built_commit"] = prevBuiltCommit
	} else {
		features["git_prev_built_commit"] = nil
	}
	if prevBuildNumber != nil {
		features["tr_prev_build"] = *prevBuildNumber
	} else {
		features["tr_prev_build"] = nil
	}
	return features, nil
}
