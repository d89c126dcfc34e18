package extractors

import (
	"regexp"
	"time"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/featuredag"
)

// teamWindow is spec §4.6's "last 90 days" lookback for team composition.
const teamWindow = 90 * 24 * time.Hour

// teamWalkLimit bounds how far back team_stats_features walks before
// giving up on reaching the window start; generous enough for normal
// commit cadences without scanning an entire repo's history.
const teamWalkLimit = 5000

var prMergeTitle = regexp.MustCompile(`(?i)^merge pull request|\(#\d+\)$`)

func init() {
	featuredag.Register(&featuredag.Node{
		Name: "team_stats_features",
		FeaturesProduced: []string{
			"gh_team_size",
			"gh_by_core_team_member",
			"gh_num_commits_on_files_touched",
		},
		RequiresResources: []common.ResourceKind{common.ResourceBareRepo},
		RequiresFeatures:  []string{"git_diff_files_touched"},
		Run:               runTeamStatsFeatures,
	})
}

// runTeamStatsFeatures walks history back teamWalkLimit commits, keeping
// only those within the last 90 days, to build the direct-committer team
// set (non-merge, non-PR-title commits as returned by Backend.Log; the
// walk is not restricted to first-parent history) and to count how
// many of those commits touched a file the build's own diff touched.
func runTeamStatsFeatures(ec *featuredag.ExecContext) (map[string]interface{}, error) {
	repo := ec.Resources[common.ResourceBareRepo].(BareRepoResource)
	touchedFiles, _ := ec.Features["git_diff_files_touched"].([]string)
	touchedSet := make(map[string]bool, len(touchedFiles))
	for _, p := range touchedFiles {
		touchedSet[p] = true
	}

	commits, err := repo.Backend.Log(ec.Context, repo.Path, ec.BuildRun.CommitSHA, teamWalkLimit)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-teamWindow)
	team := map[string]bool{}
	commitsOnTouchedFiles := 0

	for _, c := range commits {
		if c.CommittedAt.Before(cutoff) {
			break // Log returns newest-first; once we're past the window we're done
		}
		isMerge := len(c.ParentSHAs) > 1
		isPRMergeTitle := prMergeTitle.MatchString(c.Message)
		if !isMerge && !isPRMergeTitle {
			team[c.AuthorEmail] = true
		}

		if c.SHA == ec.BuildRun.CommitSHA {
			continue // exclude the build's own commit from the touched-files count
		}
		if len(touchedSet) == 0 {
			continue
		}
		stats, diffErr := repo.Backend.DiffNumstat(ec.Context, repo.Path, c.SHA)
		if diffErr != nil {
			continue // parentless or unreadable; doesn't disqualify team membership above
		}
		for _, fs := range stats {
			if touchedSet[fs.Path] {
				commitsOnTouchedFiles++
				break
			}
		}
	}

	byCoreTeamMember := false
	if author := ec.BuildRun.CommitSHA; author != "" {
		for _, c := range commits {
			if c.SHA == ec.BuildRun.CommitSHA {
				byCoreTeamMember = team[c.AuthorEmail]
				break
			}
		}
	}

	return map[string]interface{}{
		"gh_team_size":                     len(team),
		"gh_by_core_team_member":           byCoreTeamMember,
		"gh_num_commits_on_files_touched":  commitsOnTouchedFiles,
	}, nil
}
