package extractors

import (
	"github.com/devci-tools/buildfeatures/pkg/featuredag"
)

func init() {
	featuredag.Register(&featuredag.Node{
		Name: "risk_prediction_features",
		FeaturesProduced: []string{
			"risk_churn_score",
			"risk_novelty_score",
			"risk_test_coverage_score",
			"risk_composite_score",
		},
		RequiresFeatures: []string{
			"git_diff_src_churn",
			"git_diff_test_churn",
			"git_diff_num_files_touched",
			"gh_by_core_team_member",
			"repo_test_lines_per_kloc",
			"build_log_fail_rate",
		},
		Run: runRiskPredictionFeatures,
	})
}

// runRiskPredictionFeatures combines already-extracted features into a
// handful of summary scores consumed as ML model *inputs*. It is not
// the prediction model itself — no classifier is trained or invoked
// here, only deterministic arithmetic over upstream feature values.
func runRiskPredictionFeatures(ec *featuredag.ExecContext) (map[string]interface{}, error) {
	srcChurn := intFeature(ec, "git_diff_src_churn")
	testChurn := intFeature(ec, "git_diff_test_churn")
	filesTouched := intFeature(ec, "git_diff_num_files_touched")
	byCoreTeam, _ := ec.Features["gh_by_core_team_member"].(bool)
	testLinesPerKLOC := floatFeature(ec, "repo_test_lines_per_kloc")
	buildLogFailRate := floatFeature(ec, "build_log_fail_rate")

	totalChurn := srcChurn + testChurn
	churnScore := normalize(float64(totalChurn), 500)

	noveltyScore := normalize(float64(filesTouched), 50)
	if !byCoreTeam {
		noveltyScore = clamp01(noveltyScore + 0.2)
	}

	testCoverageScore := clamp01(testLinesPerKLOC / 200)

	composite := clamp01(0.4*churnScore + 0.3*noveltyScore + 0.2*(1-testCoverageScore) + 0.1*buildLogFailRate)

	return map[string]interface{}{
		"risk_churn_score":         churnScore,
		"risk_novelty_score":       noveltyScore,
		"risk_test_coverage_score": testCoverageScore,
		"risk_composite_score":     composite,
	}, nil
}

func intFeature(ec *featuredag.ExecContext, name string) int {
	switch v := ec.Features[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func floatFeature(ec *featuredag.ExecContext, name string) float64 {
	switch v := ec.Features[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// normalize maps a non-negative value linearly onto [0,1] against
// ceiling, clipping to 1 once v reaches the ceiling.
func normalize(v, ceiling float64) float64 {
	if ceiling <= 0 {
		return 0
	}
	return clamp01(v / ceiling)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
