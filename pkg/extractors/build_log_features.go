package extractors

import (
	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/extractors/logparsers"
	"github.com/devci-tools/buildfeatures/pkg/featuredag"
)

func init() {
	featuredag.Register(&featuredag.Node{
		Name: "build_log_features",
		FeaturesProduced: []string{
			"build_log_tests_run",
			"build_log_tests_failed",
			"build_log_tests_skipped",
			"build_log_tests_ok",
			"build_log_fail_rate",
			"build_log_total_duration_seconds",
		},
		RequiresResources: []common.ResourceKind{common.ResourceBuildLogs},
		Run:               runBuildLogFeatures,
	})
}

// runBuildLogFeatures runs every registered per-framework parser against
// each job's log text and sums whichever one first recognizes the
// format, per spec §4.6's "registry of per-framework parsers keyed on
// detected language".
func runBuildLogFeatures(ec *featuredag.ExecContext) (map[string]interface{}, error) {
	logs := ec.Resources[common.ResourceBuildLogs].(LogsResource)

	var total logparsers.Counts
	for _, log := range logs {
		if c, ok := logparsers.ParseAny(log.Text); ok {
			total.Add(c)
		}
	}

	var failRate float64
	if total.Run > 0 {
		failRate = float64(total.Failed) / float64(total.Run)
	}

	return map[string]interface{}{
		"build_log_tests_run":              total.Run,
		"build_log_tests_failed":           total.Failed,
		"build_log_tests_skipped":          total.Skipped,
		"build_log_tests_ok":               total.Ok,
		"build_log_fail_rate":              failRate,
		"build_log_total_duration_seconds": total.Duration,
	}, nil
}
