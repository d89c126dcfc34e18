package logparsers

import (
	"encoding/json"
	"strings"
)

func init() {
	Register(&jestParser{})
}

// jestJSONReport is the subset of `jest --json` output's top-level shape
// build_log_features needs.
type jestJSONReport struct {
	NumTotalTests    int     `json:"numTotalTests"`
	NumPassedTests   int     `json:"numPassedTests"`
	NumFailedTests   int     `json:"numFailedTests"`
	NumPendingTests  int     `json:"numPendingTests"`
	StartTime        int64   `json:"startTime"`
	Success          bool    `json:"success"`
	TestResults      []struct {
		StartTime int64 `json:"startTime"`
		EndTime   int64 `json:"endTime"`
	} `json:"testResults"`
}

type jestParser struct{}

func (p *jestParser) Name() string { return "jest" }

func (p *jestParser) Detect(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "{") && strings.Contains(text, "numTotalTests")
}

func (p *jestParser) Parse(text string) (Counts, error) {
	var report jestJSONReport
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		return Counts{}, err
	}

	var durationMs int64
	for _, tr := range report.TestResults {
		if tr.EndTime > tr.StartTime {
			durationMs += tr.EndTime - tr.StartTime
		}
	}

	return Counts{
		Run:      report.NumTotalTests,
		Ok:       report.NumPassedTests,
		Failed:   report.NumFailedTests,
		Skipped:  report.NumPendingTests,
		Duration: float64(durationMs) / 1000.0,
	}, nil
}
