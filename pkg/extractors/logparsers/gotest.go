package logparsers

import (
	"bufio"
	"encoding/json"
	"strings"
)

func init() {
	Register(&gotestParser{})
}

// gotestEvent mirrors one line of `go test -json` output's Action/Test/
// Elapsed fields, the subset build_log_features needs.
type gotestEvent struct {
	Action  string  `json:"Action"`
	Test    string  `json:"Test"`
	Elapsed float64 `json:"Elapsed"`
}

type gotestParser struct{}

func (p *gotestParser) Name() string { return "gotest" }

func (p *gotestParser) Detect(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	firstLine := trimmed
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		firstLine = trimmed[:idx]
	}
	var ev gotestEvent
	return json.Unmarshal([]byte(firstLine), &ev) == nil && ev.Action != ""
}

// Parse scans one JSON event per line, counting only top-level test
// results (Test != "" and Action in pass/fail/skip) so subtests aren't
// double-counted against their parent.
func (p *gotestParser) Parse(text string) (Counts, error) {
	var c Counts
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var ev gotestEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if ev.Test == "" || strings.Contains(ev.Test, "/") {
			continue
		}
		switch ev.Action {
		case "pass":
			c.Ok++
			c.Run++
			c.Duration += ev.Elapsed
		case "fail":
			c.Failed++
			c.Run++
			c.Duration += ev.Elapsed
		case "skip":
			c.Skipped++
			c.Run++
		}
	}
	return c, nil
}
