package logparsers

import (
	"regexp"
	"strconv"
)

// rspecSummary matches RSpec's final summary line, e.g.:
// "42 examples, 3 failures, 1 pending" followed by a "Finished in 12.3 seconds" line.
var rspecSummary = regexp.MustCompile(`(\d+) examples?, (\d+) failures?(?:, (\d+) pending)?`)
var rspecDuration = regexp.MustCompile(`Finished in ([\d.]+) seconds`)

func init() {
	Register(&rspecParser{})
}

type rspecParser struct{}

func (p *rspecParser) Name() string { return "rspec" }

func (p *rspecParser) Detect(text string) bool {
	return rspecSummary.MatchString(text) && rspecDuration.MatchString(text)
}

func (p *rspecParser) Parse(text string) (Counts, error) {
	m := rspecSummary.FindStringSubmatch(text)
	if m == nil {
		return Counts{}, nil
	}
	var c Counts
	c.Run, _ = strconv.Atoi(m[1])
	c.Failed, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		c.Skipped, _ = strconv.Atoi(m[3])
	}
	c.Ok = c.Run - c.Failed - c.Skipped

	if d := rspecDuration.FindStringSubmatch(text); d != nil {
		c.Duration, _ = strconv.ParseFloat(d[1], 64)
	}
	return c, nil
}
