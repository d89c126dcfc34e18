package logparsers

import (
	"regexp"
	"strconv"
)

// pytestSummaryAlt matches each outcome count in pytest's terminal
// summary line, e.g. "12 passed, 2 failed, 1 skipped in 3.45s".
var pytestSummaryAlt = regexp.MustCompile(`(\d+) passed|(\d+) failed|(\d+) skipped|(\d+) error`)

func init() {
	Register(&pytestParser{})
}

type pytestParser struct{}

func (p *pytestParser) Name() string { return "pytest" }

func (p *pytestParser) Detect(text string) bool {
	return regexp.MustCompile(`===.*(passed|failed|error).*===`).MatchString(text) ||
		regexp.MustCompile(`(?m)^=+ test session starts =+`).MatchString(text)
}

func (p *pytestParser) Parse(text string) (Counts, error) {
	var c Counts
	matches := pytestSummaryAlt.FindAllStringSubmatch(text, -1)
	for _, m := range matches {
		switch {
		case m[1] != "":
			n, _ := strconv.Atoi(m[1])
			c.Ok += n
		case m[2] != "":
			n, _ := strconv.Atoi(m[2])
			c.Failed += n
		case m[3] != "":
			n, _ := strconv.Atoi(m[3])
			c.Skipped += n
		case m[4] != "":
			n, _ := strconv.Atoi(m[4])
			c.Failed += n // treat collection/setup errors as failures for the aggregate count
		}
	}
	c.Run = c.Ok + c.Failed + c.Skipped

	if dur := regexp.MustCompile(`in ([\d.]+)s`).FindStringSubmatch(text); dur != nil {
		c.Duration, _ = strconv.ParseFloat(dur[1], 64)
	}
	return c, nil
}
