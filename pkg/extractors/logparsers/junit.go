package logparsers

import (
	"encoding/xml"
	"strings"
)

func init() {
	Register(&junitParser{})
}

// junitTestsuites mirrors the subset of the JUnit XML schema build_log
// parsing needs; a single log may contain one <testsuite> or a wrapping
// <testsuites> with several.
type junitTestsuites struct {
	XMLName    xml.Name        `xml:"testsuites"`
	Testsuites []junitTestsuite `xml:"testsuite"`
}

type junitTestsuite struct {
	Tests    int     `xml:"tests,attr"`
	Failures int     `xml:"failures,attr"`
	Errors   int     `xml:"errors,attr"`
	Skipped  int     `xml:"skipped,attr"`
	Time     float64 `xml:"time,attr"`
}

type junitParser struct{}

func (p *junitParser) Name() string { return "junit" }

func (p *junitParser) Detect(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "<?xml") && (strings.Contains(text, "<testsuite") )
}

func (p *junitParser) Parse(text string) (Counts, error) {
	var c Counts

	var suites junitTestsuites
	if err := xml.Unmarshal([]byte(text), &suites); err == nil && len(suites.Testsuites) > 0 {
		for _, s := range suites.Testsuites {
			c.Failed += s.Failures + s.Errors
			c.Skipped += s.Skipped
			c.Run += s.Tests
			c.Duration += s.Time
		}
		c.Ok = c.Run - c.Failed - c.Skipped
		return c, nil
	}

	var single junitTestsuite
	if err := xml.Unmarshal([]byte(text), &single); err != nil {
		return Counts{}, err
	}
	c.Failed = single.Failures + single.Errors
	c.Skipped = single.Skipped
	c.Run = single.Tests
	c.Duration = single.Time
	c.Ok = c.Run - c.Failed - c.Skipped
	return c, nil
}
