package logparsers

import (
	"testing"
)

func TestPytestParsesSummaryLine(t *testing.T) {
	text := "===== test session starts =====\n" +
		"collected 15 items\n" +
		"===== 2 failed, 12 passed, 1 skipped in 3.45s =====\n"
	p := &pytestParser{}
	if !p.Detect(text) {
		t.Fatal("Detect() = false, want true")
	}
	c, err := p.Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if c.Ok != 12 || c.Failed != 2 || c.Skipped != 1 || c.Run != 15 {
		t.Errorf("Counts = %+v, want Ok=12 Failed=2 Skipped=1 Run=15", c)
	}
	if c.Duration != 3.45 {
		t.Errorf("Duration = %v, want 3.45", c.Duration)
	}
}

func TestJUnitParsesTestsuitesRoot(t *testing.T) {
	text := `<?xml version="1.0"?>
<testsuites>
  <testsuite tests="10" failures="1" errors="0" skipped="2" time="5.5"></testsuite>
  <testsuite tests="5" failures="0" errors="1" skipped="0" time="1.2"></testsuite>
</testsuites>`
	p := &junitParser{}
	if !p.Detect(text) {
		t.Fatal("Detect() = false, want true")
	}
	c, err := p.Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if c.Run != 15 || c.Failed != 2 || c.Skipped != 2 {
		t.Errorf("Counts = %+v, want Run=15 Failed=2 Skipped=2", c)
	}
}

func TestJUnitParsesSingleTestsuiteRoot(t *testing.T) {
	text := `<?xml version="1.0"?><testsuite tests="3" failures="1" errors="0" skipped="0" time="0.9"></testsuite>`
	p := &junitParser{}
	if !p.Detect(text) {
		t.Fatal("Detect() = false, want true")
	}
	c, err := p.Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if c.Run != 3 || c.Failed != 1 || c.Ok != 2 {
		t.Errorf("Counts = %+v, want Run=3 Failed=1 Ok=2", c)
	}
}

func TestJestParsesJSONReport(t *testing.T) {
	text := `{"numTotalTests":10,"numPassedTests":8,"numFailedTests":1,"numPendingTests":1,"success":false,
	"testResults":[{"startTime":1000,"endTime":1500}]}`
	p := &jestParser{}
	if !p.Detect(text) {
		t.Fatal("Detect() = false, want true")
	}
	c, err := p.Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if c.Run != 10 || c.Ok != 8 || c.Failed != 1 || c.Skipped != 1 {
		t.Errorf("Counts = %+v, want Run=10 Ok=8 Failed=1 Skipped=1", c)
	}
	if c.Duration != 0.5 {
		t.Errorf("Duration = %v, want 0.5", c.Duration)
	}
}

func TestRSpecParsesSummaryLine(t *testing.T) {
	text := "Finished in 2.34 seconds (files took 1.2 seconds to load)\n12 examples, 3 failures, 1 pending\n"
	p := &rspecParser{}
	if !p.Detect(text) {
		t.Fatal("Detect() = false, want true")
	}
	c, err := p.Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if c.Run != 12 || c.Failed != 3 || c.Skipped != 1 || c.Ok != 8 {
		t.Errorf("Counts = %+v, want Run=12 Failed=3 Skipped=1 Ok=8", c)
	}
	if c.Duration != 2.34 {
		t.Errorf("Duration = %v, want 2.34", c.Duration)
	}
}

func TestGoTestParsesJSONLEvents(t *testing.T) {
	text := `{"Action":"run","Test":"TestFoo"}
{"Action":"pass","Test":"TestFoo","Elapsed":0.1}
{"Action":"run","Test":"TestBar"}
{"Action":"fail","Test":"TestBar","Elapsed":0.2}
{"Action":"run","Test":"TestBaz"}
{"Action":"skip","Test":"TestBaz","Elapsed":0}
{"Action":"pass","Test":""}
`
	p := &gotestParser{}
	if !p.Detect(text) {
		t.Fatal("Detect() = false, want true")
	}
	c, err := p.Parse(text)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if c.Run != 3 || c.Ok != 1 || c.Failed != 1 || c.Skipped != 1 {
		t.Errorf("Counts = %+v, want Run=3 Ok=1 Failed=1 Skipped=1", c)
	}
}

func TestParseAnyPicksFirstMatchingParser(t *testing.T) {
	text := `{"numTotalTests":1,"numPassedTests":1,"numFailedTests":0,"numPendingTests":0}`
	c, ok := ParseAny(text)
	if !ok {
		t.Fatal("ParseAny() ok = false, want true")
	}
	if c.Run != 1 {
		t.Errorf("Run = %d, want 1", c.Run)
	}
}

func TestParseAnyReturnsFalseForUnrecognizedText(t *testing.T) {
	_, ok := ParseAny("just some random log output with no test summary")
	if ok {
		t.Error("ParseAny() ok = true, want false for unrecognized text")
	}
}
