// Package logparsers implements per-framework CI log parsers for
// build_log_features (spec §4.6), each detecting whether it applies to a
// given log blob and, if so, extracting test run/failed/skipped/ok counts
// and total duration. Parsers register themselves in a package-level
// registry so build_log_features can iterate them without branching on
// provider or language itself, the same registry shape
// pkg/featuredag/registry.go uses for extractor nodes.
package logparsers

// Counts is one log's aggregated test outcome, summable across multiple
// log objects belonging to the same build.
type Counts struct {
	Run      int
	Failed   int
	Skipped  int
	Ok       int
	Duration float64 // seconds
}

// Add accumulates other into c.
func (c *Counts) Add(other Counts) {
	c.Run += other.Run
	c.Failed += other.Failed
	c.Skipped += other.Skipped
	c.Ok += other.Ok
	c.Duration += other.Duration
}

// Parser detects and parses one test framework's log output.
type Parser interface {
	Name() string
	Detect(text string) bool
	Parse(text string) (Counts, error)
}

var registry []Parser

// Register adds a parser to the package-level registry; called from each
// parser file's init().
func Register(p Parser) {
	registry = append(registry, p)
}

// All returns every registered parser, in registration order.
func All() []Parser {
	return registry
}

// ParseAny runs every registered parser's Detect against text and returns
// the first match's Counts. Returns (Counts{}, false) if nothing detects
// the log as a known framework's output.
func ParseAny(text string) (Counts, bool) {
	for _, p := range registry {
		if p.Detect(text) {
			if c, err := p.Parse(text); err == nil {
				return c, true
			}
		}
	}
	return Counts{}, false
}
