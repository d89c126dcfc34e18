// Package featuredag computes a build's feature map by scheduling a DAG of
// extractor nodes over a static feature registry, per spec §4.5. The
// registry is the single source of feature metadata; the DAG shape is
// derived from it rather than declared separately, following §9's
// "decorator registry → static data table" strategy: the teacher's
// `boskos/crds` CRD-type registration pattern (a package-level map
// populated at init time, validated once) generalizes here to a map of
// extractor nodes, each declaring the features it produces, instead of
// CRD schemas.
package featuredag

import (
	"fmt"
	"sort"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

// DataType enumerates a feature's serialized value type.
type DataType string

const (
	TypeInteger      DataType = "integer"
	TypeFloat        DataType = "float"
	TypeString       DataType = "string"
	TypeBoolean      DataType = "boolean"
	TypeDatetime     DataType = "datetime"
	TypeListOfString DataType = "list_of_string"
)

// ListSeparator controls how a list-typed feature serializes to text,
// relevant to the registry's stated CSV-export concern in spec §4.5.
type ListSeparator string

const (
	SepComma ListSeparator = ","
	SepHash  ListSeparator = "#"
)

// FeatureDescriptor is metadata about a single named feature, independent
// of how its value is computed. The registry itself stores Nodes, not
// FeatureDescriptor values.
type FeatureDescriptor struct {
	Name            string
	DisplayName     string
	Category        string
	Type            DataType
	ProducingNode   string
	FeatureDeps     []string // other features this one's node transitively requires
	ResourceDeps    []common.ResourceKind
	Nullable        bool
	ListSeparator   ListSeparator // only meaningful when Type == TypeListOfString
	ValidRange      *[2]float64   // inclusive [min, max] for numeric types, nil if unconstrained
	ValidValues     []string      // enumerated legal values for string types, nil if unconstrained
}

// Node is one extractor in the DAG: a named unit of work producing a set
// of features from resources and already-computed features.
type Node struct {
	Name             string
	FeaturesProduced []string
	RequiresResources []common.ResourceKind
	RequiresFeatures  []string
	// MaxRetries bounds the retry-on-unhandled-failure count spec §4.5
	// sets at 2 (for a total of 3 attempts); 0 uses the package default.
	MaxRetries int
	Run        NodeFunc
}

// NodeFunc computes a node's features given its resources and the
// features already produced by upstream nodes in its DAG level order.
type NodeFunc func(ctx *ExecContext) (map[string]interface{}, error)

// registry is the package-level static table; extractor packages populate
// it via Register in their own init().
var registry = map[string]*Node{}

// featureIndex maps feature name -> producing node name, built lazily from
// registry and validated for internal consistency the first time a
// schedule is requested (mirrors boskos/crds's validate-once-at-startup
// pattern rather than re-validating on every call).
var featureIndex map[string]string

// Register adds a node to the static registry. Called from each extractor
// package's init(); panics on a duplicate node name, since that is a
// programmer error caught at process start, not a runtime condition
// callers should handle. A feature claimed by two nodes is not checked
// here; buildFeatureIndex reports it as a FatalError.
func Register(n *Node) {
	if _, exists := registry[n.Name]; exists {
		panic(fmt.Sprintf("featuredag: duplicate node registered: %s", n.Name))
	}
	registry[n.Name] = n
	featureIndex = nil // invalidate cached index
}

// All returns every registered node, sorted by name for deterministic
// iteration in tests and audit output.
func All() []*Node {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	nodes := make([]*Node, 0, len(names))
	for _, name := range names {
		nodes = append(nodes, registry[name])
	}
	return nodes
}

// buildFeatureIndex computes and validates the feature-name -> producing-
// node mapping, raising a FatalError on any feature claimed by more than
// one node.
func buildFeatureIndex() (map[string]string, error) {
	if featureIndex != nil {
		return featureIndex, nil
	}
	idx := map[string]string{}
	for _, n := range All() {
		for _, f := range n.FeaturesProduced {
			if owner, ok := idx[f]; ok {
				return nil, &common.FatalError{Reason: fmt.Sprintf(
					"feature %q produced by both %q and %q", f, owner, n.Name)}
			}
			idx[f] = n.Name
		}
	}
	featureIndex = idx
	return idx, nil
}

// NodeFor returns the node producing feature, or ("", false) if no
// registered node produces it.
func NodeFor(feature string) (string, bool) {
	idx, err := buildFeatureIndex()
	if err != nil {
		return "", false
	}
	name, ok := idx[feature]
	return name, ok
}

// Lookup returns the registered node by name.
func Lookup(name string) (*Node, bool) {
	n, ok := registry[name]
	return n, ok
}

// reset clears the registry; used only by tests that need a clean slate
// rather than the real extractor set.
func reset() {
	registry = map[string]*Node{}
	featureIndex = nil
}
