package featuredag

import (
	"fmt"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

// Plan is the output of scheduling: the nodes selected to satisfy a
// requested feature set, grouped into dependency levels, plus the union
// of resources every selected node needs — returned to the orchestrator
// *before* execution so resources are acquired ahead of time, per spec
// §4.5 step 2.
type Plan struct {
	Levels            [][]*Node
	RequiredResources []common.ResourceKind
}

// Schedule computes the plan for a requested feature set: the transitive
// closure of producing nodes (via both feature and node dependencies),
// grouped into topologically-ordered levels where every node in a level
// has no remaining unmet dependency within the selected set.
func Schedule(requestedFeatures []string) (*Plan, error) {
	selected := map[string]*Node{}
	var visit func(feature string) error
	visit = func(feature string) error {
		nodeName, ok := NodeFor(feature)
		if !ok {
			return &common.FatalError{Reason: fmt.Sprintf("requested feature %q has no producing node in the registry", feature)}
		}
		if _, already := selected[nodeName]; already {
			return nil
		}
		node, ok := Lookup(nodeName)
		if !ok {
			return &common.FatalError{Reason: fmt.Sprintf("registry inconsistency: feature index points to unknown node %q", nodeName)}
		}
		selected[nodeName] = node
		for _, dep := range node.RequiresFeatures {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, f := range requestedFeatures {
		if err := visit(f); err != nil {
			return nil, err
		}
	}

	levels, err := topoLevels(selected)
	if err != nil {
		return nil, err
	}

	resourceSet := map[common.ResourceKind]bool{}
	for _, n := range selected {
		for _, r := range n.RequiresResources {
			resourceSet[r] = true
		}
	}
	var resources []common.ResourceKind
	for r := range resourceSet {
		resources = append(resources, r)
	}

	return &Plan{Levels: levels, RequiredResources: resources}, nil
}

// topoLevels groups selected nodes into levels: level 0 has no dependency
// within the selected set, level k depends only on nodes in levels < k.
// Edges are feature-availability edges (node A requires a feature node B
// produces, per node.RequiresFeatures resolved through the registry's
// feature index) since resource availability is ensured ahead of
// execution and doesn't order nodes relative to each other.
func topoLevels(selected map[string]*Node) ([][]*Node, error) {
	// dependsOnNodes[name] = set of selected node names that must run
	// before name, derived from name's RequiresFeatures.
	dependsOnNodes := map[string]map[string]bool{}
	for name, n := range selected {
		deps := map[string]bool{}
		for _, f := range n.RequiresFeatures {
			depNode, ok := NodeFor(f)
			if !ok {
				return nil, &common.FatalError{Reason: fmt.Sprintf("node %q requires feature %q with no producing node", name, f)}
			}
			if depNode != name {
				deps[depNode] = true
			}
		}
		dependsOnNodes[name] = deps
	}

	var levels [][]*Node
	done := map[string]bool{}
	for len(done) < len(selected) {
		var level []*Node
		for name, n := range selected {
			if done[name] {
				continue
			}
			ready := true
			for dep := range dependsOnNodes[name] {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, n)
			}
		}
		if len(level) == 0 {
			return nil, &common.FatalError{Reason: "cycle detected among selected feature-dag nodes"}
		}
		sortNodesByName(level)
		for _, n := range level {
			done[n.Name] = true
		}
		levels = append(levels, level)
	}
	return levels, nil
}

func sortNodesByName(nodes []*Node) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && nodes[j-1].Name > nodes[j].Name; j-- {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
		}
	}
}
