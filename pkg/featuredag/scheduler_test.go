package featuredag

import (
	"testing"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

func TestScheduleSelectsTransitiveFeatureDeps(t *testing.T) {
	withCleanRegistry(t)
	Register(&Node{Name: "base", FeaturesProduced: []string{"a"}})
	Register(&Node{Name: "mid", FeaturesProduced: []string{"b"}, RequiresFeatures: []string{"a"}})
	Register(&Node{Name: "top", FeaturesProduced: []string{"c"}, RequiresFeatures: []string{"b"}})

	plan, err := Schedule([]string{"c"})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if len(plan.Levels) != 3 {
		t.Fatalf("got %d levels, want 3 (base -> mid -> top)", len(plan.Levels))
	}
	if plan.Levels[0][0].Name != "base" {
		t.Errorf("level 0 = %q, want base", plan.Levels[0][0].Name)
	}
	if plan.Levels[1][0].Name != "mid" {
		t.Errorf("level 1 = %q, want mid", plan.Levels[1][0].Name)
	}
	if plan.Levels[2][0].Name != "top" {
		t.Errorf("level 2 = %q, want top", plan.Levels[2][0].Name)
	}
}

func TestScheduleGroupsIndependentNodesIntoOneLevel(t *testing.T) {
	withCleanRegistry(t)
	Register(&Node{Name: "n1", FeaturesProduced: []string{"a"}})
	Register(&Node{Name: "n2", FeaturesProduced: []string{"b"}})

	plan, err := Schedule([]string{"a", "b"})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if len(plan.Levels) != 1 {
		t.Fatalf("got %d levels, want 1 (n1, n2 are independent)", len(plan.Levels))
	}
	if len(plan.Levels[0]) != 2 {
		t.Errorf("level 0 has %d nodes, want 2", len(plan.Levels[0]))
	}
}

func TestScheduleComputesRequiredResourceUnion(t *testing.T) {
	withCleanRegistry(t)
	Register(&Node{Name: "n1", FeaturesProduced: []string{"a"}, RequiresResources: []common.ResourceKind{common.ResourceBareRepo}})
	Register(&Node{Name: "n2", FeaturesProduced: []string{"b"}, RequiresResources: []common.ResourceKind{common.ResourceBuildLogs}})

	plan, err := Schedule([]string{"a", "b"})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	want := map[common.ResourceKind]bool{common.ResourceBareRepo: true, common.ResourceBuildLogs: true}
	if len(plan.RequiredResources) != len(want) {
		t.Fatalf("got %d required resources, want %d", len(plan.RequiredResources), len(want))
	}
	for _, r := range plan.RequiredResources {
		if !want[r] {
			t.Errorf("unexpected required resource %q", r)
		}
	}
}

func TestScheduleErrorsOnUnknownFeature(t *testing.T) {
	withCleanRegistry(t)
	_, err := Schedule([]string{"does-not-exist"})
	if err == nil {
		t.Fatal("expected an error for an unregistered feature")
	}
}

func TestScheduleErrorsOnCycle(t *testing.T) {
	withCleanRegistry(t)
	Register(&Node{Name: "n1", FeaturesProduced: []string{"a"}, RequiresFeatures: []string{"b"}})
	Register(&Node{Name: "n2", FeaturesProduced: []string{"b"}, RequiresFeatures: []string{"a"}})

	_, err := Schedule([]string{"a"})
	if err == nil {
		t.Fatal("expected a cycle-detection error")
	}
}
