package featuredag

import (
	"context"
	"errors"
	"testing"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

func TestExecuteRunsLevelsInOrderAndMergesFeatures(t *testing.T) {
	plan := &Plan{
		Levels: [][]*Node{
			{{Name: "base", FeaturesProduced: []string{"a"}, Run: func(ec *ExecContext) (map[string]interface{}, error) {
				return map[string]interface{}{"a": 1}, nil
			}}},
			{{Name: "top", FeaturesProduced: []string{"b"}, RequiresFeatures: []string{"a"}, Run: func(ec *ExecContext) (map[string]interface{}, error) {
				a := ec.Features["a"].(int)
				return map[string]interface{}{"b": a + 1}, nil
			}}},
		},
	}

	result, err := Execute(context.Background(), &common.RawBuildRun{}, map[common.ResourceKind]interface{}{}, plan)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Features["a"] != 1 || result.Features["b"] != 2 {
		t.Errorf("Features = %v, want a=1 b=2", result.Features)
	}
	if len(result.Audit) != 2 {
		t.Fatalf("got %d audit entries, want 2", len(result.Audit))
	}
	for _, n := range result.Audit {
		if n.Status != "success" {
			t.Errorf("node %s status = %q, want success", n.Name, n.Status)
		}
	}
}

func TestExecuteSkipsNodeMissingResource(t *testing.T) {
	plan := &Plan{
		Levels: [][]*Node{
			{{Name: "needs-logs", FeaturesProduced: []string{"x"}, RequiresResources: []common.ResourceKind{common.ResourceBuildLogs}, Run: func(ec *ExecContext) (map[string]interface{}, error) {
				return map[string]interface{}{"x": 1}, nil
			}}},
		},
	}

	result, err := Execute(context.Background(), &common.RawBuildRun{}, map[common.ResourceKind]interface{}{}, plan)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if _, produced := result.Features["x"]; produced {
		t.Error("feature x should not be produced when its resource is missing")
	}
	if len(result.Audit) != 1 || result.Audit[0].Status != "skipped" {
		t.Fatalf("audit = %+v, want one skipped entry", result.Audit)
	}
}

func TestExecuteRetriesFailingNodeThenRecordsFailure(t *testing.T) {
	attempts := 0
	plan := &Plan{
		Levels: [][]*Node{
			{{Name: "flaky", FeaturesProduced: []string{"y"}, MaxRetries: 2, Run: func(ec *ExecContext) (map[string]interface{}, error) {
				attempts++
				return nil, errors.New("boom")
			}}},
		},
	}

	result, err := Execute(context.Background(), &common.RawBuildRun{}, map[common.ResourceKind]interface{}{}, plan)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (1 initial + 2 retries)", attempts)
	}
	if result.Audit[0].Status != "failed" {
		t.Errorf("status = %q, want failed", result.Audit[0].Status)
	}
}

func TestExecuteRecoversPanickingNode(t *testing.T) {
	plan := &Plan{
		Levels: [][]*Node{
			{{Name: "panics", FeaturesProduced: []string{"z"}, Run: func(ec *ExecContext) (map[string]interface{}, error) {
				panic("node blew up")
			}}},
		},
	}

	result, err := Execute(context.Background(), &common.RawBuildRun{}, map[common.ResourceKind]interface{}{}, plan)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Audit[0].Status != "failed" {
		t.Errorf("status = %q, want failed", result.Audit[0].Status)
	}
}

func TestDetermineExtractionStatus(t *testing.T) {
	cases := []struct {
		name   string
		result *Result
		want   common.ExtractionStatus
	}{
		{"nothing extracted", &Result{Features: map[string]interface{}{}}, common.ExtractionFailed},
		{"all succeeded", &Result{
			Features: map[string]interface{}{"a": 1},
			Audit:    []common.NodeOutcome{{Status: "success"}},
		}, common.ExtractionCompleted},
		{"partial", &Result{
			Features: map[string]interface{}{"a": 1},
			Audit:    []common.NodeOutcome{{Status: "success"}, {Status: "skipped"}},
		}, common.ExtractionPartial},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DetermineExtractionStatus(c.result); got != c.want {
				t.Errorf("DetermineExtractionStatus() = %q, want %q", got, c.want)
			}
		})
	}
}
