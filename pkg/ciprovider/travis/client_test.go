package travis

import (
	"testing"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

func TestNormalizeStatus(t *testing.T) {
	a := New("tok")
	cases := map[string]common.BuildStatus{
		"created": common.BuildPending,
		"started": common.BuildRunning,
		"passed":  common.BuildCompleted,
		"errored": common.BuildCompleted,
		"xyz":     common.BuildUnknown,
	}
	for in, want := range cases {
		if got := a.NormalizeStatus(in); got != want {
			t.Errorf("NormalizeStatus(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMaxLimit(t *testing.T) {
	if maxLimit(0) != 25 {
		t.Error("maxLimit(0) should default to 25")
	}
	if maxLimit(500) != 25 {
		t.Error("maxLimit should cap out-of-range values back to the default")
	}
	if maxLimit(10) != 10 {
		t.Error("maxLimit should pass through in-range values")
	}
}
