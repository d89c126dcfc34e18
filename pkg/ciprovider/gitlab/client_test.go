package gitlab

import (
	"testing"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

func TestNormalizeStatus(t *testing.T) {
	a := New("", "tok")
	cases := map[string]common.BuildStatus{
		"created":   common.BuildPending,
		"running":   common.BuildRunning,
		"success":   common.BuildCompleted,
		"failed":    common.BuildCompleted,
		"manual":    common.BuildCompleted,
		"something": common.BuildUnknown,
	}
	for in, want := range cases {
		if got := a.NormalizeStatus(in); got != want {
			t.Errorf("NormalizeStatus(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewDefaultsBaseURL(t *testing.T) {
	a := New("", "tok")
	if a.baseURL != "https://gitlab.com/api/v4" {
		t.Errorf("baseURL = %q, want default gitlab.com API root", a.baseURL)
	}
}

func TestMax1(t *testing.T) {
	if max1(0) != 1 || max1(-5) != 1 || max1(3) != 3 {
		t.Error("max1 should floor at 1")
	}
}
