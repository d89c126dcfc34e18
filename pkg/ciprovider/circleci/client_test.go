package circleci

import (
	"testing"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

func TestNormalizeStatus(t *testing.T) {
	a := New("tok")
	cases := map[string]common.BuildStatus{
		"created": common.BuildPending,
		"on_hold": common.BuildPending,
		"running": common.BuildRunning,
		"success": common.BuildCompleted,
		"failing": common.BuildCompleted,
		"???":     common.BuildUnknown,
	}
	for in, want := range cases {
		if got := a.NormalizeStatus(in); got != want {
			t.Errorf("NormalizeStatus(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFetchBuildLogsUnimplementedReturnsResourceMissing(t *testing.T) {
	a := New("tok")
	_, err := a.FetchBuildLogs(nil, &common.RawRepository{}, "pipeline-1", "job-1")
	var rerr *common.ResourceMissingError
	if err == nil {
		t.Fatal("expected ResourceMissingError")
	}
	if !asResourceMissing(err, &rerr) {
		t.Fatalf("err = %v, want *common.ResourceMissingError", err)
	}
}

func asResourceMissing(err error, target **common.ResourceMissingError) bool {
	if r, ok := err.(*common.ResourceMissingError); ok {
		*target = r
		return true
	}
	return false
}
