package extractors

import (
	"context"

	"github.com/devci-tools/buildfeatures/pkg/gitbackend"
)

// fakeBackend is a scriptable gitbackend.Backend for extractor node
// tests, grounded on pkg/resource/acquirer_test.go's fakeBackend.
type fakeBackend struct {
	log          []gitbackend.CommitInfo
	logErr       error
	diffs        map[string][]gitbackend.FileStat
	diffErrs     map[string]error
}

func (f *fakeBackend) CloneBare(ctx context.Context, url, path string) error { return nil }
func (f *fakeBackend) Fetch(ctx context.Context, barePath string) error      { return nil }
func (f *fakeBackend) CommitExists(ctx context.Context, barePath, sha string) (bool, error) {
	return true, nil
}
func (f *fakeBackend) WorktreeAdd(ctx context.Context, barePath, worktreePath, sha string) error {
	return nil
}
func (f *fakeBackend) WorktreeRemove(ctx context.Context, barePath, worktreePath string) error {
	return nil
}
func (f *fakeBackend) Log(ctx context.Context, barePath, sha string, limit int) ([]gitbackend.CommitInfo, error) {
	if f.logErr != nil {
		return nil, f.logErr
	}
	if limit > 0 && limit < len(f.log) {
		return f.log[:limit], nil
	}
	return f.log, nil
}
func (f *fakeBackend) DiffNumstat(ctx context.Context, barePath, sha string) ([]gitbackend.FileStat, error) {
	if err, ok := f.diffErrs[sha]; ok {
		return nil, err
	}
	return f.diffs[sha], nil
}
func (f *fakeBackend) RevList(ctx context.Context, barePath, from, to string) ([]string, error) {
	return nil, nil
}

var _ gitbackend.Backend = (*fakeBackend)(nil)
