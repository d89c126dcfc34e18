package gitbackend

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

// Shell implements Backend by exec'ing the system git binary, the way
// most of the corpus's git-touching CLIs operate: every invocation runs
// under the caller's context so a cancelled/expired context kills the
// subprocess instead of leaking it.
type Shell struct {
	// GitPath overrides which git binary to exec; empty means "git" (must
	// be on PATH).
	GitPath string
}

func (s *Shell) bin() string {
	if s.GitPath != "" {
		return s.GitPath
	}
	return "git"
}

func (s *Shell) run(ctx context.Context, dir string, args ...string) (stdout []byte, err error) {
	cmd := exec.CommandContext(ctx, s.bin(), args...)
	cmd.Dir = dir
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	if runErr := cmd.Run(); runErr != nil {
		if ctx.Err() != nil {
			return nil, &common.TimeoutError{Op: "git " + strings.Join(args, " ")}
		}
		return outBuf.Bytes(), &common.RetryableError{
			Op:  fmt.Sprintf("git %s", strings.Join(args, " ")),
			Err: fmt.Errorf("%w: %s", runErr, strings.TrimSpace(errBuf.String())),
		}
	}
	return outBuf.Bytes(), nil
}

func (s *Shell) CloneBare(ctx context.Context, url, path string) error {
	_, err := s.run(ctx, "", "clone", "--bare", url, path)
	return err
}

func (s *Shell) Fetch(ctx context.Context, barePath string) error {
	_, err := s.run(ctx, barePath, "fetch", "--all", "--prune")
	return err
}

func (s *Shell) CommitExists(ctx context.Context, barePath, sha string) (bool, error) {
	_, err := s.run(ctx, barePath, "cat-file", "-e", sha)
	if err == nil {
		return true, nil
	}
	if common.IsRetryable(err) {
		// git cat-file -e exits non-zero for a missing object just like it
		// does for a genuine I/O error; treat it as "absent", matching the
		// acquirer's "skip clone if commit check succeeds" logic in §4.4,
		// which only needs a boolean, not error classification.
		return false, nil
	}
	return false, err
}

func (s *Shell) WorktreeAdd(ctx context.Context, barePath, worktreePath, sha string) error {
	_, err := s.run(ctx, barePath, "worktree", "add", "--detach", worktreePath, sha)
	return err
}

func (s *Shell) WorktreeRemove(ctx context.Context, barePath, worktreePath string) error {
	_, err := s.run(ctx, barePath, "worktree", "remove", "--force", worktreePath)
	return err
}

const logFieldSep = "\x1f"
const logRecordSep = "\x1e"

func (s *Shell) Log(ctx context.Context, barePath, sha string, limit int) ([]CommitInfo, error) {
	format := strings.Join([]string{"%H", "%an", "%ae", "%P", "%cI", "%s"}, logFieldSep)
	args := []string{"log", "--pretty=format:" + format + logRecordSep, fmt.Sprintf("-n%d", limit), sha}
	out, err := s.run(ctx, barePath, args...)
	if err != nil {
		return nil, err
	}
	return parseLogOutput(string(out)), nil
}

// parseLogOutput parses git log output formatted with logFieldSep/
// logRecordSep, split out from Log for testing without a git binary.
func parseLogOutput(raw string) []CommitInfo {
	var commits []CommitInfo
	for _, rec := range strings.Split(raw, logRecordSep) {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		fields := strings.Split(rec, logFieldSep)
		if len(fields) != 6 {
			continue
		}
		committedAt, _ := time.Parse(time.RFC3339, fields[4])
		var parents []string
		if fields[3] != "" {
			parents = strings.Fields(fields[3])
		}
		commits = append(commits, CommitInfo{
			SHA:         fields[0],
			AuthorName:  fields[1],
			AuthorEmail: fields[2],
			ParentSHAs:  parents,
			CommittedAt: committedAt,
			Message:     fields[5],
		})
	}
	return commits
}

func (s *Shell) DiffNumstat(ctx context.Context, barePath, sha string) ([]FileStat, error) {
	out, err := s.run(ctx, barePath, "diff", "--numstat", sha+"^", sha)
	if err != nil {
		return nil, err
	}

	var stats []FileStat
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}
		fs := FileStat{Path: strings.Join(parts[2:], " ")}
		if parts[0] == "-" || parts[1] == "-" {
			fs.Binary = true
		} else {
			fs.Additions, _ = strconv.Atoi(parts[0])
			fs.Deletions, _ = strconv.Atoi(parts[1])
		}
		stats = append(stats, fs)
	}
	return stats, nil
}

func (s *Shell) RevList(ctx context.Context, barePath, from, to string) ([]string, error) {
	out, err := s.run(ctx, barePath, "rev-list", from+".."+to)
	if err != nil {
		return nil, err
	}
	var shas []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			shas = append(shas, line)
		}
	}
	return shas, nil
}
