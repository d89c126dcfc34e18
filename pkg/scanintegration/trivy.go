package scanintegration

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

// TrivyTool shells out to the Dockerized trivy filesystem scanner. It
// follows the same IntegrationTool shape as SonarQubeTool (both implement
// the original's shared integrations/base.py ABC), substituting a `trivy
// fs` scan for the sonar-scanner invocation: Trivy's scan is synchronous
// and self-contained, so unlike SonarQube there is no separate dedup API —
// AlreadyScanned checks the results-cache directory this tool writes to
// instead.
type TrivyTool struct {
	// DockerPath overrides which docker binary to exec; empty means
	// "docker" on PATH.
	DockerPath string
	// ResultsDir holds one JSON report per componentKey, acting as both the
	// scan cache and the dedup source of truth.
	ResultsDir string
}

func (t *TrivyTool) Name() common.ScanTool { return common.ScanToolTrivy }

func (t *TrivyTool) docker() string {
	if t.DockerPath != "" {
		return t.DockerPath
	}
	return "docker"
}

func (t *TrivyTool) Available(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, t.docker(), "--version")
	return cmd.Run() == nil
}

func (t *TrivyTool) componentKey(repoFullName, commitSHA string) string {
	return fmt.Sprintf("%s_%s", strings.ReplaceAll(repoFullName, "/", "_"), commitSHA)
}

func (t *TrivyTool) resultPath(componentKey string) string {
	return filepath.Join(t.ResultsDir, componentKey+".json")
}

// AlreadyScanned reports whether a prior report exists on disk for
// componentKey.
func (t *TrivyTool) AlreadyScanned(ctx context.Context, componentKey string) (bool, error) {
	_, err := os.Stat(t.resultPath(componentKey))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

const trivyScanTimeout = 5 * time.Minute

// ScanCommit runs `docker run --rm -v {worktree}:/src -v {results}:/results
// aquasec/trivy:latest fs --format json --output
// /results/{componentKey}.json /src`, the filesystem-scan analogue of
// SonarQubeTool.scan_commit's scanner invocation.
func (t *TrivyTool) ScanCommit(ctx context.Context, repoFullName, commitSHA, worktreePath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, trivyScanTimeout)
	defer cancel()

	key := t.componentKey(repoFullName, commitSHA)
	exists, err := t.AlreadyScanned(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		return key, nil
	}

	outputPath := "/results/" + key + ".json"
	args := []string{
		"run", "--rm",
		"-v", worktreePath + ":/src",
		"-v", t.ResultsDir + ":/results",
		"aquasec/trivy:latest",
		"fs", "--format", "json", "--output", outputPath, "/src",
	}
	cmd := exec.CommandContext(ctx, t.docker(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", &common.TimeoutError{Op: "trivy fs " + repoFullName + "@" + commitSHA}
		}
		return "", &common.RetryableError{
			Op:  "trivy fs " + repoFullName + "@" + commitSHA,
			Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())),
		}
	}
	return key, nil
}

var _ Tool = (*TrivyTool)(nil)
