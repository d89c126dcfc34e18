package scanintegration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

// SonarQubeTool shells out to the Docker-packaged sonar-scanner-cli, the
// same invocation shape as SonarQubeTool.scan_commit in the original
// (app/integrations/tools/sonarqube/tool.py): a per-commit "project",
// scanned with SCM disabled since worktrees lack usable git refs.
type SonarQubeTool struct {
	// HostURL and Token configure both the scanner CLI and the dedup lookup
	// against SonarQube's /api/projects/search, mirroring the original's
	// SONAR_HOST_URL/SONAR_TOKEN settings with ENV fallback.
	HostURL string
	Token   string
	// ProjectKeyPrefix namespaces the per-commit component key, analogous
	// to the original's configured project_key.
	ProjectKeyPrefix string

	// DockerPath overrides which docker binary to exec; empty means
	// "docker" on PATH.
	DockerPath string

	// HTTPClient issues the dedup lookup; defaults to http.DefaultClient.
	HTTPClient *http.Client
}

func (t *SonarQubeTool) Name() common.ScanTool { return common.ScanToolSonarQube }

func (t *SonarQubeTool) docker() string {
	if t.DockerPath != "" {
		return t.DockerPath
	}
	return "docker"
}

func (t *SonarQubeTool) httpClient() *http.Client {
	if t.HTTPClient != nil {
		return t.HTTPClient
	}
	return http.DefaultClient
}

// Available reports whether the Docker CLI is reachable, the same
// "docker --version" probe as SonarQubeTool.is_available.
func (t *SonarQubeTool) Available(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, t.docker(), "--version")
	return cmd.Run() == nil
}

// componentKey mirrors f"{project_key}_{commit_sha}" from the original.
func (t *SonarQubeTool) componentKey(commitSHA string) string {
	return fmt.Sprintf("%s_%s", t.ProjectKeyPrefix, commitSHA)
}

// AlreadyScanned queries SonarQube's project-search API for componentKey,
// the same dedup check as SonarQubeTool._project_exists.
func (t *SonarQubeTool) AlreadyScanned(ctx context.Context, componentKey string) (bool, error) {
	q := url.Values{"projects": {componentKey}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(t.HostURL, "/")+"/api/projects/search?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}
	req.SetBasicAuth(t.Token, "")
	resp, err := t.httpClient().Do(req)
	if err != nil {
		return false, &common.RetryableError{Op: "sonarqube project search", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, nil
	}
	var body struct {
		Components []struct {
			Key string `json:"key"`
		} `json:"components"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("sonarqube project search: decode: %w", err)
	}
	return len(body.Components) > 0, nil
}

// ScanCommit runs the scanner against worktreePath, the Go translation of
// the original's `docker run --rm -v {source}:/usr/src -w /usr/src
// --network host sonarsource/sonar-scanner-cli:latest
// -Dsonar.projectKey=... -Dsonar.scm.disabled=true ...` invocation.
func (t *SonarQubeTool) ScanCommit(ctx context.Context, repoFullName, commitSHA, worktreePath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, sonarScanTimeout)
	defer cancel()

	key := t.componentKey(commitSHA)
	exists, err := t.AlreadyScanned(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		return key, nil
	}

	args := []string{
		"run", "--rm",
		"-v", worktreePath + ":/usr/src",
		"-w", "/usr/src",
		"--network", "host",
		"sonarsource/sonar-scanner-cli:latest",
		"-Dsonar.projectKey=" + key,
		"-Dsonar.host.url=" + t.HostURL,
		"-Dsonar.token=" + t.Token,
		"-Dsonar.scm.disabled=true",
	}
	cmd := exec.CommandContext(ctx, t.docker(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", &common.TimeoutError{Op: "sonar-scanner " + repoFullName + "@" + commitSHA}
		}
		return "", &common.RetryableError{
			Op:  "sonar-scanner " + repoFullName + "@" + commitSHA,
			Err: fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())),
		}
	}
	return key, nil
}

var _ Tool = (*SonarQubeTool)(nil)

// sonarScanTimeout bounds a single scanner invocation, since
// sonar-scanner-cli has no built-in deadline of its own.
const sonarScanTimeout = 10 * time.Minute
