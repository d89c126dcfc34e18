// Package webhook implements the GitHub webhook receiver from spec §6:
// signature verification plus dispatch for installation,
// installation_repositories, and workflow_run events. Routing follows
// boskos/handlers's "constructor returns a ready-to-serve mux, one
// handler func per event" shape, swapping boskos's bare http.ServeMux for
// gorilla/mux so a single path can host the receiver alongside whatever
// other admin routes cmd/ingestord mounts.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	gogithub "github.com/google/go-github/v57/github"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/devci-tools/buildfeatures/pkg/ciprovider"
	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

// Dispatcher starts ingestion for one RawBuildRun against one RepoConfig.
// Implemented by cmd/ingestord's orchestrator wiring; kept as a narrow
// interface here so pkg/webhook doesn't import pkg/orchestrator directly,
// mirroring ciprovider.DiscussionFetcher's capability-interface style.
type Dispatcher interface {
	DispatchBuild(ctx context.Context, cfg *common.RepoConfig, rawBuildRunID int64) error
}

// TokenInvalidator drops a cached GitHub App installation token. Satisfied
// by *pkg/resource.AppTokenCache.
type TokenInvalidator interface {
	Invalidate(installationID string)
}

// Server handles verified GitHub webhook deliveries.
type Server struct {
	secret        []byte
	store         storage.Store
	adapter       ciprovider.Adapter
	dispatcher    Dispatcher
	tokens        TokenInvalidator
	botSubstrings []string
}

// Config bundles Server's dependencies.
type Config struct {
	Secret        []byte
	Store         storage.Store
	Adapter       ciprovider.Adapter // the GitHub adapter; used for status/conclusion normalization
	Dispatcher    Dispatcher
	Tokens        TokenInvalidator
	BotSubstrings []string // optional override, see ciprovider.IsBotCommitWithSubstrings
}

// NewServer builds a webhook Server from cfg.
func NewServer(cfg Config) *Server {
	return &Server{
		secret:        cfg.Secret,
		store:         cfg.Store,
		adapter:       cfg.Adapter,
		dispatcher:    cfg.Dispatcher,
		tokens:        cfg.Tokens,
		botSubstrings: cfg.BotSubstrings,
	}
}

// Handler returns the routed http.Handler, mounting the receiver at
// /webhooks/github per spec §6.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/webhooks/github", s.handleGitHub).Methods(http.MethodPost)
	return r
}

func (s *Server) handleGitHub(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logrus.WithError(err).Warning("webhook: failed to read request body")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !verifySignature(s.secret, body, r.Header.Get("X-Hub-Signature-256")) {
		logrus.Warning("webhook: signature verification failed")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	event, err := gogithub.ParseWebHook(eventType, body)
	if err != nil {
		logrus.WithError(err).WithField("event", eventType).Debug("webhook: unparseable or unhandled event type")
		w.WriteHeader(http.StatusOK) // unrecognized events are ignored, not an error
		return
	}

	ctx := r.Context()
	switch e := event.(type) {
	case *gogithub.InstallationEvent:
		s.handleInstallation(ctx, e)
	case *gogithub.InstallationRepositoriesEvent:
		s.handleInstallationRepositories(ctx, e)
	case *gogithub.WorkflowRunEvent:
		s.handleWorkflowRun(ctx, e)
	default:
		logrus.WithField("event", eventType).Debug("webhook: event type not handled")
	}

	w.WriteHeader(http.StatusOK)
}

// verifySignature checks header against "sha256=" + hex(HMAC-SHA256(secret, body)),
// per spec §6. Constant-time comparison via hmac.Equal guards against timing attacks.
func verifySignature(secret, body []byte, header string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	want, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	got := mac.Sum(nil)
	return hmac.Equal(want, got)
}
