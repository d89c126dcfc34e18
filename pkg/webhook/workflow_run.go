package webhook

import (
	"context"
	"fmt"

	gogithub "github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"

	"github.com/devci-tools/buildfeatures/pkg/ciprovider"
	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/storage"
)

// handleWorkflowRun reacts to the workflow_run event. Only action=="completed"
// carries a final status/conclusion worth persisting; queued/in_progress
// deliveries are acknowledged and dropped, matching FetchBuilds's own
// practice of only stamping CompletedAt once status reaches BuildCompleted.
// Bot-triggered runs are flagged via IsBotCommit but still stored, per
// spec §6 — exclude-bots is an ingestion-time filter, not an intake one.
func (s *Server) handleWorkflowRun(ctx context.Context, e *gogithub.WorkflowRunEvent) {
	log := logrus.WithField("handler", "workflow_run").WithField("action", e.GetAction())

	if e.GetAction() != "completed" {
		log.Debug("webhook: ignoring non-terminal workflow_run action")
		return
	}

	fullName := e.GetRepo().GetFullName()
	repo, err := s.store.Repositories().GetByFullName(ctx, fullName)
	if err != nil {
		if err == storage.ErrNotFound {
			log.WithField("repo", fullName).Debug("webhook: workflow_run for an untracked repository")
			return
		}
		log.WithError(err).WithField("repo", fullName).Warning("webhook: failed to look up repository")
		return
	}

	run := e.GetWorkflowRun()
	author := ""
	if run.GetHeadCommit() != nil && run.GetHeadCommit().GetAuthor() != nil {
		author = run.GetHeadCommit().GetAuthor().GetName()
	}
	isBot := ciprovider.IsBotCommitWithSubstrings(author, s.botSubstrings)

	status := s.adapter.NormalizeStatus(run.GetStatus())
	var conclusion common.BuildConclusion
	if normalizer, ok := s.adapter.(ciprovider.ConclusionNormalizer); ok {
		conclusion = normalizer.NormalizeConclusion(run.GetConclusion())
	}

	build := &common.RawBuildRun{
		RepoID:        repo.ID,
		Provider:      common.ProviderGitHubActions,
		ProviderBuild: fmt.Sprintf("%d", run.GetID()),
		BuildNumber:   int64(run.GetRunNumber()),
		CommitSHA:     run.GetHeadSHA(),
		Branch:        run.GetHeadBranch(),
		Status:        status,
		Conclusion:    conclusion,
		IsBotCommit:   isBot,
	}
	if run.CreatedAt != nil {
		t := run.GetCreatedAt().Time
		build.StartedAt = &t
	}
	if run.UpdatedAt != nil {
		t := run.GetUpdatedAt().Time
		build.CompletedAt = &t
	}

	buildID, err := s.store.BuildRuns().Upsert(ctx, build)
	if err != nil {
		log.WithError(err).WithField("repo", fullName).Warning("webhook: failed to upsert build run")
		return
	}

	configs, err := s.store.RepoConfigs().ListByRepo(ctx, repo.ID)
	if err != nil {
		log.WithError(err).WithField("repo", fullName).Warning("webhook: failed to list repo configs")
		return
	}

	for _, cfg := range configs {
		// Only configs that have finished their initial import accept
		// webhook-driven incremental builds; one still mid-ingestion or
		// mid-processing will pick the new build up on its next sync.
		if cfg.Status != common.RepoConfigProcessed {
			continue
		}
		if s.dispatcher == nil {
			continue
		}
		if err := s.dispatcher.DispatchBuild(ctx, cfg, buildID); err != nil {
			log.WithError(err).
				WithField("repo_config_id", cfg.ID).
				WithField("build_id", buildID).
				Warning("webhook: failed to dispatch ingestion")
		}
	}
}
