// Command featurectl is the admin CLI surface for spec §6's seven
// orchestrator operations, connecting directly to the same database
// ingestord runs against. Command/flag structure follows
// boskos/cmd/cli/cli.go: one cobra subcommand per operation, required
// flags marked via MarkFlagRequired, JSON results from import and
// progress, a message-then-exit(1) path on error.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/devci-tools/buildfeatures/pkg/ciprovider"
	githubadapter "github.com/devci-tools/buildfeatures/pkg/ciprovider/github"
	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/config"
	"github.com/devci-tools/buildfeatures/pkg/featuredag"
	"github.com/devci-tools/buildfeatures/pkg/orchestrator"
	"github.com/devci-tools/buildfeatures/pkg/orchestrator/inprocpool"
	"github.com/devci-tools/buildfeatures/pkg/storage/postgres"
	"github.com/devci-tools/buildfeatures/pkg/tokenpool"

	"github.com/gomodule/redigo/redis"
)

// for test mocking, mirroring boskos/cmd/cli's package-level exit hook
var exit = os.Exit

type options struct {
	dsn string

	importRepo struct {
		fullName   string
		provider   string
		maxBuilds  int
		featureSet string
	}
	repoConfigID int64
}

func (o *options) buildService() (*orchestrator.Service, func(), error) {
	store, err := postgres.Open(o.dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	redisPool := &redis.Pool{Dial: func() (redis.Conn, error) { return redis.Dial("tcp", "localhost:6379") }}
	pool := tokenpool.New(redisPool, string(common.ProviderGitHubActions))
	adapter := githubadapter.NewFromPool(pool, nil)

	svc := &orchestrator.Service{
		Store:      store,
		Adapters:   map[common.ProviderKind]ciprovider.Adapter{common.ProviderGitHubActions: adapter},
		Dispatcher: inprocpool.New(4),
	}
	cleanup := func() {
		store.Close()
		redisPool.Close()
	}
	return svc, cleanup, nil
}

func printJSON(cmd *cobra.Command, v interface{}) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "failed to marshal result: %v\n", err)
		exit(1)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(raw))
}

func command() *cobra.Command {
	opts := options{}
	cfg := config.DefaultConfig()

	root := &cobra.Command{
		Use:   "featurectl",
		Short: "Admin CLI for the build-ingestion and feature-extraction pipeline",
		Long: `featurectl drives the pipeline's admin operations directly against
its database: importing repositories, syncing and processing their
builds, retrying failures, and checking progress.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		Args: cobra.NoArgs,
	}
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", cfg.DSN(), "database connection string")

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import a repository and begin ingesting its builds",
		Long: `Register a repository for ingestion and kick off the initial fetch.

Examples:

  # Import up to 500 builds of a repository, extracting the default feature set
  $ featurectl import --repo acme/widgets --provider github_actions --max-builds 500`,
		Run: func(cmd *cobra.Command, args []string) {
			svc, cleanup, err := opts.buildService()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to connect: %v\n", err)
				exit(1)
				return
			}
			defer cleanup()

			var featureSet []string
			if opts.importRepo.featureSet != "" {
				featureSet = strings.Split(opts.importRepo.featureSet, ",")
			} else {
				for _, n := range featuredag.All() {
					featureSet = append(featureSet, n.FeaturesProduced...)
				}
			}

			id, err := svc.ImportRepository(context.Background(), opts.importRepo.fullName,
				common.ProviderKind(opts.importRepo.provider),
				common.ImportConstraints{MaxBuilds: opts.importRepo.maxBuilds},
				featureSet)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to import repository %q: %v\n", opts.importRepo.fullName, err)
				exit(1)
				return
			}
			printJSON(cmd, map[string]int64{"repo_config_id": id})
		},
		Args: cobra.NoArgs,
	}
	importCmd.Flags().StringVar(&opts.importRepo.fullName, "repo", "", "owner/repo to import")
	importCmd.Flags().StringVar(&opts.importRepo.provider, "provider", string(common.ProviderGitHubActions), "CI provider kind")
	importCmd.Flags().IntVar(&opts.importRepo.maxBuilds, "max-builds", 0, "maximum builds to import (0 = a single page of builds)")
	importCmd.Flags().StringVar(&opts.importRepo.featureSet, "features", "", "comma-separated feature names to extract (empty = every registered feature)")
	for _, flag := range []string{"repo"} {
		if err := importCmd.MarkFlagRequired(flag); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	}
	root.AddCommand(importCmd)

	withRepoConfigID := func(use, short string, run func(cmd *cobra.Command, svc *orchestrator.Service)) *cobra.Command {
		c := &cobra.Command{
			Use:   use,
			Short: short,
			Run: func(cmd *cobra.Command, args []string) {
				svc, cleanup, err := opts.buildService()
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "failed to connect: %v\n", err)
					exit(1)
					return
				}
				defer cleanup()
				run(cmd, svc)
			},
			Args: cobra.NoArgs,
		}
		c.Flags().Int64Var(&opts.repoConfigID, "repo-config-id", 0, "RepoConfig id")
		if err := c.MarkFlagRequired("repo-config-id"); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		return c
	}

	root.AddCommand(withRepoConfigID("sync", "Re-queue a repository for an incremental sync", func(cmd *cobra.Command, svc *orchestrator.Service) {
		if err := svc.SyncRepository(context.Background(), opts.repoConfigID); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to sync repo config %d: %v\n", opts.repoConfigID, err)
			exit(1)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sync started for repo config %d\n", opts.repoConfigID)
	}))

	root.AddCommand(withRepoConfigID("start-processing", "Begin feature extraction for ingested builds", func(cmd *cobra.Command, svc *orchestrator.Service) {
		if err := svc.StartProcessing(context.Background(), opts.repoConfigID); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to start processing repo config %d: %v\n", opts.repoConfigID, err)
			exit(1)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "processing started for repo config %d\n", opts.repoConfigID)
	}))

	root.AddCommand(withRepoConfigID("retry-ingestion", "Reset failed ingestion builds back to pending", func(cmd *cobra.Command, svc *orchestrator.Service) {
		n, err := svc.RetryFailedIngestion(context.Background(), opts.repoConfigID)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to retry ingestion for repo config %d: %v\n", opts.repoConfigID, err)
			exit(1)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reset %d failed ingestion build(s) for repo config %d\n", n, opts.repoConfigID)
	}))

	root.AddCommand(withRepoConfigID("retry-processing", "Reset failed training builds and redispatch extraction", func(cmd *cobra.Command, svc *orchestrator.Service) {
		n, err := svc.RetryFailedProcessing(context.Background(), opts.repoConfigID)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to retry processing for repo config %d: %v\n", opts.repoConfigID, err)
			exit(1)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reset %d failed training build(s) for repo config %d\n", n, opts.repoConfigID)
	}))

	root.AddCommand(withRepoConfigID("delete", "Delete a repository config and its owned entities", func(cmd *cobra.Command, svc *orchestrator.Service) {
		if err := svc.DeleteRepository(context.Background(), opts.repoConfigID); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to delete repo config %d: %v\n", opts.repoConfigID, err)
			exit(1)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted repo config %d\n", opts.repoConfigID)
	}))

	root.AddCommand(withRepoConfigID("progress", "Report a repository's import/processing progress", func(cmd *cobra.Command, svc *orchestrator.Service) {
		progress, err := svc.GetImportProgress(context.Background(), opts.repoConfigID)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to get progress for repo config %d: %v\n", opts.repoConfigID, err)
			exit(1)
			return
		}
		printJSON(cmd, progress)
	}))

	return root
}

func main() {
	if err := command().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exit(1)
	}
}
