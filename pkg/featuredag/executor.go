package featuredag

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/metrics"
)

// defaultMaxRetries is spec §4.5's "retry up to 2 times" policy, applied
// when a Node doesn't override MaxRetries.
const defaultMaxRetries = 2

const retryBackoff = 200 * time.Millisecond

// ExecContext is the read/write state a node's Run function sees: the
// resources the acquirer prepared and the features already produced by
// nodes in earlier levels. Safe for concurrent reads within one level;
// Features is only ever written back by the executor between levels, never
// mutated by a node directly.
type ExecContext struct {
	Context   context.Context
	BuildRun  *common.RawBuildRun
	Resources map[common.ResourceKind]interface{}
	Features  map[string]interface{}
}

// HasResource reports whether r is present in the execution context,
// the check every node must run before use per spec §4.5 step 1.
func (e *ExecContext) HasResource(r common.ResourceKind) bool {
	_, ok := e.Resources[r]
	return ok
}

// Result is the outcome of running a full plan: the accumulated feature
// map and the ordered per-node audit trail.
type Result struct {
	Features map[string]interface{}
	Audit    []common.NodeOutcome
}

// Execute runs plan's levels in order, each level's nodes in parallel,
// accumulating features into a shared map between levels and building the
// per-node audit trail spec §4.5 requires.
func Execute(ctx context.Context, buildRun *common.RawBuildRun, resources map[common.ResourceKind]interface{}, plan *Plan) (*Result, error) {
	features := map[string]interface{}{}
	var audit []common.NodeOutcome

	for _, level := range plan.Levels {
		outcomes, levelFeatures, err := executeLevel(ctx, buildRun, resources, features, level)
		if err != nil {
			return nil, err
		}
		for k, v := range levelFeatures {
			features[k] = v
		}
		audit = append(audit, outcomes...)
	}

	return &Result{Features: features, Audit: audit}, nil
}

// executeLevel runs every node in level concurrently via errgroup, each
// node's own panic/error recovered locally so one node's failure never
// aborts its level-mates — mirroring pkg/orchestrator/inprocpool's
// per-task panic isolation, since a feature-extraction node is exactly
// the same "must not take down sibling work" shape as a chord task.
func executeLevel(ctx context.Context, buildRun *common.RawBuildRun, resources map[common.ResourceKind]interface{}, upstreamFeatures map[string]interface{}, level []*Node) ([]common.NodeOutcome, map[string]interface{}, error) {
	outcomes := make([]common.NodeOutcome, len(level))
	featureBatches := make([]map[string]interface{}, len(level))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, node := range level {
		i, node := i, node
		eg.Go(func() error {
			outcomes[i], featureBatches[i] = runNode(egCtx, buildRun, resources, upstreamFeatures, node)
			return nil
		})
	}
	_ = eg.Wait() // node failures are captured per-outcome, never propagated here

	merged := map[string]interface{}{}
	for _, batch := range featureBatches {
		for k, v := range batch {
			merged[k] = v
		}
	}
	return outcomes, merged, nil
}

// runNode checks resource availability, then invokes node with up to
// MaxRetries retries on an unhandled error, producing exactly one audit
// entry per spec §4.5 step 3.
func runNode(ctx context.Context, buildRun *common.RawBuildRun, resources map[common.ResourceKind]interface{}, upstreamFeatures map[string]interface{}, node *Node) (common.NodeOutcome, map[string]interface{}) {
	start := time.Now()
	outcome := common.NodeOutcome{Name: node.Name}

	var missing []common.ResourceKind
	for _, r := range node.RequiresResources {
		if _, ok := resources[r]; !ok {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		outcome.Status = "skipped"
		outcome.SkipReason = "missing resource: " + string(missing[0])
		outcome.ResourcesMissing = missing
		outcome.Duration = time.Since(start)
		metrics.DAGNodeOutcomesTotal.WithLabelValues(node.Name, "skipped").Inc()
		return outcome, nil
	}

	execCtx := &ExecContext{Context: ctx, BuildRun: buildRun, Resources: resources, Features: upstreamFeatures}

	maxRetries := node.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	var lastErr error
	var produced map[string]interface{}
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				goto finalize
			case <-time.After(retryBackoff):
			}
		}
		produced, lastErr = invokeNode(node, execCtx)
		if lastErr == nil {
			break
		}
		outcome.RetryCount = attempt
	}

finalize:
	outcome.Duration = time.Since(start)
	outcome.ResourcesUsed = node.RequiresResources
	if lastErr != nil {
		outcome.Status = "failed"
		outcome.Error = lastErr.Error()
		metrics.DAGNodeOutcomesTotal.WithLabelValues(node.Name, "failed").Inc()
		return outcome, nil
	}
	outcome.Status = "success"
	outcome.FeaturesExtracted = produced
	metrics.DAGNodeOutcomesTotal.WithLabelValues(node.Name, "success").Inc()
	return outcome, produced
}

// invokeNode calls node.Run, recovering a panic into an error so a single
// misbehaving extractor never crashes the whole execution.
func invokeNode(node *Node, execCtx *ExecContext) (m map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &common.FatalError{Reason: "panic in node " + node.Name}
		}
	}()
	return node.Run(execCtx)
}

// DetermineExtractionStatus applies spec §4.5's graceful-degradation rule:
// Completed if every selected feature was produced, Partial if some nodes
// were skipped/failed but at least one feature was extracted, Failed if
// nothing was extracted at all.
func DetermineExtractionStatus(result *Result) common.ExtractionStatus {
	if len(result.Features) == 0 {
		return common.ExtractionFailed
	}
	for _, n := range result.Audit {
		if n.Status != "success" {
			return common.ExtractionPartial
		}
	}
	return common.ExtractionCompleted
}
