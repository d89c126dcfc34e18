// Package orchestrator defines the chord abstraction spec §4.3 builds the
// ingestion and processing pipelines out of: a group of parallel tasks
// followed by an aggregation callback that runs exactly once, after every
// group member has either succeeded or exhausted its retries.
//
// Two Dispatcher implementations exist: pkg/orchestrator/inprocpool (an
// errgroup-based in-process pool, for a single ingestord process) and
// pkg/orchestrator/pubsubqueue (a Pub/Sub + Redis countdown-counter
// backend, for workers spread across processes/machines), grounded on
// kettle/go/stream.go's pubsub.Client usage.
package orchestrator

import (
	"context"
	"time"
)

// TaskFunc is one unit of work within a chord group.
type TaskFunc func(ctx context.Context) (interface{}, error)

// RetryPolicy bounds how many times a task is retried and how long to wait
// between attempts, per spec §4.3's retry policies (fetch: 3 attempts with
// exponential backoff; ingestion sub-tasks: retryable on network/5xx).
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	Exponential bool
}

// DefaultRetryPolicy is a single attempt, no retry — used by tasks that are
// cheap to re-dispatch at a higher level instead (e.g. per-build
// processing, which spec §4.3 says gets "one attempt").
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 1}

// FetchRetryPolicy matches spec §4.3's "Fetch: up to 3 attempts with
// exponential backoff".
var FetchRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Second, Exponential: true}

// Task is one named unit of work in a Group.
type Task struct {
	Name   string
	Fn     TaskFunc
	Retry  RetryPolicy
}

// Group is the set of tasks a chord waits on before firing its callback.
type Group struct {
	Name  string
	Tasks []Task
}

// TaskResult is one task's outcome after retries are exhausted (or it
// succeeded). Err is nil on success.
type TaskResult struct {
	Name  string
	Value interface{}
	Err   error
}

// Callback aggregates a completed group's results. It runs exactly once
// per chord, even if every task in the group failed (spec §4.3: "must run
// even when some group members fail; failures are passed through as error
// records in the result list").
type Callback func(ctx context.Context, results []TaskResult) error

// Errback is the chord's catastrophic-failure handler: invoked instead of
// Callback when the dispatcher itself cannot guarantee the group ran to
// completion (e.g. a task panicked, or publishing the group failed), and
// invoked after Callback when Callback itself returns an error. Per spec §4.3's error-callback requirement,
// this must flip any in-progress builds to a terminal status rather than
// leaving them stuck.
type Errback func(ctx context.Context, err error)

// Dispatcher runs a chord: a group of parallel tasks followed by a single
// aggregation callback.
type Dispatcher interface {
	Chord(ctx context.Context, group Group, callback Callback, errback Errback) error
}

// RunWithRetry executes fn up to policy.MaxAttempts times, sleeping
// policy.BaseBackoff (doubled each attempt when Exponential is set)
// between attempts. It returns the first success or the last error.
func RunWithRetry(ctx context.Context, policy RetryPolicy, fn TaskFunc) (interface{}, error) {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	backoff := policy.BaseBackoff
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if attempt == policy.MaxAttempts {
			break
		}
		if backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			if policy.Exponential {
				backoff *= 2
			}
		}
	}
	return nil, lastErr
}
