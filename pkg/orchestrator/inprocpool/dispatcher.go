// Package inprocpool implements orchestrator.Dispatcher for a single
// process: the group runs on an errgroup.Group-backed worker pool and the
// callback fires in-line once every task has returned, generalizing the
// per-level parallel execution style used throughout the pipeline.
package inprocpool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/devci-tools/buildfeatures/pkg/orchestrator"
)

// Dispatcher bounds group concurrency at Concurrency goroutines (0 means
// unbounded, one goroutine per task).
type Dispatcher struct {
	Concurrency int
}

// New builds a Dispatcher with the given concurrency bound.
func New(concurrency int) *Dispatcher {
	return &Dispatcher{Concurrency: concurrency}
}

// Chord runs group.Tasks concurrently (each under its own retry policy),
// collects every TaskResult, and invokes callback exactly once. A panic
// inside any task is recovered and reported to errback instead of letting
// it take down the whole process, since the dispatcher must guarantee the
// callback-or-errback contract even under a programmer error in one task.
func (d *Dispatcher) Chord(ctx context.Context, group orchestrator.Group, callback orchestrator.Callback, errback orchestrator.Errback) (err error) {
	results := make([]orchestrator.TaskResult, len(group.Tasks))

	defer func() {
		if r := recover(); r != nil {
			panicErr := fmt.Errorf("orchestrator: panic in chord %q: %v", group.Name, r)
			if errback != nil {
				errback(ctx, panicErr)
			}
			err = panicErr
		}
	}()

	eg, egCtx := errgroup.WithContext(ctx)
	if d.Concurrency > 0 {
		eg.SetLimit(d.Concurrency)
	}

	var mu sync.Mutex
	for i, task := range group.Tasks {
		i, task := i, task
		eg.Go(func() (goErr error) {
			defer func() {
				if r := recover(); r != nil {
					goErr = fmt.Errorf("orchestrator: panic in task %q: %v", task.Name, r)
				}
			}()
			val, taskErr := orchestrator.RunWithRetry(egCtx, task.Retry, task.Fn)
			mu.Lock()
			results[i] = orchestrator.TaskResult{Name: task.Name, Value: val, Err: taskErr}
			mu.Unlock()
			// Never propagate the task error to errgroup: a failed task is
			// a result, not a dispatcher-level failure. Returning it here
			// would cancel sibling tasks and short-circuit the group,
			// violating "callback must run even when some group members
			// fail".
			return nil
		})
	}

	if waitErr := eg.Wait(); waitErr != nil {
		if errback != nil {
			errback(ctx, waitErr)
		}
		return waitErr
	}

	if err := callback(ctx, results); err != nil {
		if errback != nil {
			errback(ctx, err)
		}
		return err
	}
	return nil
}
