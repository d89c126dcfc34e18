// Package pubsubqueue implements orchestrator.Dispatcher for workers
// spread across processes or machines. Each task is published as a
// message on a Cloud Pub/Sub topic keyed by task name; subscribers for
// that name execute the task and publish a result message. A
// chordcounter.Counter tracks how many group members remain in-flight:
// the dispatching process's result listener decrements it as each result
// arrives, and the Decrement call that observes the count hit zero is the
// one that hands the buffered results to the callback.
//
// The publish/subscribe plumbing is grounded on kettle/go/stream.go's
// pubsub.Client + sub.Receive usage; unlike that one-shot batch puller,
// this package keeps long-lived subscriptions open for the lifetime of
// the worker process.
package pubsubqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"

	"github.com/devci-tools/buildfeatures/pkg/orchestrator"
	"github.com/devci-tools/buildfeatures/pkg/orchestrator/chordcounter"
)

// TaskRegistry maps a stable task name to its implementation. Every
// worker process must register the same names — tasks cross the wire as
// names, not closures, since a Go func cannot be serialized.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]orchestrator.TaskFunc
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: make(map[string]orchestrator.TaskFunc)}
}

func (r *TaskRegistry) Register(name string, fn orchestrator.TaskFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = fn
}

func (r *TaskRegistry) lookup(name string) (orchestrator.TaskFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.tasks[name]
	return fn, ok
}

// wireTask is what crosses the Pub/Sub topic to invoke one task; taskName
// must be registered identically in every worker process.
type wireTask struct {
	GroupID   string `json:"group_id"`
	Index     int    `json:"index"`
	TaskName  string `json:"task_name"`
	RetryJSON []byte `json:"retry_policy"`
}

// wireResult is what crosses back after a task finishes.
type wireResult struct {
	GroupID string `json:"group_id"`
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Value   []byte `json:"value_json"`
	Err     string `json:"err"`
}

// Dispatcher coordinates chords over Pub/Sub topics plus a Redis
// countdown counter for group-completion detection.
type Dispatcher struct {
	taskTopic   *pubsub.Topic
	resultTopic *pubsub.Topic
	resultSub   *pubsub.Subscription
	counter     *chordcounter.Counter
	registry    *TaskRegistry

	mu      sync.Mutex
	pending map[string]*pendingGroup
}

type pendingGroup struct {
	results  []orchestrator.TaskResult
	callback orchestrator.Callback
	errback  orchestrator.Errback
	total    int
}

// New builds a pubsubqueue Dispatcher. taskTopic/resultTopic must already
// exist; resultSub must be subscribed to resultTopic.
func New(taskTopic, resultTopic *pubsub.Topic, resultSub *pubsub.Subscription, counter *chordcounter.Counter, registry *TaskRegistry) *Dispatcher {
	return &Dispatcher{
		taskTopic:   taskTopic,
		resultTopic: resultTopic,
		resultSub:   resultSub,
		counter:     counter,
		registry:    registry,
		pending:     make(map[string]*pendingGroup),
	}
}

// StartResultListener begins consuming the result subscription; it blocks
// until ctx is cancelled, so callers run it in its own goroutine. Each
// ingestord process that dispatches chords must run exactly one listener.
func (d *Dispatcher) StartResultListener(ctx context.Context) error {
	return d.resultSub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var res wireResult
		if err := json.Unmarshal(msg.Data, &res); err != nil {
			logrus.WithError(err).Error("pubsubqueue: malformed result message")
			msg.Nack()
			return
		}
		d.handleResult(ctx, res)
		msg.Ack()
	})
}

func (d *Dispatcher) handleResult(ctx context.Context, res wireResult) {
	d.mu.Lock()
	group, ok := d.pending[res.GroupID]
	d.mu.Unlock()
	if !ok {
		logrus.WithField("group_id", res.GroupID).Warn("pubsubqueue: result for unknown/already-finalized group")
		return
	}

	var val interface{}
	if len(res.Value) > 0 {
		_ = json.Unmarshal(res.Value, &val)
	}
	var taskErr error
	if res.Err != "" {
		taskErr = fmt.Errorf("%s", res.Err)
	}

	d.mu.Lock()
	if res.Index >= 0 && res.Index < len(group.results) {
		group.results[res.Index] = orchestrator.TaskResult{Name: res.Name, Value: val, Err: taskErr}
	}
	d.mu.Unlock()

	isLast, err := d.counter.Decrement(res.GroupID)
	if err != nil {
		logrus.WithError(err).Error("pubsubqueue: counter decrement failed")
		return
	}
	if !isLast {
		return
	}

	d.mu.Lock()
	delete(d.pending, res.GroupID)
	d.mu.Unlock()

	if err := group.callback(ctx, group.results); err != nil {
		if group.errback != nil {
			group.errback(ctx, err)
		}
	}
}

// Chord publishes every task in group to the task topic and registers the
// group so the result listener can finalize it. Chord itself returns as
// soon as dispatch succeeds — it does not block for completion, since
// tasks run on other worker processes; the callback fires asynchronously
// from StartResultListener.
func (d *Dispatcher) Chord(ctx context.Context, group orchestrator.Group, callback orchestrator.Callback, errback orchestrator.Errback) error {
	if len(group.Tasks) == 0 {
		return callback(ctx, nil)
	}

	groupID := group.Name
	if err := d.counter.Init(groupID, len(group.Tasks)); err != nil {
		if errback != nil {
			errback(ctx, err)
		}
		return err
	}

	d.mu.Lock()
	d.pending[groupID] = &pendingGroup{
		results:  make([]orchestrator.TaskResult, len(group.Tasks)),
		callback: callback,
		errback:  errback,
		total:    len(group.Tasks),
	}
	d.mu.Unlock()

	for i, task := range group.Tasks {
		wt := wireTask{GroupID: groupID, Index: i, TaskName: task.Name}
		data, err := json.Marshal(wt)
		if err != nil {
			if errback != nil {
				errback(ctx, err)
			}
			return err
		}
		result := d.taskTopic.Publish(ctx, &pubsub.Message{Data: data})
		if _, err := result.Get(ctx); err != nil {
			if errback != nil {
				errback(ctx, err)
			}
			return fmt.Errorf("pubsubqueue: publish task %q: %w", task.Name, err)
		}
	}
	return nil
}

// RunWorker consumes taskSub indefinitely, looking up each task by name in
// the registry, executing it, and publishing the result. It blocks until
// ctx is cancelled.
func (d *Dispatcher) RunWorker(ctx context.Context, taskSub *pubsub.Subscription) error {
	return taskSub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var wt wireTask
		if err := json.Unmarshal(msg.Data, &wt); err != nil {
			logrus.WithError(err).Error("pubsubqueue: malformed task message")
			msg.Nack()
			return
		}

		fn, ok := d.registry.lookup(wt.TaskName)
		if !ok {
			logrus.WithField("task_name", wt.TaskName).Error("pubsubqueue: task not registered on this worker")
			msg.Nack()
			return
		}

		val, err := fn(ctx)

		res := wireResult{GroupID: wt.GroupID, Index: wt.Index, Name: wt.TaskName}
		if err != nil {
			res.Err = err.Error()
		} else if val != nil {
			if data, merr := json.Marshal(val); merr == nil {
				res.Value = data
			}
		}

		data, merr := json.Marshal(res)
		if merr != nil {
			logrus.WithError(merr).Error("pubsubqueue: failed to marshal result")
			msg.Nack()
			return
		}

		publishResult := d.resultTopic.Publish(ctx, &pubsub.Message{Data: data})
		if _, perr := publishResult.Get(ctx); perr != nil {
			logrus.WithError(perr).Error("pubsubqueue: failed to publish result")
			msg.Nack()
			return
		}
		msg.Ack()
	})
}
