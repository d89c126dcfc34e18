package pubsubqueue

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gomodule/redigo/redis"

	"github.com/devci-tools/buildfeatures/pkg/orchestrator"
	"github.com/devci-tools/buildfeatures/pkg/orchestrator/chordcounter"
)

func TestTaskRegistryRegisterAndLookup(t *testing.T) {
	r := NewTaskRegistry()
	r.Register("fetch_page", func(ctx context.Context) (interface{}, error) { return 42, nil })

	fn, ok := r.lookup("fetch_page")
	if !ok {
		t.Fatal("expected fetch_page to be registered")
	}
	val, err := fn(context.Background())
	if err != nil || val != 42 {
		t.Errorf("fn() = (%v, %v), want (42, nil)", val, err)
	}

	if _, ok := r.lookup("never_registered"); ok {
		t.Error("expected lookup of unregistered task to fail")
	}
}

func TestWireTaskRoundTrip(t *testing.T) {
	wt := wireTask{GroupID: "g1", Index: 2, TaskName: "fetch_page"}
	data, err := json.Marshal(wt)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded wireTask
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !reflect.DeepEqual(decoded, wt) {
		t.Errorf("round-trip mismatch: got %+v, want %+v", decoded, wt)
	}
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rp := &redis.Pool{Dial: func() (redis.Conn, error) { return redis.Dial("tcp", mr.Addr()) }}
	t.Cleanup(func() { rp.Close() })

	return &Dispatcher{
		counter:  chordcounter.New(rp),
		registry: NewTaskRegistry(),
		pending:  make(map[string]*pendingGroup),
	}
}

func TestHandleResultFiresCallbackOnLastMember(t *testing.T) {
	d := newTestDispatcher(t)
	if err := d.counter.Init("group-1", 2); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	callbackCalls := 0
	var gotResults []orchestrator.TaskResult
	d.pending["group-1"] = &pendingGroup{
		results: make([]orchestrator.TaskResult, 2),
		callback: func(ctx context.Context, results []orchestrator.TaskResult) error {
			callbackCalls++
			gotResults = results
			return nil
		},
		total: 2,
	}

	d.handleResult(context.Background(), wireResult{GroupID: "group-1", Index: 0, Name: "a"})
	if callbackCalls != 0 {
		t.Fatal("callback should not fire until every member reports in")
	}

	d.handleResult(context.Background(), wireResult{GroupID: "group-1", Index: 1, Name: "b"})
	if callbackCalls != 1 {
		t.Fatalf("callback called %d times, want exactly 1", callbackCalls)
	}
	if len(gotResults) != 2 {
		t.Errorf("got %d results, want 2", len(gotResults))
	}

	if _, ok := d.pending["group-1"]; ok {
		t.Error("group should be removed from pending after finalization")
	}
}
