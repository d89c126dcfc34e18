package inprocpool

import (
	"context"
	"errors"
	"testing"

	"github.com/devci-tools/buildfeatures/pkg/orchestrator"
)

func TestChordRunsCallbackOnceWithAllResults(t *testing.T) {
	d := New(4)

	group := orchestrator.Group{
		Name: "fetch_page",
		Tasks: []orchestrator.Task{
			{Name: "page-1", Fn: func(ctx context.Context) (interface{}, error) { return 1, nil }},
			{Name: "page-2", Fn: func(ctx context.Context) (interface{}, error) { return nil, errors.New("boom") }},
			{Name: "page-3", Fn: func(ctx context.Context) (interface{}, error) { return 3, nil }},
		},
	}

	var gotResults []orchestrator.TaskResult
	callbackCalls := 0
	err := d.Chord(context.Background(), group, func(ctx context.Context, results []orchestrator.TaskResult) error {
		callbackCalls++
		gotResults = results
		return nil
	}, func(ctx context.Context, err error) {
		t.Errorf("errback should not be called: %v", err)
	})
	if err != nil {
		t.Fatalf("Chord() error = %v", err)
	}
	if callbackCalls != 1 {
		t.Fatalf("callback called %d times, want exactly 1", callbackCalls)
	}
	if len(gotResults) != 3 {
		t.Fatalf("got %d results, want 3", len(gotResults))
	}

	failures := 0
	for _, r := range gotResults {
		if r.Err != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("failures = %d, want 1 (callback must run even with a failed member)", failures)
	}
}

func TestChordErrbackOnPanic(t *testing.T) {
	d := New(2)
	group := orchestrator.Group{
		Name: "panicky",
		Tasks: []orchestrator.Task{
			{Name: "boom", Fn: func(ctx context.Context) (interface{}, error) { panic("nope") }},
		},
	}

	errbackCalled := false
	_ = d.Chord(context.Background(), group, func(ctx context.Context, results []orchestrator.TaskResult) error {
		t.Error("callback should not run after a panic")
		return nil
	}, func(ctx context.Context, err error) {
		errbackCalled = true
	})
	if !errbackCalled {
		t.Error("expected errback to be called after a panicking task")
	}
}

func TestChordErrbackOnCallbackError(t *testing.T) {
	d := New(1)
	group := orchestrator.Group{
		Tasks: []orchestrator.Task{
			{Name: "only", Fn: func(ctx context.Context) (interface{}, error) { return 1, nil }},
		},
	}

	errbackErr := error(nil)
	err := d.Chord(context.Background(), group, func(ctx context.Context, results []orchestrator.TaskResult) error {
		return errors.New("aggregate failed")
	}, func(ctx context.Context, err error) {
		errbackErr = err
	})
	if err == nil {
		t.Fatal("expected Chord to propagate the callback error")
	}
	if errbackErr == nil {
		t.Error("expected errback to receive the callback error")
	}
}
