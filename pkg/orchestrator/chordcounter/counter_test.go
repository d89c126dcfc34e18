package chordcounter

import (
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gomodule/redigo/redis"
)

func newTestCounter(t *testing.T) *Counter {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rp := &redis.Pool{
		MaxIdle: 10,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", mr.Addr())
		},
	}
	t.Cleanup(func() { rp.Close() })
	return New(rp)
}

func TestDecrementReportsExactlyOneLast(t *testing.T) {
	c := newTestCounter(t)
	if err := c.Init("group-1", 10); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	lastCount := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			isLast, err := c.Decrement("group-1")
			if err != nil {
				t.Errorf("Decrement() error = %v", err)
				return
			}
			if isLast {
				mu.Lock()
				lastCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if lastCount != 1 {
		t.Errorf("exactly one Decrement call should report isLast=true, got %d", lastCount)
	}
}

func TestRemainingTracksCountdown(t *testing.T) {
	c := newTestCounter(t)
	if err := c.Init("group-2", 3); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if _, err := c.Decrement("group-2"); err != nil {
		t.Fatalf("Decrement() error = %v", err)
	}
	n, err := c.Remaining("group-2")
	if err != nil {
		t.Fatalf("Remaining() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Remaining() = %d, want 2", n)
	}
}

func TestRemainingOfUnknownGroupIsZero(t *testing.T) {
	c := newTestCounter(t)
	n, err := c.Remaining("never-existed")
	if err != nil {
		t.Fatalf("Remaining() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Remaining() = %d, want 0", n)
	}
}
