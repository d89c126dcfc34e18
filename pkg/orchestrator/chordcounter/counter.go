// Package chordcounter implements the distributed countdown counter a
// multi-process chord backend uses to know when every member of a group
// has reported its result: the group's counter is decremented once per
// member result received, and the caller whose decrement observes the
// counter reach zero is the one responsible for invoking the chord's
// callback.
//
// This mirrors how Celery's Redis chord backend detects group completion,
// and is implemented here as a single atomic Lua script (EVAL) via
// github.com/gomodule/redigo — the same atomicity pattern pkg/tokenpool
// uses for Acquire — rather than a read-then-write race.
package chordcounter

import (
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
)

const keyPrefix = "chord_counter:"

// ttl bounds how long an abandoned counter (group never finished,
// e.g. every worker crashed) lingers in Redis.
const ttl = 24 * time.Hour

// RedisConnGetter abstracts acquiring a pooled redis connection.
type RedisConnGetter interface {
	Get() redis.Conn
}

// Counter tracks in-flight members per chord group id.
type Counter struct {
	redis RedisConnGetter
}

func New(r RedisConnGetter) *Counter {
	return &Counter{redis: r}
}

// Init sets the group's countdown to n, the number of tasks in the group.
// Must be called once, before any worker starts processing the group's
// tasks, by whichever process dispatches the group.
func (c *Counter) Init(groupID string, n int) error {
	conn := c.redis.Get()
	defer conn.Close()

	key := keyPrefix + groupID
	if _, err := conn.Do("SET", key, n, "EX", int(ttl.Seconds())); err != nil {
		return fmt.Errorf("chordcounter: init: %w", err)
	}
	return nil
}

// decrScript atomically decrements the counter and reports whether this
// call was the one that brought it to zero — the only caller permitted to
// run the chord callback.
const decrScript = `
local v = redis.call('DECR', KEYS[1])
if v <= 0 then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`

// Decrement records one group member's completion. It returns true for
// exactly one caller — whichever decrement observes the counter reaching
// zero — which is the caller responsible for firing the chord callback.
func (c *Counter) Decrement(groupID string) (isLast bool, err error) {
	conn := c.redis.Get()
	defer conn.Close()

	key := keyPrefix + groupID
	reply, err := redis.Int(conn.Do("EVAL", decrScript, 1, key))
	if err != nil {
		return false, fmt.Errorf("chordcounter: decrement: %w", err)
	}
	return reply == 1, nil
}

// Remaining reports the current countdown value, for diagnostics; it is
// not safe to use as a substitute for Decrement's atomic zero-detection.
func (c *Counter) Remaining(groupID string) (int, error) {
	conn := c.redis.Get()
	defer conn.Close()

	n, err := redis.Int(conn.Do("GET", keyPrefix+groupID))
	if err != nil {
		if err == redis.ErrNil {
			return 0, nil
		}
		return 0, fmt.Errorf("chordcounter: remaining: %w", err)
	}
	return n, nil
}
