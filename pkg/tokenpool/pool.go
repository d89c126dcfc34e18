// Package tokenpool implements the distributed API-token pool from spec
// §4.2: a priority-ordered set of GitHub tokens shared across concurrent
// workers (possibly multiple processes), with atomic acquisition and
// cooldown after rate-limit responses.
//
// The acquire protocol is grounded on boskos/ranch/ranch.go's Acquire
// method — scan candidates ordered by priority, skip anything on cooldown,
// return the first eligible one, all under a single critical section — but
// the critical section is a Redis Lua script (EVAL) via
// github.com/gomodule/redigo instead of an in-process sync.Mutex, since the
// pool must be atomic across processes (spec §8, invariant 1).
package tokenpool

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/sirupsen/logrus"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/metrics"
)

// Keyspace, matching spec §6 exactly.
const (
	keyRaw            = "github_tokens:raw"
	keyPool           = "github_tokens:pool"
	keyCooldownPrefix = "github_tokens:cooldown:"
	keyStatsPrefix    = "github_tokens:stats:"
)

// secondaryCooldownFloor is the minimum secondary-rate-limit backoff,
// resolving the Open Question in spec §9.
const secondaryCooldownFloor = 60 * time.Second

// primaryCooldownGrace is added on top of the reported reset time when a
// token hits remaining=0, per spec §4.2's update protocol.
const primaryCooldownGrace = 5 * time.Second

// RedisConnGetter abstracts acquiring a pooled redis connection, satisfied
// by *redigo/redis.Pool.
type RedisConnGetter interface {
	Get() redis.Conn
}

// Pool is the redis-backed token pool.
type Pool struct {
	redis    RedisConnGetter
	provider string // label used on metrics, e.g. "github_actions"
}

// New constructs a Pool against the given redis connection pool.
func New(r RedisConnGetter, provider string) *Pool {
	return &Pool{redis: r, provider: provider}
}

// HashSecret computes the stable, non-reversible key a raw token secret is
// stored under.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Seed registers raw token secrets with the pool, assigning each an initial
// high priority so it is eligible for selection until its first real
// rate-limit observation narrows it. Safe to call repeatedly; re-seeding an
// already-known token is a no-op for its priority/cooldown state.
func (p *Pool) Seed(secrets []string) error {
	conn := p.redis.Get()
	defer conn.Close()

	for _, secret := range secrets {
		hash := HashSecret(secret)
		exists, err := redis.Bool(conn.Do("HEXISTS", keyRaw, hash))
		if err != nil {
			return fmt.Errorf("tokenpool: seed: %w", err)
		}
		if exists {
			continue
		}
		if _, err := conn.Do("HSET", keyRaw, hash, secret); err != nil {
			return fmt.Errorf("tokenpool: seed raw: %w", err)
		}
		// Assume full quota until the first response narrows it.
		const assumedFreshQuota = 5000
		if _, err := conn.Do("ZADD", keyPool, assumedFreshQuota, hash); err != nil {
			return fmt.Errorf("tokenpool: seed priority: %w", err)
		}
		if _, err := conn.Do("HSET", keyStatsPrefix+hash, "status", string(common.TokenActive), "requests", 0); err != nil {
			return fmt.Errorf("tokenpool: seed stats: %w", err)
		}
	}
	return nil
}

// acquireScript performs the full acquire protocol (§4.2 steps 1-4)
// atomically: it scans the priority set highest-first, skips anything
// still on cooldown while tracking the earliest reset, and returns the
// first eligible token hash — or, if none qualifies, an empty hash plus
// the earliest reset time across whatever was on cooldown.
const acquireScript = `
local poolKey = KEYS[1]
local cooldownPrefix = ARGV[1]
local statsPrefix = ARGV[2]
local now = tonumber(ARGV[3])

local members = redis.call('ZREVRANGE', poolKey, 0, -1)
local earliest = nil

for i, hash in ipairs(members) do
  local cdKey = cooldownPrefix .. hash
  local cd = redis.call('GET', cdKey)
  if cd then
    local cdNum = tonumber(cd)
    if cdNum > now then
      if earliest == nil or cdNum < earliest then
        earliest = cdNum
      end
    else
      redis.call('DEL', cdKey)
      redis.call('HINCRBY', statsPrefix .. hash, 'requests', 1)
      redis.call('HSET', statsPrefix .. hash, 'last_used_at', now)
      return {hash, '0', tostring(#members)}
    end
  else
    redis.call('HINCRBY', statsPrefix .. hash, 'requests', 1)
    redis.call('HSET', statsPrefix .. hash, 'last_used_at', now)
    return {hash, '0', tostring(#members)}
  end
end

if earliest == nil then
  earliest = 0
end
return {'', tostring(earliest), tostring(#members)}
`

// Acquire returns the highest-priority token not currently on cooldown. If
// the pool has no registered tokens it returns a PermanentError. If every
// token is on cooldown it returns a RateLimitedPrimaryError carrying the
// earliest reset time, per spec §4.2 and §8 scenario 3.
func (p *Pool) Acquire() (*common.Token, error) {
	conn := p.redis.Get()
	defer conn.Close()

	now := time.Now().Unix()
	reply, err := redis.Values(conn.Do("EVAL", acquireScript, 1, keyPool, keyCooldownPrefix, keyStatsPrefix, now))
	if err != nil {
		return nil, fmt.Errorf("tokenpool: acquire: %w", err)
	}
	if len(reply) != 3 {
		return nil, &common.FatalError{Reason: "tokenpool: unexpected acquire script reply shape"}
	}

	hash, _ := redis.String(reply[0], nil)
	earliestStr, _ := redis.String(reply[1], nil)
	totalStr, _ := redis.String(reply[2], nil)

	total, _ := strconv.Atoi(totalStr)
	if total == 0 {
		return nil, &common.PermanentError{Reason: "token pool has no registered tokens"}
	}

	if hash == "" {
		earliestUnix, _ := strconv.ParseInt(earliestStr, 10, 64)
		retryAt := time.Unix(earliestUnix, 0)
		metrics.TokensAllRateLimitedTotal.WithLabelValues(p.provider).Inc()
		return nil, &common.RateLimitedPrimaryError{RetryAt: retryAt}
	}

	secret, err := redis.String(conn.Do("HGET", keyRaw, hash))
	if err != nil {
		return nil, fmt.Errorf("tokenpool: acquire: raw secret lookup for %s: %w", hash, err)
	}

	stats, err := redis.StringMap(conn.Do("HGETALL", keyStatsPrefix+hash))
	if err != nil {
		return nil, fmt.Errorf("tokenpool: acquire: stats lookup for %s: %w", hash, err)
	}

	metrics.TokensAcquiredTotal.WithLabelValues(p.provider).Inc()

	tok := &common.Token{
		Hash:      hash,
		RawSecret: secret,
		Status:    common.TokenActive,
		LastUsed:  time.Now(),
	}
	if req, err := strconv.ParseInt(stats["requests"], 10, 64); err == nil {
		tok.Requests = req
	}
	return tok, nil
}

// UpdateFromResponse records the rate-limit headers observed after an API
// call made with the given token hash, per spec §4.2's update protocol.
func (p *Pool) UpdateFromResponse(hash string, remaining, limit int, resetAt time.Time) error {
	conn := p.redis.Get()
	defer conn.Close()

	if _, err := conn.Do("ZADD", keyPool, remaining, hash); err != nil {
		return fmt.Errorf("tokenpool: update priority: %w", err)
	}
	if _, err := conn.Do("HSET", keyStatsPrefix+hash,
		"remaining", remaining, "limit", limit, "reset_at", resetAt.Unix()); err != nil {
		return fmt.Errorf("tokenpool: update stats: %w", err)
	}

	if remaining == 0 {
		cooldownUntil := resetAt.Add(primaryCooldownGrace)
		if err := p.setCooldown(conn, hash, cooldownUntil); err != nil {
			return err
		}
		metrics.TokenCooldownSeconds.WithLabelValues("primary").Observe(time.Until(cooldownUntil).Seconds())
		if _, err := conn.Do("HSET", keyStatsPrefix+hash, "status", string(common.TokenRateLimited)); err != nil {
			return fmt.Errorf("tokenpool: update status: %w", err)
		}
	}
	return nil
}

// MarkSecondaryRateLimit applies an abuse-detection cooldown after a 403
// response whose body contains "secondary rate limit", enforcing the 60s
// floor resolved in spec §9.
func (p *Pool) MarkSecondaryRateLimit(hash string, retryAfter time.Duration) error {
	if retryAfter < secondaryCooldownFloor {
		retryAfter = secondaryCooldownFloor
	}
	conn := p.redis.Get()
	defer conn.Close()

	cooldownUntil := time.Now().Add(retryAfter)
	if err := p.setCooldown(conn, hash, cooldownUntil); err != nil {
		return err
	}
	metrics.TokenCooldownSeconds.WithLabelValues("secondary").Observe(retryAfter.Seconds())
	logrus.WithField("token_hash", hash).WithField("cooldown_until", cooldownUntil).
		Warn("tokenpool: secondary rate limit applied")
	return nil
}

// MarkInvalid removes a token from selection (401 Unauthorized) until an
// operator re-seeds or re-enables it.
func (p *Pool) MarkInvalid(hash string) error {
	conn := p.redis.Get()
	defer conn.Close()

	if _, err := conn.Do("ZREM", keyPool, hash); err != nil {
		return fmt.Errorf("tokenpool: mark invalid: %w", err)
	}
	if _, err := conn.Do("HSET", keyStatsPrefix+hash, "status", string(common.TokenInvalid)); err != nil {
		return fmt.Errorf("tokenpool: mark invalid status: %w", err)
	}
	return nil
}

func (p *Pool) setCooldown(conn redis.Conn, hash string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		ttl = time.Second
	}
	_, err := conn.Do("SET", keyCooldownPrefix+hash, until.Unix(), "PX", int64(ttl/time.Millisecond))
	if err != nil {
		return fmt.Errorf("tokenpool: set cooldown: %w", err)
	}
	return nil
}
