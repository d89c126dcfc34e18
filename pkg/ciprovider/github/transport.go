package github

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/devci-tools/buildfeatures/pkg/common"
	"github.com/devci-tools/buildfeatures/pkg/tokenpool"
)

// poolTransport is an http.RoundTripper that draws a token from the shared
// pool before every request and feeds the response's rate-limit headers
// back into it, replacing github-stats/fetcher/client.go's single
// static-token limitsCheckAndWait with the pool's per-request acquire.
type poolTransport struct {
	pool *tokenpool.Pool
	base http.RoundTripper
}

func newPoolTransport(pool *tokenpool.Pool) *poolTransport {
	return &poolTransport{pool: pool, base: http.DefaultTransport}
}

func (t *poolTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.pool.Acquire()
	if err != nil {
		return nil, err
	}

	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bearer "+tok.RawSecret)

	resp, err := t.base.RoundTrip(cloned)
	if err != nil {
		return nil, &common.RetryableError{Op: "github_request", Err: err}
	}

	t.applyRateLimitHeaders(tok.Hash, resp)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		_ = t.pool.MarkInvalid(tok.Hash)
		return resp, &common.PermanentError{Reason: fmt.Sprintf("token %s rejected as invalid (401)", tok.Hash)}
	case http.StatusForbidden:
		isSecondary, restored := peekSecondaryRateLimitBody(resp)
		resp.Body = restored
		if isSecondary {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			_ = t.pool.MarkSecondaryRateLimit(tok.Hash, retryAfter)
			return resp, &common.RateLimitedSecondaryError{RetryAt: time.Now().Add(retryAfter)}
		}
	}

	return resp, nil
}

func (t *poolTransport) applyRateLimitHeaders(hash string, resp *http.Response) {
	remaining, rok := parseIntHeader(resp.Header, "X-RateLimit-Remaining")
	limit, lok := parseIntHeader(resp.Header, "X-RateLimit-Limit")
	resetEpoch, sok := parseIntHeader(resp.Header, "X-RateLimit-Reset")
	if !rok || !lok || !sok {
		return
	}
	_ = t.pool.UpdateFromResponse(hash, remaining, limit, time.Unix(int64(resetEpoch), 0))
}

func parseIntHeader(h http.Header, key string) (int, bool) {
	v := h.Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// peekSecondaryRateLimitBody reads the response body looking for the
// phrase GitHub's abuse-detection mechanism uses on 403s, per spec §4.2's
// update protocol, and returns a fresh reader so downstream JSON decoding
// of the (small) error envelope still works.
func peekSecondaryRateLimitBody(resp *http.Response) (bool, io.ReadCloser) {
	if resp.Body == nil {
		return false, http.NoBody
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return false, io.NopCloser(bytes.NewReader(nil))
	}
	isSecondary := strings.Contains(strings.ToLower(string(body)), "secondary rate limit")
	return isSecondary, io.NopCloser(bytes.NewReader(body))
}
