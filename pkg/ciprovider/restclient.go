package ciprovider

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

// NewRetryableClient builds a go-retryablehttp client with logging
// silenced (the pipeline's own logrus wraps call sites) and the default
// exponential backoff, shared by the REST-polling adapters (GitLab,
// Jenkins, CircleCI, Travis).
func NewRetryableClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.Logger = nil
	c.RetryMax = 3
	return c
}

// DoJSON issues an HTTP request and classifies the response per spec
// §4.1's failure rules: network/5xx become RetryableError, 401/403 become
// PermanentError, and everything else (404 included) returns the body and
// response with a nil error, leaving the caller to check resp.StatusCode
// for not-found and to decode the body.
func DoJSON(ctx context.Context, client *retryablehttp.Client, method, url string, headers map[string]string) ([]byte, *http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, nil, &common.PermanentError{Reason: fmt.Sprintf("building request: %v", err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, &common.RetryableError{Op: method + " " + url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp, &common.RetryableError{Op: "read_body", Err: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		return body, resp, nil
	}
	if resp.StatusCode >= 500 {
		return body, resp, &common.RetryableError{Op: method + " " + url, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return body, resp, &common.PermanentError{Reason: fmt.Sprintf("status %d from %s", resp.StatusCode, url)}
	}
	return body, resp, nil
}
