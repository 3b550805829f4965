// Package httpadapter issues bounded HTTP calls against the target API —
// health probes, admin limit-config reads/writes, and the rate_limit
// fault's paced flood.
package httpadapter

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/chaoslab/faultplane/internal/apierrors"
)

// Client wraps http.Client with the bounded-timeout and error-kind
// conventions every adapter call follows.
type Client struct {
	http *http.Client
}

// New builds a Client with the given per-call timeout.
func New(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Get issues a GET and returns the status code and body.
func (c *Client) Get(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, apierrors.InvalidParamsf("build request for %s", url).WithDetail(err.Error())
	}
	return c.do(req)
}

// Post issues a POST with the given body and content type.
func (c *Client) Post(ctx context.Context, url, contentType string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, apierrors.InvalidParamsf("build request for %s", url).WithDetail(err.Error())
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req)
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return 0, nil, apierrors.Timeoutf("request to %s", req.URL).WithDetail(err.Error())
		}
		return 0, nil, apierrors.AdapterErrorf("request to %s", req.URL).WithDetail(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, apierrors.AdapterErrorf("read response from %s", req.URL).WithDetail(err.Error())
	}
	return resp.StatusCode, body, nil
}

// FloodResult tallies the outcome of a paced burst of requests, used by
// the rate_limit fault to judge whether the target actually throttled.
type FloodResult struct {
	TwoXX       int
	RateLimited int
	Errors      int
}

// Flood issues total GET requests against url, paced at rps requests per
// second via a token-bucket limiter, classifying each response as 2xx,
// 429 (rate limited), or other/error.
func (c *Client) Flood(ctx context.Context, url string, total, rps int, perRequestTimeout time.Duration) (FloodResult, error) {
	if total <= 0 || rps <= 0 {
		return FloodResult{}, apierrors.InvalidParamsf("flood requires total>0 and rps>0")
	}

	limiter := rate.NewLimiter(rate.Limit(rps), maxBurst(rps))
	var result FloodResult

	for i := 0; i < total; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return result, apierrors.Cancelledf("flood interrupted after %d/%d requests", i, total)
		}

		reqCtx, cancel := context.WithTimeout(ctx, perRequestTimeout)
		status, _, err := c.Get(reqCtx, url)
		cancel()

		switch {
		case err != nil:
			result.Errors++
		case status == http.StatusTooManyRequests:
			result.RateLimited++
		case status >= 200 && status < 300:
			result.TwoXX++
		default:
			result.Errors++
		}
	}

	return result, nil
}

func maxBurst(rps int) int {
	if rps < 1 {
		return 1
	}
	return rps
}
