package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/RyanBlaney/sonido-critique/logging"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultMaxRetries = 3
	defaultBackoff    = 500 * time.Millisecond
)

// RetryConfig controls how failed requests are retried
type RetryConfig struct {
	MaxRetries  int           `json:"max_retries"`
	BaseBackoff time.Duration `json:"base_backoff"`
}

// fetcher performs rate-limited GET requests with retries and JSON decoding
type fetcher struct {
	name       string
	httpClient *http.Client
	limiter    *RateLimiter
	retry      RetryConfig
	logger     logging.Logger
}

func newFetcher(name string, httpClient *http.Client, limiter *RateLimiter, retry RetryConfig) *fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if retry.MaxRetries <= 0 {
		retry.MaxRetries = defaultMaxRetries
	}
	if retry.BaseBackoff <= 0 {
		retry.BaseBackoff = defaultBackoff
	}
	return &fetcher{
		name:       name,
		httpClient: httpClient,
		limiter:    limiter,
		retry:      retry,
		logger: logging.WithFields(logging.Fields{
			"component": "harvest_client",
			"source":    name,
		}),
	}
}

// getJSON decodes a 200 response into v. A 404 maps to ErrNotFound.
func (f *fetcher) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", f.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.doWithRetry(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", f.name, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s: unexpected status %d", f.name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", f.name, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%s: decode response: %w", f.name, err)
	}
	return nil
}

func (f *fetcher) doWithRetry(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	maxRetries := f.retry.MaxRetries

	for attempt := range maxRetries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: request canceled: %w", f.name, err)
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%s: rate limiter: %w", f.name, err)
			}
		}

		resp, err := f.httpClient.Do(req)
		retryAfter, retry := shouldRetry(resp, err)
		if !retry {
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.name, err)
			}
			return resp, nil
		}

		fields := logging.Fields{"attempt": attempt + 1, "max_retries": maxRetries, "url": req.URL.Redacted()}
		if err != nil {
			fields["error"] = err.Error()
		} else {
			fields["status"] = resp.StatusCode
			resp.Body.Close()
		}
		f.logger.Warn("Retrying request", fields)

		if attempt == maxRetries-1 {
			if err != nil {
				return nil, fmt.Errorf("%s: request failed after %d attempts: %w", f.name, maxRetries, err)
			}
			return nil, fmt.Errorf("%s: request failed after %d attempts: status %d", f.name, maxRetries, resp.StatusCode)
		}

		backoff := f.retry.BaseBackoff * time.Duration(1<<attempt)
		if retryAfter > 0 {
			backoff = retryAfter
		}
		if err := sleepWithContext(ctx, backoff); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
	}

	return nil, fmt.Errorf("%s: request failed after %d attempts", f.name, maxRetries)
}

func shouldRetry(resp *http.Response, err error) (time.Duration, bool) {
	if err != nil {
		// a canceled or expired context is final
		return 0, !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return 0, false
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return parseRetryAfter(resp), true
	}
	return 0, false
}

func parseRetryAfter(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(retryAfter); err == nil {
		if until := time.Until(when); until > 0 {
			return until
		}
	}
	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
