// Package fetch acquires remote artifacts into bytes with bounded retry.
//
// Transient network failures are retried with exponential backoff; definite
// HTTP status errors (4xx/5xx) surface immediately as ExternalServiceError.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults for the retry policy.
const (
	DefaultMaxRetries   = 3
	DefaultFetchTimeout = 10 * time.Second
	backoffFloor        = 2 * time.Second
	backoffCeiling      = 10 * time.Second
)

// ExternalServiceError reports a failed remote fetch or third-party call.
// It carries the service identifier and the wrapped underlying error.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Fetcher downloads artifacts over HTTP with per-attempt timeouts and a
// bounded exponential retry schedule.
type Fetcher struct {
	client     *http.Client
	maxRetries int
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher. Non-positive arguments select the defaults
// (3 attempts, 10s per-attempt timeout).
func NewFetcher(timeout time.Duration, maxRetries int) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Fetcher{
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		logger:     slog.Default(),
	}
}

// Fetch downloads the artifact at rawURL. At most maxRetries attempts are
// made, waiting exponentially between retries with a 2s floor and 10s
// ceiling. 4xx/5xx responses are not retried.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	attempt := 0

	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(&ExternalServiceError{Service: rawURL, Err: err})
		}

		resp, err := f.client.Do(req)
		if err != nil {
			// Timeout or connection reset: transient, retry.
			f.logger.Warn("Artifact fetch attempt failed", "url", rawURL, "attempt", attempt, "error", err)
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return backoff.Permanent(&ExternalServiceError{
				Service: rawURL,
				Err:     fmt.Errorf("HTTP %d", resp.StatusCode),
			})
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			f.logger.Warn("Artifact body read failed", "url", rawURL, "attempt", attempt, "error", err)
			return err
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = backoffFloor
	policy.MaxInterval = backoffCeiling

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(f.maxRetries-1)), ctx))
	if err != nil {
		var extErr *ExternalServiceError
		if errors.As(err, &extErr) {
			return nil, extErr
		}
		return nil, &ExternalServiceError{Service: rawURL, Err: err}
	}
	return body, nil
}
