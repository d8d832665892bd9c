// Package httpclient sends JSON requests with retries on server errors.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	// ErrHTTPServerError is returned when the server keeps answering with a 5xx status.
	ErrHTTPServerError = errors.New("server error during HTTP request")
	// ErrHTTPClientError is returned for 4xx answers, which are not retried.
	ErrHTTPClientError = errors.New("client error during HTTP request")
)

// Retry configures how often a request is attempted and the wait between attempts.
type Retry struct {
	Attempts int
	Delay    time.Duration
}

// Client is a JSON HTTP client. Headers are added to every request.
type Client struct {
	http    *http.Client
	retry   Retry
	headers map[string]string
	logger  *slog.Logger
}

func New(timeout time.Duration, retry Retry, headers map[string]string, logger *slog.Logger) *Client {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}

	return &Client{
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		retry:   retry,
		headers: headers,
		logger:  logger.With("module", "http_client"),
	}
}

// StatusError carries the status and body of a failed response.
type StatusError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: status %d: %s", e.Err, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Do sends body encoded as JSON and decodes the response into out. A nil body sends no content
// and a nil out discards the response.
func (c *Client) Do(ctx context.Context, method, url string, body, out any) error {
	var payload []byte

	if body != nil {
		var err error

		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var lastErr error

	for attempt := 1; attempt <= c.retry.Attempts; attempt++ {
		if attempt > 1 {
			c.logger.InfoContext(ctx, "Retrying request", "attempt", attempt, "attempts", c.retry.Attempts, "url", url)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retry.Delay):
			}
		}

		respBody, err := c.send(ctx, method, url, payload)
		if err == nil {
			if out == nil || len(respBody) == 0 {
				return nil
			}

			err = json.Unmarshal(respBody, out)
			if err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}

			return nil
		}

		lastErr = err

		if errors.Is(err, ErrHTTPClientError) {
			break
		}
	}

	return fmt.Errorf("%s %s failed: %w", method, url, lastErr)
}

func (c *Client) send(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody), Err: ErrHTTPServerError}
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody), Err: ErrHTTPClientError}
	}

	return respBody, nil
}
