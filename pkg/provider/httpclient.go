package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// defaultMaxRetries is the provider-specific cap (spec §4.1) on adapter-level
// retries for rate_limited/transient_network failures, applied before the
// error ever reaches the Coordinator.
const defaultMaxRetries = 3

// httpClient is the shared do()-style HTTP helper every concrete adapter
// builds on, following the teacher's client wrapper pattern: one request
// builder, one JSON-decoding response reader, uniform error classification.
type httpClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

func newHTTPClient(baseURL, apiKey string, timeout time.Duration) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: defaultMaxRetries,
	}
}

// do issues an HTTP request and decodes a JSON response into out, retrying
// with exponential backoff and jitter on rate_limited/transient_network
// failures up to maxRetries (spec §4.1). Any other failure code, including a
// retry attempt that still fails on the last try, is returned as-is.
func (c *httpClient) do(ctx context.Context, providerName, method, path string, body any, out any) error {
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond
			jitter := time.Duration(rand.Int63n(int64(backoff)))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return NewFailure(providerName, FailureTransientNetwork, ctx.Err())
			}
		}

		err = c.do1(ctx, providerName, method, path, body, out)
		if err == nil {
			return nil
		}

		code := CodeOf(err)
		if code != FailureRateLimited && code != FailureTransientNetwork {
			return err
		}
	}
	return err
}

// do1 issues a single HTTP request attempt and classifies the response
// status into the adapter FailureCode taxonomy so every concrete provider
// shares one mapping from transport outcome to cascade-level failure.
func (c *httpClient) do1(ctx context.Context, providerName, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return NewFailure(providerName, FailureInvalidResponse, fmt.Errorf("encoding request: %w", err))
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return NewFailure(providerName, FailureTransientNetwork, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return NewFailure(providerName, FailureTransientNetwork, ctx.Err())
		}
		return NewFailure(providerName, FailureTransientNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewFailure(providerName, FailureTransientNetwork, fmt.Errorf("reading response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewFailure(providerName, FailureRateLimited, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewFailure(providerName, FailureUnauthorized, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return NewFailure(providerName, FailureNotFound, nil)
	case resp.StatusCode == http.StatusPaymentRequired:
		return NewFailure(providerName, FailureQuotaExhausted, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return NewFailure(providerName, FailureTransientNetwork, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return NewFailure(providerName, FailureInvalidResponse, fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return NewFailure(providerName, FailureInvalidResponse, fmt.Errorf("decoding response: %w", err))
		}
	}
	return nil
}
