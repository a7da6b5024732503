package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClientRetriesRateLimitedUntilSuccess(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newHTTPClient(srv.URL, "key", 5*time.Second)
	c.maxRetries = 3

	var out struct {
		OK bool `json:"ok"`
	}
	err := c.do(context.Background(), "testprov", http.MethodGet, "/", nil, &out)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if !out.OK {
		t.Error("expected decoded response")
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts (2 failures + 1 success), got %d", calls)
	}
}

func TestHTTPClientStopsAtMaxRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newHTTPClient(srv.URL, "key", 5*time.Second)
	c.maxRetries = 2

	err := c.do(context.Background(), "testprov", http.MethodGet, "/", nil, nil)
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if CodeOf(err) != FailureRateLimited {
		t.Errorf("expected rate_limited failure code, got %v", CodeOf(err))
	}
	if calls != 3 {
		t.Errorf("expected maxRetries+1=3 attempts, got %d", calls)
	}
}

func TestHTTPClientDoesNotRetryNonRetryableFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newHTTPClient(srv.URL, "key", 5*time.Second)
	c.maxRetries = 3

	err := c.do(context.Background(), "testprov", http.MethodGet, "/", nil, nil)
	if err == nil {
		t.Fatal("expected failure")
	}
	if CodeOf(err) != FailureUnauthorized {
		t.Errorf("expected unauthorized failure code, got %v", CodeOf(err))
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 attempt for a non-retryable failure, got %d", calls)
	}
}
