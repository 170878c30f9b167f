package httpclient

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

func TestNewRetryingRetriesServerErrorsOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewRetrying(RetryOptions{
		AttemptTimeout: time.Second,
		RetryMax:       1,
		RetryWaitMin:   time.Millisecond,
		RetryWaitMax:   time.Millisecond,
	})

	req, err := retryablehttp.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestNewRetryingStopsAfterRetryMax(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewRetrying(RetryOptions{
		AttemptTimeout: time.Second,
		RetryMax:       1,
		RetryWaitMin:   time.Millisecond,
		RetryWaitMax:   time.Millisecond,
	})

	req, _ := retryablehttp.NewRequest(http.MethodGet, srv.URL, nil)
	if _, err := client.Do(req); err == nil {
		t.Fatalf("expected error after exhausted retries")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}
