package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWaitUsesPerProviderOverride(t *testing.T) {
	limiters := New(1000, 1000)
	limiters.SetLimit("google", 1, 1)

	ctx := context.Background()

	if err := limiters.Wait(ctx, "google"); err != nil {
		t.Fatalf("first Wait should consume the initial burst token: %v", err)
	}

	ctx2, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()

	if err := limiters.Wait(ctx2, "google"); err == nil {
		t.Errorf("expected second Wait on a 1 rps limiter to block past a 10ms timeout")
	}
}

func TestWaitUsesDefaultForUnconfiguredProvider(t *testing.T) {
	limiters := New(1000, 1000)

	ctx := context.Background()
	if err := limiters.Wait(ctx, "msgraph"); err != nil {
		t.Fatalf("expected default limiter to allow the request: %v", err)
	}
}

func TestTransportBlocksSecondRequestPastBurst(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	limiters := New(1000, 1000)
	limiters.SetLimit("google", 1, 1)

	client := &http.Client{Transport: limiters.Transport("google", nil)}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("expected first request to succeed, got %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if _, err := client.Do(req); err == nil {
		t.Errorf("expected second request on a 1 rps limiter to be blocked past a 10ms timeout")
	}
}
