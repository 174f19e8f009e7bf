package httpadapter

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/kirillkom/renewal-tracker/internal/config"
)

func listAs(handler http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/documents", nil)
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestRateLimitIsPerUser(t *testing.T) {
	handler := newTestHandler(config.Config{
		APIRateLimitRPS:   0.5,
		APIRateLimitBurst: 1,
	})

	if res := listAs(handler, "owner-1"); res.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res.Code)
	}
	limited := listAs(handler, "owner-1")
	if limited.Code != http.StatusTooManyRequests {
		t.Fatalf("second request from the same user expected 429, got %d", limited.Code)
	}
	retryAfter, err := strconv.Atoi(limited.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 || retryAfter > 2 {
		t.Fatalf("expected Retry-After of 1-2 seconds, got %q", limited.Header().Get("Retry-After"))
	}

	if res := listAs(handler, "owner-2"); res.Code != http.StatusOK {
		t.Fatalf("another user must have their own budget, got %d", res.Code)
	}
}

func TestRateLimitDisabledWithoutRPS(t *testing.T) {
	handler := newTestHandler(config.Config{})
	for i := 0; i < 5; i++ {
		if res := listAs(handler, "owner-1"); res.Code != http.StatusOK {
			t.Fatalf("request %d expected 200, got %d", i, res.Code)
		}
	}
}

func TestBackpressureRejectsWhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	slowUpload := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusAccepted)
	})
	handler := backpressureMiddleware(slowUpload, 1, 20*time.Millisecond)

	go func() {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/documents", nil))
		done <- res.Code
	}()
	<-started

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/documents", nil))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while saturated, got %d", res.Code)
	}
	if res.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After: 1, got %q", res.Header().Get("Retry-After"))
	}
	var body errorResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil || body.Error == "" {
		t.Fatalf("expected JSON error body, got %q (%v)", res.Body.String(), err)
	}

	close(release)
	select {
	case code := <-done:
		if code != http.StatusAccepted {
			t.Fatalf("in-flight upload expected 202, got %d", code)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the in-flight upload")
	}
}
