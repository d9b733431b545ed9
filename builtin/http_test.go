package builtin

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func doHTTP(t *testing.T, args any, opts ...Option) any {
	t.Helper()
	return call(t, Defaults(opts...), HTTP, args)
}

func expectHTTPError(t *testing.T, got any, reason string) {
	t.Helper()
	e, ok := got.(HTTPError)
	if !ok {
		t.Fatalf("result = %#v, want HTTPError", got)
	}
	if e.Error.Reason != reason {
		t.Fatalf("reason = %s (%s), want %s", e.Error.Reason, e.Error.Message, reason)
	}
	if e.Error.Message == "" {
		t.Error("empty error message")
	}
}

// TestHTTP_Success tests a round trip against a local server
// Main test items:
// 1. Method, headers and body reach the server
// 2. Response carries status, lower-cased headers and the text body
func TestHTTP_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Method != http.MethodPost || r.Header.Get("X-Token") != "abc" || string(body) != `{"n":1}` {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("X-Reply", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	got := doHTTP(t, map[string]any{
		"url":     srv.URL + "/items",
		"method":  "POST",
		"headers": [][]string{{"X-Token", "abc"}},
		"expect":  "JSON",
		"timeout": nil,
		"body":    map[string]any{"n": 1},
	})

	resp, ok := got.(HTTPResponse)
	if !ok {
		t.Fatalf("result = %#v, want HTTPResponse", got)
	}
	if resp.StatusCode != http.StatusCreated || resp.StatusText != "Created" {
		t.Errorf("status = %d %q", resp.StatusCode, resp.StatusText)
	}
	if resp.Headers["x-reply"] != "yes" {
		t.Errorf("headers = %v", resp.Headers)
	}
	if resp.Body == nil || *resp.Body != `{"ok":true}` {
		t.Errorf("body = %v", resp.Body)
	}
	if resp.URL != srv.URL+"/items" {
		t.Errorf("url = %s", resp.URL)
	}
}

// TestHTTP_ErrorStatusIsAResponse tests that HTTP error codes are not failures
// Main test items:
// 1. A 404 is returned as an HTTPResponse
// 2. WHATEVER drops the body and an empty body is null
func TestHTTP_ErrorStatusIsAResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	resp := doHTTP(t, HTTPRequest{URL: srv.URL + "/missing", Expect: ExpectWhatever}).(HTTPResponse)
	if resp.StatusCode != http.StatusNotFound || resp.Body != nil {
		t.Errorf("resp = %+v", resp)
	}

	resp = doHTTP(t, HTTPRequest{URL: srv.URL + "/empty", Expect: ExpectString}).(HTTPResponse)
	if resp.StatusCode != http.StatusOK || resp.Body != nil {
		t.Errorf("empty resp = %+v", resp)
	}
}

// TestHTTP_NetworkError tests a request to a closed server
func TestHTTP_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	got := doHTTP(t, HTTPRequest{URL: addr, Method: "GET", Expect: ExpectString})
	expectHTTPError(t, got, ReasonNetworkError)
}

// TestHTTP_BadURL tests URL validation
func TestHTTP_BadURL(t *testing.T) {
	for _, raw := range []string{"not a url", "ftp://example.com", "http://", "://x"} {
		expectHTTPError(t, doHTTP(t, HTTPRequest{URL: raw}), ReasonBadURL)
	}
}

// TestHTTP_Timeout tests the per-request and default timeouts
// Main test items:
// 1. A request timeout shorter than the handler yields TIMEOUT
// 2. The default timeout applies when the request has none
func TestHTTP_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	timeout := int64(20)
	expectHTTPError(t, doHTTP(t, HTTPRequest{URL: srv.URL, Timeout: &timeout}), ReasonTimeout)
	expectHTTPError(t, doHTTP(t, HTTPRequest{URL: srv.URL}, WithDefaultHTTPTimeout(20*time.Millisecond)), ReasonTimeout)
}

// TestHTTP_RateLimitCountsAgainstTimeout tests limiter waits
func TestHTTP_RateLimitCountsAgainstTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	impls := Defaults(WithRateLimit(rate.Every(time.Hour), 1))
	timeout := int64(20)
	req := HTTPRequest{URL: srv.URL, Timeout: &timeout}

	if _, ok := call(t, impls, HTTP, req).(HTTPResponse); !ok {
		t.Fatal("first request should use the burst token")
	}
	expectHTTPError(t, call(t, impls, HTTP, req), ReasonTimeout)
}

// TestHTTP_RunnerCancellation tests that runner shutdown is an execution failure
func TestHTTP_RunnerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Defaults()[HTTP].Invoke(ctx, HTTPRequest{URL: srv.URL}); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
