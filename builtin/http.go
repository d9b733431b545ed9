package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Swind/go-task-port/core"
)

// Expect selects how the response body is returned.
type Expect string

const (
	ExpectString   Expect = "STRING"
	ExpectJSON     Expect = "JSON"
	ExpectWhatever Expect = "WHATEVER"
)

// Reasons reported inside an HTTPError value.
const (
	ReasonBadURL       = "BAD_URL"
	ReasonNetworkError = "NETWORK_ERROR"
	ReasonTimeout      = "TIMEOUT"
	ReasonBadBody      = "BAD_BODY"
)

// HTTPRequest is the argument of builtin:http.
type HTTPRequest struct {
	URL     string      `json:"url"`
	Method  string      `json:"method"`
	Headers [][2]string `json:"headers"`
	Expect  Expect      `json:"expect"`
	// Timeout in milliseconds. Nil or zero falls back to the adapter default.
	Timeout *int64 `json:"timeout"`
	// Body is sent as-is when it is a string and JSON-encoded otherwise.
	Body any `json:"body"`
}

// HTTPResponse is returned for every response, whatever its status code.
type HTTPResponse struct {
	URL        string            `json:"url"`
	Headers    map[string]string `json:"headers"`
	StatusCode int               `json:"statusCode"`
	StatusText string            `json:"statusText"`
	Body       *string           `json:"body"`
}

// HTTPError is returned as the task value when the request could not
// complete. It is a domain result, not an execution failure.
type HTTPError struct {
	Error HTTPErrorDetail `json:"error"`
}

type HTTPErrorDetail struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func httpError(reason string, err error) HTTPError {
	return HTTPError{Error: HTTPErrorDetail{Reason: reason, Message: err.Error()}}
}

type httpAdapter struct {
	cfg *config
}

func newHTTPAdapter(cfg *config) *httpAdapter {
	return &httpAdapter{cfg: cfg}
}

// Do performs req and returns an HTTPResponse or an HTTPError. A non-nil
// error is only returned when the runner context ends first.
func (a *httpAdapter) Do(ctx context.Context, req HTTPRequest) (any, error) {
	target, err := parseURL(req.URL)
	if err != nil {
		return httpError(ReasonBadURL, err), nil
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return httpError(ReasonBadBody, err), nil
	}

	reqCtx, cancel := a.withTimeout(ctx, req.Timeout)
	defer cancel()

	if a.cfg.limiter != nil {
		// Wait fails early when the deadline would pass before a token frees up.
		if err := a.cfg.limiter.Wait(reqCtx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return httpError(ReasonTimeout, err), nil
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, method, target.String(), body)
	if err != nil {
		return httpError(ReasonBadURL, err), nil
	}
	for _, h := range req.Headers {
		httpReq.Header.Add(h[0], h[1])
	}

	a.cfg.logger.Debug("http request", core.F("method", method), core.F("url", target.String()))

	resp, err := a.cfg.client.Do(httpReq)
	if err != nil {
		return a.transportError(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	out := HTTPResponse{
		URL:        resp.Request.URL.String(),
		Headers:    flattenHeaders(resp.Header),
		StatusCode: resp.StatusCode,
		StatusText: statusText(resp),
	}

	if req.Expect == ExpectWhatever {
		return out, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return a.transportError(ctx, reqCtx, err)
	}
	if len(data) > 0 {
		text := string(data)
		out.Body = &text
	}
	return out, nil
}

func (a *httpAdapter) withTimeout(ctx context.Context, timeoutMs *int64) (context.Context, context.CancelFunc) {
	timeout := a.cfg.defaultTimeout
	if timeoutMs != nil && *timeoutMs > 0 {
		timeout = time.Duration(*timeoutMs) * time.Millisecond
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// transportError maps a failed request to a domain error. Only cancellation
// of the runner context escapes as an execution failure.
func (a *httpAdapter) transportError(parent, reqCtx context.Context, err error) (any, error) {
	if parent.Err() != nil {
		return nil, parent.Err()
	}
	a.cfg.logger.Debug("http request failed", core.F("error", err.Error()))

	if reqCtx.Err() != nil || isTimeout(err) {
		return httpError(ReasonTimeout, err), nil
	}
	return httpError(ReasonNetworkError, err), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url %q", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}
	return u, nil
}

func encodeBody(body any) (io.Reader, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return strings.NewReader(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		return strings.NewReader(string(data)), nil
	}
}

// flattenHeaders lower-cases names and joins repeated values with ", ".
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		out[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return out
}

func statusText(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); ok {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
