// Package httpclient defines the HTTP client contract the plan execution
// engine issues requests through, plus a real net/http-backed
// implementation.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request describes one outgoing HTTP call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
	Timeout time.Duration
}

// Response is what a Client returns for a completed HTTP round trip. Data
// holds the parsed body: if the raw body is valid JSON it is decoded into
// a generic any (map/slice/scalar); otherwise Data holds the raw string.
type Response struct {
	Status     int
	StatusText string
	Headers    map[string]string
	Data       any
}

// Client is the collaborator the engine depends on for HTTP requests.
// The default implementation wraps net/http.Client; tests use StubClient.
type Client interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// HTTPClient is the production Client backed by net/http.
type HTTPClient struct {
	httpClient *http.Client
}

// New returns an HTTPClient. Per-request timeouts are applied via
// context, so the underlying http.Client carries no default timeout.
func New() *HTTPClient {
	return &HTTPClient{httpClient: &http.Client{}}
}

// Do issues the request, applying req.Timeout (defaulting to 30s) as a
// context deadline.
func (c *HTTPClient) Do(ctx context.Context, req Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("httpclient: building request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: reading response body: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &Response{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    headers,
		Data:       decodeBody(raw),
	}, nil
}

// decodeBody attempts a JSON decode; non-JSON bodies pass through as a
// raw string, matching the engine's "if response body is a string,
// JSON-parse it; otherwise pass through" rule applied at the transport
// boundary.
func decodeBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
