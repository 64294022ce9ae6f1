// Package httpclient provides the pre-configured HTTP client every source
// adapter fetches through, plus the shared retry policy.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBodyBytes bounds how much of an error response is kept for logs.
const maxErrorBodyBytes = 2048

// StatusError is a non-2xx response mapped to an error by the response hook.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d from %s", e.StatusCode, e.URL)
}

// Retryable reports whether the status is worth retrying on its own.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPStatus exposes the code for policy extra-status matching.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// Response is a fully drained HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Options configure a Client produced by New.
type Options struct {
	// Timeout is the total per-request timeout. Zero means 30s.
	Timeout time.Duration
	// Headers are set on every outgoing request.
	Headers map[string]string
	// Cookies are attached to every outgoing request.
	Cookies []*http.Cookie
	// Policy is the retry policy applied around every request.
	Policy Policy
}

// Client wraps http.Client with default headers, cookie injection, a
// raise-on-non-2xx hook and retries. Safe for concurrent use; concurrency is
// bounded by the callers' errgroups.
type Client struct {
	hc      *http.Client
	headers map[string]string
	cookies []*http.Cookie
	policy  Policy
}

// New returns a client with HTTP/2 enabled and the given defaults applied.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		hc:      &http.Client{Timeout: timeout, Transport: transport},
		headers: opts.Headers,
		cookies: opts.Cookies,
		policy:  opts.Policy.Normalize(),
	}
}

// Do performs one request under the retry policy. The request body is rebuilt
// per attempt from body, so retries never reuse a consumed reader.
func (c *Client) Do(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	var out *Response
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}
		for k, vs := range header {
			req.Header.Del(k)
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		for _, ck := range c.cookies {
			req.AddCookie(ck)
		}
		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &StatusError{
				StatusCode: resp.StatusCode,
				URL:        url,
				Body:       snippet(data, maxErrorBodyBytes),
			}
		}
		out = &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
		return nil
	}
	if err := Retry(ctx, c.policy, op); err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches url and returns the response body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GetJSON fetches url and decodes the JSON response into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	data, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// PostJSON sends in as a JSON body and decodes the response into out when out
// is non-nil.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	if header == nil {
		header = http.Header{}
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(ctx, http.MethodPost, url, header, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Body, out)
}

func snippet(data []byte, n int) string {
	s := string(data)
	if len(s) > n {
		s = s[:n]
	}
	return strings.ToValidUTF8(s, "")
}
