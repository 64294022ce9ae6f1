// Package scrapfly adapts the anti-bot scraping gateway. The gateway always
// answers 200 and encodes the real outcome in a JSON envelope; this package
// normalizes that envelope into the pipeline's fault model.
package scrapfly

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/fairyhunter13/jobfeed/internal/adapter/httpclient"
	"github.com/fairyhunter13/jobfeed/internal/domain"
)

const defaultGatewayURL = "https://api.scrapfly.io/scrape"

// Error is a failed envelope carrying the upstream outcome.
type Error struct {
	StatusCode  int
	URL         string
	Message     string
	IsRetryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("scrapfly: upstream status %d for %s: %s", e.StatusCode, e.URL, e.Message)
}

// Retryable feeds the retry policy from the gateway's own flag.
func (e *Error) Retryable() bool { return e.IsRetryable }

// HTTPStatus exposes the upstream status for policy extra-status matching.
func (e *Error) HTTPStatus() int { return e.StatusCode }

// Is maps envelope faults onto the domain taxonomy: 410 is a retired listing,
// 403/422 are anti-bot denials.
func (e *Error) Is(target error) bool {
	switch target {
	case domain.ErrListingGone:
		return e.StatusCode == http.StatusGone
	case domain.ErrUpstreamBlocked:
		return e.StatusCode == http.StatusForbidden ||
			e.StatusCode == http.StatusUnprocessableEntity ||
			e.StatusCode == http.StatusGone
	}
	return false
}

// Result is a successful envelope.
type Result struct {
	Content         string
	StatusCode      int
	URL             string
	ResponseHeaders map[string]string
}

type envelope struct {
	Result struct {
		Success         bool              `json:"success"`
		StatusCode      int               `json:"status_code"`
		Content         string            `json:"content"`
		URL             string            `json:"url"`
		ResponseHeaders map[string]string `json:"response_headers"`
		Error           *struct {
			Message   string `json:"message"`
			Retryable bool   `json:"retryable"`
		} `json:"error"`
	} `json:"result"`
}

// Client fetches pages through the gateway.
type Client struct {
	hc      *httpclient.Client
	gateway string
	apiKey  string
	asp     bool
	policy  httpclient.Policy
}

// New builds a gateway client. With asp enabled the gateway renders the page
// through its anti-bot pipeline, which needs the much larger timeout. An empty
// baseURL means the public endpoint.
func New(apiKey, baseURL string, timeout time.Duration, asp bool, policy httpclient.Policy) *Client {
	if baseURL == "" {
		baseURL = defaultGatewayURL
	}
	if timeout <= 0 {
		if asp {
			timeout = 500 * time.Second
		} else {
			timeout = 30 * time.Second
		}
	}
	return &Client{
		// The transport client never retries; envelope faults drive the
		// retry loop so the upstream retryable flag is honored.
		hc:      httpclient.New(httpclient.Options{Timeout: timeout, Policy: httpclient.Policy{MaxAttempts: 1}}),
		gateway: baseURL,
		apiKey:  apiKey,
		asp:     asp,
		policy:  policy,
	}
}

// Request describes an upstream fetch made through the gateway. Headers and
// cookies are forwarded through headers[...] query parameters; a non-nil
// Body turns the upstream request into a POST carrying it.
type Request struct {
	URL     string
	Headers map[string]string
	Cookies map[string]string
	Body    []byte
}

// Fetch retrieves target through the gateway and returns the decoded result.
func (c *Client) Fetch(ctx context.Context, target string) (*Result, error) {
	return c.Do(ctx, Request{URL: target})
}

// Do performs one upstream request through the gateway. Envelope faults with
// the retryable flag set are retried under the policy.
func (c *Client) Do(ctx context.Context, req Request) (*Result, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: SCRAPFLY_API_KEY missing", domain.ErrConfiguration)
	}
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("url", req.URL)
	if c.asp {
		q.Set("asp", "true")
		q.Set("render_js", "true")
	}
	for name, value := range req.Headers {
		q.Set(fmt.Sprintf("headers[%s]", strings.ToLower(name)), value)
	}
	if len(req.Cookies) > 0 {
		pairs := make([]string, 0, len(req.Cookies))
		for name, value := range req.Cookies {
			pairs = append(pairs, name+"="+value)
		}
		sort.Strings(pairs)
		q.Set("headers[cookie]", strings.Join(pairs, "; "))
	}
	requestURL := c.gateway + "?" + q.Encode()
	method := http.MethodGet
	if req.Body != nil {
		method = http.MethodPost
	}

	var res *Result
	op := func() error {
		resp, err := c.hc.Do(ctx, method, requestURL, nil, req.Body)
		if err != nil {
			return err
		}
		var env envelope
		if err := json.Unmarshal(resp.Body, &env); err != nil {
			return fmt.Errorf("%w: scrapfly envelope: %v", domain.ErrSchemaMismatch, err)
		}
		if !env.Result.Success {
			fault := &Error{
				StatusCode: env.Result.StatusCode,
				URL:        env.Result.URL,
			}
			if fault.URL == "" {
				fault.URL = req.URL
			}
			if env.Result.Error != nil {
				fault.Message = env.Result.Error.Message
				fault.IsRetryable = env.Result.Error.Retryable
			}
			return fault
		}
		res = &Result{
			Content:         env.Result.Content,
			StatusCode:      env.Result.StatusCode,
			URL:             env.Result.URL,
			ResponseHeaders: env.Result.ResponseHeaders,
		}
		return nil
	}
	if err := httpclient.Retry(ctx, c.policy, op); err != nil {
		return nil, err
	}
	return res, nil
}
