package bulkclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bulk-data-tools/bulk-export-contract-tests/config"
	"github.com/bulk-data-tools/bulk-export-contract-tests/framework"

	"golang.org/x/oauth2"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const maxLoggedBody = 2000

// Client is a session with the server under test. It remembers the access token and the
// last kick-off and status responses, so that later operations can build on earlier ones.
// A Client is meant to be owned by a single test; it is not safe for concurrent use.
type Client struct {
	config     *config.NormalizedConfig
	httpClient *http.Client
	logger     framework.Logger
	sleep      Sleeper
	now        func() time.Time

	token         *oauth2.Token
	kickOffResult *Result
	statusResult  *Result

	capabilityOnce   sync.Once
	capability       ldvalue.Value
	capabilityResult *Result
	capabilityErr    error
}

// Sleeper waits for the given duration or until the context is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client built from the configuration.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSleeper replaces the function used to wait between status polls.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// WithClock replaces the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Client. The logger is normally the console log of the test that owns the
// client; every request and response is written to it.
func New(cfg *config.NormalizedConfig, logger framework.Logger, options ...Option) *Client {
	if logger == nil {
		logger = framework.NullLogger()
	}
	c := &Client{
		config: cfg,
		logger: logger,
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, o := range options {
		o(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: cfg.RequestTimeout(),
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec
			},
		}
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Config returns the configuration the client was created with.
func (c *Client) Config() *config.NormalizedConfig { return c.config }

// RequestOptions describes one HTTP request.
type RequestOptions struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// SkipAuth suppresses the Authorization header.
	SkipAuth bool

	// FollowRedirects allows the HTTP client to follow 3xx responses.
	FollowRedirects bool

	// Label is prefixed to log lines for this request.
	Label string

	retried bool
}

// Result is the outcome of one operation. Err is set only for transport failures and for
// responses with a status of 400 or more; every other outcome is left for the caller to
// judge.
type Result struct {
	Request  *http.Request
	Response *http.Response
	Options  RequestOptions

	// Body is the parsed response body if it was JSON, or ldvalue.Null() otherwise.
	Body    ldvalue.Value
	RawBody []byte
	Err     error

	// Hints are remediation suggestions derived from the configuration when the server
	// rejected a request.
	Hints []string
}

// StatusCode returns the response status, or 0 if no response was received.
func (r *Result) StatusCode() int {
	if r == nil || r.Response == nil {
		return 0
	}
	return r.Response.StatusCode
}

// Header returns a response header, or "" if no response was received.
func (r *Result) Header(name string) string {
	if r == nil || r.Response == nil {
		return ""
	}
	return r.Response.Header.Get(name)
}

// Request sends a request. Unless opts.SkipAuth is set, the target is the token endpoint,
// or authentication is "none", it carries a bearer token, obtained on first use. If such a
// request is answered with 401, the cached token is dropped and the request is repeated
// exactly once with a fresh token.
//
// The returned error is non-nil only if the request could not be constructed.
func (c *Client) Request(ctx context.Context, opts RequestOptions) (*Result, error) {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	header := make(http.Header)
	for k, v := range c.config.CustomHeaders {
		header.Set(k, v)
	}
	for k, vs := range opts.Header {
		header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}

	bearer := c.shouldAuthorize(opts)
	if bearer {
		token, err := c.AccessToken(ctx)
		if err != nil {
			c.labeled(opts.Label).Printf("authorization failed: %s", err)
			return &Result{Options: opts, Body: ldvalue.Null(), Err: fmt.Errorf("authorization failed: %w", err)}, nil
		}
		header.Set("Authorization", "Bearer "+token)
	}

	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, opts.URL, body)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	req.Header = header

	hc := *c.httpClient
	if !opts.FollowRedirects {
		hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	}

	c.logRequest(opts, req)
	result := &Result{Request: req, Options: opts, Body: ldvalue.Null()}
	resp, err := hc.Do(req)
	if err != nil {
		c.labeled(opts.Label).Printf("request failed: %s", err)
		result.Err = err
		return result, nil
	}
	result.Response = resp
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	result.RawBody = data
	if err != nil {
		result.Err = fmt.Errorf("error reading response body: %w", err)
	} else if isJSON(resp.Header.Get("Content-Type")) && len(data) > 0 {
		result.Body = ldvalue.Parse(data)
	}
	c.logResponse(opts, resp, data)

	if result.Err == nil && resp.StatusCode >= 400 {
		result.Err = newHTTPError(result)
	}

	if bearer && resp.StatusCode == http.StatusUnauthorized && !opts.retried {
		c.labeled(opts.Label).Printf("got 401; discarding the access token and retrying once")
		c.InvalidateToken()
		opts.retried = true
		return c.Request(ctx, opts)
	}
	return result, nil
}

func (c *Client) shouldAuthorize(opts RequestOptions) bool {
	a := c.config.Authentication
	if opts.SkipAuth || a.Type == config.AuthNone || a.Type == "" {
		return false
	}
	return !sameURL(opts.URL, a.TokenEndpoint)
}

func sameURL(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "json") && !strings.Contains(ct, "ndjson")
}

func (c *Client) labeled(label string) framework.Logger {
	if label == "" {
		return c.logger
	}
	return framework.LoggerWithPrefix(c.logger, label+": ")
}

func (c *Client) logRequest(opts RequestOptions, req *http.Request) {
	logger := c.labeled(opts.Label)
	logger.Printf(">> %s %s", req.Method, req.URL)
	for _, line := range headerLines(req.Header) {
		logger.Printf(">>   %s", line)
	}
	if len(opts.Body) > 0 {
		logger.Printf(">>   body: %s", truncate(opts.Body))
	}
}

func (c *Client) logResponse(opts RequestOptions, resp *http.Response, body []byte) {
	logger := c.labeled(opts.Label)
	logger.Printf("<< %s", resp.Status)
	for _, line := range headerLines(resp.Header) {
		logger.Printf("<<   %s", line)
	}
	if len(body) > 0 {
		logger.Printf("<<   body: %s", truncate(body))
	}
}

func headerLines(h http.Header) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	var ret []string
	for _, name := range names {
		for _, v := range h[name] {
			if name == "Authorization" {
				if i := strings.Index(v, " "); i > 0 {
					v = v[:i] + " ***"
				} else {
					v = "***"
				}
			}
			ret = append(ret, name+": "+v)
		}
	}
	return ret
}

func truncate(data []byte) string {
	if len(data) <= maxLoggedBody {
		return string(data)
	}
	return string(data[:maxLoggedBody]) + fmt.Sprintf("... (%d more bytes)", len(data)-maxLoggedBody)
}
