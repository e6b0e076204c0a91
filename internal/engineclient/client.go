// Package engineclient calls the outreach engine over HTTP with bounded
// retries and exponential backoff, and probes the engine's health endpoint.
//
// Business calls (Call, CallWithPolicy) retry every failure; health probes
// (ProbeHealth) never retry. Both share one Config.
package engineclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/ignite/outreach-relay/internal/pkg/logger"
)

// maxResponseBytes caps how much of an engine response body is buffered.
const maxResponseBytes = 8 << 20

// HTTPDoer is the interface for executing HTTP requests.
// *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config is shared by business calls and health probes.
type Config struct {
	BaseURL           string
	MaxAttempts       int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	// AttemptTimeout bounds each individual attempt. Required.
	AttemptTimeout time.Duration
	HealthPath     string
	ProbeTimeout   time.Duration
}

// Policy is the retry schedule of one logical call.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	Multiplier     float64
	AttemptTimeout time.Duration
}

// Policy returns the default retry policy described by the config.
func (c Config) Policy() Policy {
	return Policy{
		MaxAttempts:    c.MaxAttempts,
		BaseDelay:      c.BaseDelay,
		Multiplier:     c.BackoffMultiplier,
		AttemptTimeout: c.AttemptTimeout,
	}
}

func (p Policy) validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts %d < 1", ErrInvalidPolicy, p.MaxAttempts)
	case p.BaseDelay < 0:
		return fmt.Errorf("%w: negative base delay", ErrInvalidPolicy)
	case p.Multiplier < 1:
		return fmt.Errorf("%w: backoff multiplier %.2f < 1", ErrInvalidPolicy, p.Multiplier)
	case p.AttemptTimeout <= 0:
		return fmt.Errorf("%w: attempt timeout is required", ErrInvalidPolicy)
	}
	return nil
}

// Delay returns the wait inserted after failed attempt n (1-based), that is
// before attempt n+1: BaseDelay * Multiplier^(n-1).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(n-1))
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Request describes one engine call. Header is forwarded unchanged, which is
// how the caller's Authorization credential and session Cookie reach the engine.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	// Body is sent as JSON. []byte and json.RawMessage are sent verbatim.
	Body any
}

// Response is a fully buffered 2xx engine response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode engine response: %w", err)
	}
	return nil
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) { c.http = doer }
}

// WithClock replaces the clock used for backoff waits and health timestamps.
func WithClock(clock Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// Client is safe for concurrent use. The only state shared between calls is
// the health record.
type Client struct {
	cfg     Config
	baseURL string
	http    HTTPDoer
	clock   Clock

	probeSeq atomic.Uint64
	health   atomic.Pointer[healthRecord]
}

// New creates a Client. The default policy derived from cfg must be valid.
func New(cfg Config, opts ...Option) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("engineclient: invalid base URL %q", cfg.BaseURL)
	}
	if err := cfg.Policy().validate(); err != nil {
		return nil, fmt.Errorf("engineclient: %w", err)
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/health"
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}

	c := &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		// Per-attempt contexts carry the timeouts; no client-wide timeout.
		http:  &http.Client{},
		clock: SystemClock,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the client's configuration.
func (c *Client) Config() Config { return c.cfg }

// Call performs req with the client's default policy.
//
// Only idempotent requests may be sent through Call: a failed attempt may
// have reached the engine, and the client adds no deduplication or
// idempotency key. Making writes idempotent is the caller's job.
func (c *Client) Call(ctx context.Context, req Request) (*Response, error) {
	return c.CallWithPolicy(ctx, req, c.cfg.Policy())
}

// CallWithPolicy performs req, retrying any transport error or non-2xx status
// up to p.MaxAttempts times in total. The wait before attempt n+1 is
// p.Delay(n); there is no wait after a success or after the last failure.
//
// It returns the first 2xx response, an error matching ErrEngineUnavailable
// once attempts are exhausted, or an error matching ErrCancelled if ctx ends
// first. The idempotency constraint of Call applies.
func (c *Client) CallWithPolicy(ctx context.Context, req Request, p Policy) (*Response, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	attempts := make([]Attempt, 0, p.MaxAttempts)
	var lastErr error

	for n := 1; n <= p.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}

		var delay time.Duration
		if n > 1 {
			delay = p.Delay(n - 1)
			logger.Debug("engine call backing off",
				"method", method, "path", req.Path, "attempt", n, "max_attempts", p.MaxAttempts, "delay", delay)
			select {
			case <-c.clock.After(delay):
			case <-ctx.Done():
				return nil, cancelled(ctx.Err())
			}
		}

		resp, err := c.attempt(ctx, method, req, body, p.AttemptTimeout)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		// A failure caused by the caller's context is cancellation, not an
		// engine failure, even if the transport reported it first.
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err())
		}

		a := Attempt{Number: n, Delay: delay}
		if err != nil {
			a.Err = err
		} else {
			a.StatusCode = resp.StatusCode
			a.Err = &StatusError{StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
		}
		attempts = append(attempts, a)
		lastErr = a.Err

		logger.Warn("engine call attempt failed",
			"method", method, "path", req.Path, "attempt", n, "max_attempts", p.MaxAttempts, "error", a.Err)
	}

	return nil, &UnavailableError{Attempts: attempts, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, method string, req Request, body []byte, timeout time.Duration) (*Response, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	hreq, err := http.NewRequestWithContext(actx, method, c.url(req.Path, req.Query), reader)
	if err != nil {
		return nil, fmt.Errorf("build engine request: %w", err)
	}
	if req.Header != nil {
		hreq.Header = req.Header.Clone()
	}
	if body != nil && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", "application/json")
	}
	if hreq.Header.Get("Accept") == "" {
		hreq.Header.Set("Accept", "application/json")
	}

	resp, err := c.http.Do(hreq)
	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("attempt timed out after %s: %w", timeout, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read engine response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) url(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode engine request body: %w", err)
		}
		return data, nil
	}
}

func snippet(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
