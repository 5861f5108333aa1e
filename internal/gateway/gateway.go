// Package gateway is the single egress point for Spotify Web API traffic.
//
// Every outbound request flows through [Gateway.Do], which injects a bearer
// token at send time, retries rate limits and transient failures, and
// converts upstream rejections into the typed errors in internal/shared.
// Concentrating the retry and auth policy here keeps the catalog, enricher,
// and publish pipeline declarative.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/bodywerk/bodywerk/internal/shared"
	"github.com/charmbracelet/log"
)

// TokenSource supplies bearer tokens for outbound requests.
//
// Bearer returns a token valid for at least the refresh skew window.
// Invalidate forces a refresh after an upstream 401; it returns
// [shared.ErrAuthExpired] when the refresh token is no longer usable.
type TokenSource interface {
	Bearer(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// Response is a decoded-enough upstream reply. Body is fully read before
// the response is returned so retries never hold a connection open.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// SleepFunc pauses for d or until ctx is done. Injectable for tests.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures a Gateway. Zero values fall back to the documented
// defaults.
type Options struct {
	Client              *http.Client
	Tokens              TokenSource
	Logger              *log.Logger
	MaxRateLimitRetries int           // default 6
	Max5xxRetries       int           // default 3
	MaxNetworkRetries   int           // default 3
	RequestTimeout      time.Duration // default 30s
	Sleep               SleepFunc
}

// Gateway performs authenticated HTTP requests with a uniform retry policy.
// Immutable after construction.
type Gateway struct {
	client              *http.Client
	tokens              TokenSource
	logger              *log.Logger
	maxRateLimitRetries int
	max5xxRetries       int
	maxNetworkRetries   int
	requestTimeout      time.Duration
	sleep               SleepFunc
}

// New creates a Gateway with the provided options.
func New(opts Options) *Gateway {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.MaxRateLimitRetries <= 0 {
		opts.MaxRateLimitRetries = 6
	}
	if opts.Max5xxRetries <= 0 {
		opts.Max5xxRetries = 3
	}
	if opts.MaxNetworkRetries <= 0 {
		opts.MaxNetworkRetries = 3
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}

	return &Gateway{
		client:              opts.Client,
		tokens:              opts.Tokens,
		logger:              opts.Logger,
		maxRateLimitRetries: opts.MaxRateLimitRetries,
		max5xxRetries:       opts.Max5xxRetries,
		maxNetworkRetries:   opts.MaxNetworkRetries,
		requestTimeout:      opts.RequestTimeout,
		sleep:               opts.Sleep,
	}
}

// SleepContext pauses for d, returning early with the context error when
// ctx is done first.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Get performs an authenticated GET against an absolute URL.
func (g *Gateway) Get(ctx context.Context, url string) (*Response, error) {
	return g.Do(ctx, http.MethodGet, url, nil)
}

// Post performs an authenticated POST with a JSON body.
func (g *Gateway) Post(ctx context.Context, url string, body any) (*Response, error) {
	return g.Do(ctx, http.MethodPost, url, body)
}

// Do performs one logical request against an absolute URL, retrying rate
// limits, server errors, and transport failures within their budgets.
//
// Pagination callers pass upstream-provided next URLs verbatim.
func (g *Gateway) Do(ctx context.Context, method, url string, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	rateLimitAttempts := 0
	serverErrAttempts := 0
	networkAttempts := 0
	refreshed := false
	attempt := 0

	for {
		attempt++

		bearer, err := g.tokens.Bearer(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := g.send(ctx, method, url, bearer, payload, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			networkAttempts++
			if networkAttempts > g.maxNetworkRetries {
				return nil, fmt.Errorf("%w: %v", shared.ErrNetwork, err)
			}
			if err := g.sleep(ctx, backoff(networkAttempts)); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case resp.Status >= 200 && resp.Status < 300:
			return resp, nil

		case resp.Status == http.StatusTooManyRequests:
			rateLimitAttempts++
			if rateLimitAttempts > g.maxRateLimitRetries {
				return nil, fmt.Errorf("%w: %d attempts on %s", shared.ErrRateLimited, rateLimitAttempts, url)
			}
			wait := retryAfter(resp.Header) + time.Second
			g.logger.Warn("rate limited", "url", url, "wait", wait, "attempt", rateLimitAttempts)
			if err := g.sleep(ctx, wait); err != nil {
				return nil, err
			}

		case resp.Status == http.StatusUnauthorized:
			if refreshed {
				return nil, fmt.Errorf("%w: status 401 after refresh", shared.ErrUnauthorized)
			}
			refreshed = true
			if err := g.tokens.Invalidate(ctx); err != nil {
				return nil, err
			}

		case resp.Status >= 500:
			serverErrAttempts++
			if serverErrAttempts > g.max5xxRetries {
				return nil, &shared.UpstreamError{Status: resp.Status, Body: errorMessage(resp.Body)}
			}
			if err := g.sleep(ctx, backoff(serverErrAttempts)); err != nil {
				return nil, err
			}

		default:
			return nil, &shared.UpstreamError{Status: resp.Status, Body: errorMessage(resp.Body)}
		}
	}
}

// send performs one attempt. The response body is drained before returning.
func (g *Gateway) send(ctx context.Context, method, url, bearer string, payload []byte, attempt int) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, g.requestTimeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+bearer)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("request failed", "method", method, "url", url, "attempt", attempt, "err", err)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("request",
		"method", method,
		"url", url,
		"status", resp.StatusCode,
		"latency", time.Since(start),
		"attempt", attempt,
		"token", shared.TokenTail(bearer),
	)

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// retryAfter parses the Retry-After header in seconds, defaulting to 1.
func retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}

// backoff returns the exponential delay for the nth retry, starting at
// 500 ms with ±20% jitter.
func backoff(attempt int) time.Duration {
	base := 500 * time.Millisecond << (attempt - 1)
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(base) * jitter)
}

// errorMessage extracts the message from a Spotify error body, falling back
// to the raw payload.
func errorMessage(body []byte) string {
	var decoded struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error.Message != "" {
		return decoded.Error.Message
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return string(body)
}
