// Package relay talks to the PKP minting relay over HTTP.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/layer-3/pkpauth/core"
	"github.com/layer-3/pkpauth/internal/metrics"
	"github.com/layer-3/pkpauth/ports"
)

// Relay routes
const (
	MintRoute   = "/mint-next-and-add-auth-methods"
	StatusRoute = "/auth/status/"
	FetchRoute  = "/fetch-pkps-by-auth-method"
)

// APIKeyHeader carries the relay API key on every request
const APIKeyHeader = "api-key"

// Client is an HTTP client of the relay
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	resolver   ports.AuthMethodResolver
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

var _ ports.Relay = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithResolver sets the resolver used to derive auth method ids when minting
func WithResolver(r ports.AuthMethodResolver) Option {
	return func(c *Client) { c.resolver = r }
}

// WithRateLimit caps outgoing requests. Non-positive rps disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the client logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a relay client for baseURL authenticating with apiKey
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) get(ctx context.Context, route, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(route, req, result)
}

func (c *Client) post(ctx context.Context, route string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(route, req, result)
}

func (c *Client) do(route string, req *http.Request, result any) (err error) {
	defer func() {
		metrics.RelayRequests.WithLabelValues(route, metrics.Outcome(err)).Inc()
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	req.Header.Set(APIKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay %s: connection failed: %w", route, err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	c.logger.Debug().
		Str("method", req.Method).
		Str("route", route).
		Int("status", resp.StatusCode).
		Msg("relay request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseErrorResponse(route, resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("relay %s: failed to decode response: %w", route, err)
		}
	}
	return nil
}

// parseErrorResponse turns any non-2xx response into a RelayError, whatever the body
func parseErrorResponse(route string, resp *http.Response) error {
	relayErr := &core.RelayError{Endpoint: route, StatusCode: resp.StatusCode}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		relayErr.Message = fmt.Sprintf("unreadable body: %v", err)
		return relayErr
	}

	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		relayErr.Message = errResp.Error
	} else {
		relayErr.Message = strings.TrimSpace(string(body))
	}
	if relayErr.Message == "" {
		relayErr.Message = http.StatusText(resp.StatusCode)
	}
	return relayErr
}
