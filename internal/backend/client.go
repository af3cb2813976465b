package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ticket-storefront/internal/status"
	"ticket-storefront/monitoring"
	"ticket-storefront/utils"
)

const maxBodyBytes = 4 << 20

// TokenSource supplies the bearer credential for a visitor and renews it
// when the backend answers 401. Refresh receives the token that was
// rejected so implementations can skip a refresh another caller already did.
type TokenSource interface {
	AccessToken() string
	Refresh(ctx context.Context, stale string) (string, error)
}

// Client is the shared transport to the ticketing backend. It is safe for
// concurrent use; per-visitor calls go through an *API bound to a
// TokenSource.
type Client struct {
	// baseURL is the backend root, without trailing slash.
	baseURL string

	// hc is the http client.
	hc *http.Client

	// breaker protects the backend from request storms while it is failing.
	breaker *utils.CircuitBreaker

	monitor *monitoring.Monitor
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func WithBreaker(cb *utils.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

func WithMonitor(m *monitoring.Monitor) Option {
	return func(c *Client) { c.monitor = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates new instance of the backend client.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend: base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = utils.NewCircuitBreaker("backend", WithBackendFailures())
	}
	return c, nil
}

// WithBackendFailures makes a breaker count only transport failures and
// 5xx answers. 4xx and respCode rejections are the caller's problem.
func WithBackendFailures() utils.BreakerOption {
	return utils.WithFailurePredicate(func(err error) bool {
		if err == nil || errors.Is(err, context.Canceled) {
			return false
		}
		var he *HTTPError
		if errors.As(err, &he) {
			return he.Status >= 500
		}
		return errors.Is(err, status.ErrTransport)
	})
}

// For binds the client to a visitor's credentials. A nil TokenSource gives
// anonymous access.
func (c *Client) For(tokens TokenSource) *API {
	return &API{client: c, tokens: tokens}
}

type request struct {
	method string
	path   string
	query  url.Values
	body   []byte
}

func newRequest(method, path string, query url.Values, body any) (*request, error) {
	r := &request{method: method, path: path, query: query}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode body: %w", method, path, err)
		}
		r.body = data
	}
	return r, nil
}

func (r *request) endpoint() string {
	return r.method + " " + r.path
}

// call performs one exchange with an explicit bearer and decodes it.
func (c *Client) call(ctx context.Context, r *request, bearer string, out any) error {
	code, body, err := c.send(ctx, r, bearer)
	if err != nil {
		return err
	}
	return decode(r.endpoint(), code, body, out)
}

// send makes one http call. 5xx answers come back as *HTTPError so the
// breaker sees them as failures.
func (c *Client) send(ctx context.Context, r *request, bearer string) (int, []byte, error) {
	var (
		code    int
		payload []byte
	)

	started := time.Now()
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var bodyReader io.Reader
		if r.body != nil {
			bodyReader = bytes.NewReader(r.body)
		}

		target := c.baseURL + r.path
		if len(r.query) > 0 {
			target += "?" + r.query.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, r.method, target, bodyReader)
		if err != nil {
			return fmt.Errorf("%s: http.NewRequest: %w", r.endpoint(), err)
		}
		req.Header.Set("Accept", "application/json")
		if r.body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		if id := utils.NewRequestID(); id != "" {
			req.Header.Set("X-Request-Id", id)
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w: %w", r.endpoint(), status.ErrTransport, err)
		}
		defer resp.Body.Close()

		payload, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("%s: read body: %w: %w", r.endpoint(), status.ErrTransport, err)
		}
		code = resp.StatusCode

		if code >= 500 {
			return &HTTPError{Endpoint: r.endpoint(), Status: code, Body: snippet(payload)}
		}
		return nil
	})

	c.monitor.TrackBackendCall(r.path, outcome(code, err), time.Since(started))
	if err != nil {
		c.logger.Warn("backend call failed", "endpoint", r.endpoint(), "error", err)
		return code, nil, err
	}
	return code, payload, nil
}

func outcome(code int, err error) string {
	switch {
	case errors.Is(err, status.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, status.ErrTransport), code == 0:
		return "transport"
	case code >= 500:
		return "http_5xx"
	case code == http.StatusUnauthorized:
		return "unauthorized"
	case code >= 400:
		return "http_4xx"
	default:
		return "ok"
	}
}

// API issues backend calls on behalf of one visitor. It implements the
// refresh-then-retry-once protocol on 401.
type API struct {
	client *Client
	tokens TokenSource
}

func (a *API) do(ctx context.Context, r *request, out any) error {
	var token string
	if a.tokens != nil {
		token = a.tokens.AccessToken()
	}

	code, body, err := a.client.send(ctx, r, token)
	if err != nil {
		return err
	}

	// Anonymous requests have nothing to refresh.
	if code == http.StatusUnauthorized && a.tokens != nil && token != "" {
		fresh, err := a.tokens.Refresh(ctx, token)
		if err != nil {
			return fmt.Errorf("%s: %w", r.endpoint(), err)
		}

		code, body, err = a.client.send(ctx, r, fresh)
		if err != nil {
			return err
		}
	}

	return decode(r.endpoint(), code, body, out)
}

func (a *API) get(ctx context.Context, path string, query url.Values, out any) error {
	r, err := newRequest(http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return a.do(ctx, r, out)
}

func (a *API) post(ctx context.Context, path string, body, out any) error {
	r, err := newRequest(http.MethodPost, path, nil, body)
	if err != nil {
		return err
	}
	return a.do(ctx, r, out)
}
