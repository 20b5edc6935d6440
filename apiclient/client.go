// Package apiclient is the authenticated HTTP client for the OpportuCI REST
// backend. It attaches the stored bearer token to every request and recovers
// from access token expiry by refreshing once per burst of 401s, parking
// concurrent callers until that single refresh settles and replaying each of
// them once with the new token.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-opportuci/internal/metrics"
	"github.com/jrsteele09/go-opportuci/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultRefreshTimeout = 30 * time.Second
	defaultRetryInterval  = 200 * time.Millisecond
	requestIDHeader       = "X-Request-ID"
)

// Client talks to the backend on behalf of the single session held in its store.
// Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      session.Store
	logger     zerolog.Logger
	metrics    *metrics.Collector
	limiter    *rate.Limiter
	locker     session.Locker
	userAgent  string
	onLogout   func()
	nowFunc    func() time.Time

	refreshTimeout      time.Duration
	proactiveSkew       time.Duration
	maxTransportRetries int
	retryInterval       time.Duration

	refresh refreshState
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying *http.Client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each HTTP round trip
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(collector *metrics.Collector) ClientOption {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithRateLimit throttles outgoing requests to rps with the given burst.
// rps <= 0 leaves requests unthrottled.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRefreshTimeout bounds the refresh call that queued requests wait on.
// On expiry every waiter fails with ErrRefreshTimeout and the session is cleared.
func WithRefreshTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithTransportRetries retries idempotent requests that received no response,
// with exponential backoff starting at initial. Responses are never retried.
func WithTransportRetries(maxRetries int, initial time.Duration) ClientOption {
	return func(c *Client) {
		c.maxTransportRetries = maxRetries
		if initial > 0 {
			c.retryInterval = initial
		}
	}
}

// WithProactiveRefresh refreshes before sending when the access token's exp
// claim is within skew.
func WithProactiveRefresh(skew time.Duration) ClientOption {
	return func(c *Client) {
		c.proactiveSkew = skew
	}
}

// WithRefreshLocker coordinates refreshes with other clients sharing the same store.
func WithRefreshLocker(locker session.Locker) ClientOption {
	return func(c *Client) {
		c.locker = locker
	}
}

func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithLogoutHook is called after every logout, including the forced one on refresh failure.
func WithLogoutHook(hook func()) ClientOption {
	return func(c *Client) {
		c.onLogout = hook
	}
}

// WithNowFunc sets the clock (primarily for testing)
func WithNowFunc(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowFunc = now
	}
}

// New creates a client for the API rooted at baseURL (e.g. "http://127.0.0.1:8000/api").
func New(baseURL string, store session.Store, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[apiclient New] base URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[apiclient New] invalid base URL %q", baseURL)
	}
	if store == nil {
		return nil, errors.New("[apiclient New] session store is required")
	}

	c := &Client{
		baseURL:        strings.TrimRight(u.String(), "/"),
		httpClient:     &http.Client{Timeout: defaultTimeout},
		store:          store,
		logger:         log.Logger,
		userAgent:      "OpportuCI-go-client/1.0",
		nowFunc:        time.Now,
		refreshTimeout: defaultRefreshTimeout,
		retryInterval:  defaultRetryInterval,
	}

	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Store returns the session store the client reads tokens from.
func (c *Client) Store() session.Store {
	return c.store
}

// BaseURL returns the API root every request path is resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request is one logical API call. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	// Body is JSON-encoded unless it is already a []byte, which is sent as is.
	Body any
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return errors.New("[Response Decode] empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("[Response Decode] %w", err)
	}
	return nil
}

// Do sends req with the current bearer token. A 401 to an authenticated
// request is recovered from once by refreshing the access token and replaying
// the request; any non-2xx outcome
// is returned as one of FieldValidationError, AuthError, StatusError or
// RefreshError, alongside the response when there is one. TransportError is
// returned when no response was received.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	logger := c.logger.With().
		Str("request_id", requestID).
		Str("method", req.Method).
		Str("path", req.Path).
		Logger()

	public := isTokenEndpoint(req.Path)

	var token string
	if !public {
		if token, err = c.currentToken(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.send(ctx, req, body, token, requestID, logger)
	if err != nil {
		return nil, err
	}

	// Token endpoints never enter recovery; a 401 from them is final. So is a
	// 401 to a request sent without a token: there is no session to recover.
	if resp.StatusCode == http.StatusUnauthorized && !public && token != "" {
		logger.Debug().Msg("access token rejected, recovering")
		fresh, err := c.recoverToken(ctx, token)
		if err != nil {
			return resp, err
		}

		// The replay is the one permitted retry: its outcome is final.
		c.metrics.ObserveReplay()
		logger.Debug().Msg("replaying request with refreshed token")
		if resp, err = c.send(ctx, req, body, fresh, requestID, logger); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, classify(resp)
	}
	return resp, nil
}

// Get issues a GET with optional query parameters.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body})
}

func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path})
}

// currentToken reads the access token to attach, refreshing first when
// proactive refresh is on and the token is about to expire.
func (c *Client) currentToken(ctx context.Context) (string, error) {
	s, err := c.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("[Client currentToken] %w", err)
	}

	if c.proactiveSkew > 0 && s.RefreshToken != "" {
		if exp, ok := s.AccessExpiry(); ok && !c.nowFunc().Add(c.proactiveSkew).Before(exp) {
			c.logger.Debug().Time("exp", exp).Msg("access token about to expire, refreshing ahead")
			return c.recoverToken(ctx, s.AccessToken)
		}
	}
	return s.AccessToken, nil
}

// send performs one logical send, retrying transport failures of idempotent
// methods when configured.
func (c *Client) send(ctx context.Context, req Request, body []byte, token, requestID string, logger zerolog.Logger) (*Response, error) {
	if c.maxTransportRetries <= 0 || !isIdempotent(req.Method) {
		return c.attempt(ctx, req, body, token, requestID)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxTransportRetries)), ctx)

	op := func() (*Response, error) {
		resp, err := c.attempt(ctx, req, body, token, requestID)
		var te *TransportError
		if err != nil && (!errors.As(err, &te) || ctx.Err() != nil) {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	}
	notify := func(err error, wait time.Duration) {
		c.metrics.ObserveTransportRetry()
		logger.Warn().Err(err).Dur("wait", wait).Msg("transport error, retrying")
	}
	return backoff.RetryNotifyWithData(op, policy, notify)
}

func (c *Client) attempt(ctx context.Context, req Request, body []byte, token, requestID string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Method: req.Method, Path: req.Path, Cause: err}
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.buildURL(req.Path, req.Query), reader)
	if err != nil {
		return nil, fmt.Errorf("[Client attempt] creating request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(requestIDHeader, requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, values := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		c.metrics.ObserveRequest(req.Method, 0, duration)
		return nil, &TransportError{Method: req.Method, Path: req.Path, Cause: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.metrics.ObserveRequest(req.Method, 0, duration)
		return nil, &TransportError{Method: req.Method, Path: req.Path, Cause: fmt.Errorf("reading body: %w", err)}
	}

	c.metrics.ObserveRequest(req.Method, httpResp.StatusCode, duration)
	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		Duration:   duration,
	}, nil
}

func (c *Client) buildURL(path string, query url.Values) string {
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
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("[apiclient encodeBody] %w", err)
		}
		return data, nil
	}
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}
