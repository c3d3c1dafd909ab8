// Package api is the typed HTTP accessor for the admin backend. Every call
// carries the tenant header and, once authenticated, a bearer token. A 401 is
// answered with one session refresh and exactly one replay; nothing else is
// retried.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/pitabwire/console/internal/auth"
	"github.com/pitabwire/console/internal/config"
	"github.com/pitabwire/console/internal/observability"
	"github.com/pitabwire/console/model"
)

// IdempotencyHeader carries the per-submission key of a mutation.
const IdempotencyHeader = "X-Idempotency-Key"

// messagePaths are tried in order to find a server supplied error message.
var messagePaths = []string{"message", "error.message", "error", "title", "detail"}

// Client executes calls against the backend.
type Client struct {
	http     *resty.Client
	session  *auth.Session
	breaker  *CircuitBreaker
	authCfg  config.AuthConfig
	tenantID string
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBreaker replaces the configured circuit breaker. nil disables it.
func WithBreaker(cb *CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// New builds a client and registers it as the session's refresher.
func New(apiCfg config.APIConfig, authCfg config.AuthConfig, session *auth.Session, opts ...Option) *Client {
	return NewWithHTTPClient(nil, apiCfg, authCfg, session, opts...)
}

// NewWithHTTPClient is New with a caller supplied transport.
func NewWithHTTPClient(hc *http.Client, apiCfg config.APIConfig, authCfg config.AuthConfig, session *auth.Session, opts ...Option) *Client {
	var rc *resty.Client
	if hc != nil {
		rc = resty.NewWithClient(hc)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimRight(apiCfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetRetryCount(0)
	if apiCfg.Timeout > 0 {
		rc.SetTimeout(apiCfg.Timeout)
	}
	if apiCfg.TenantHeader != "" && apiCfg.TenantID != "" {
		rc.SetHeader(apiCfg.TenantHeader, apiCfg.TenantID)
	}

	c := &Client{
		http:     rc,
		session:  session,
		authCfg:  authCfg,
		tenantID: apiCfg.TenantID,
		logger:   zap.NewNop(),
	}
	if cb := apiCfg.CircuitBreaker; cb.Enabled {
		c.breaker = NewCircuitBreaker(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker != nil {
		c.breaker.OnChange(func(s BreakerState) {
			c.metrics.SetCircuitBreakerState(float64(s))
			c.logger.Warn("api: circuit breaker state changed", zap.String("state", s.String()))
		})
	}
	if session != nil {
		session.SetRefresher(c)
	}
	return c
}

// Session returns the client's auth session.
func (c *Client) Session() *auth.Session { return c.session }

// Call describes one backend request.
type Call struct {
	// Resource labels metrics and spans.
	Resource string
	Method   string
	Path     string
	Query    url.Values
	Body     any
	// Result, when set, receives the decoded JSON body of a 2xx response.
	Result         any
	IdempotencyKey string
	// Anonymous calls never carry a bearer token and never refresh.
	Anonymous bool
	// Stream leaves the body unread; the caller must close RawBody.
	Stream bool
	// Prepare customizes the request, e.g. for multipart uploads.
	Prepare func(*resty.Request)
}

func (call Call) op() string { return call.Method + " " + call.Path }

// Do executes call. A 401 triggers one session refresh and one replay; a
// second 401 clears the session and returns AuthExpiredError. Non-2xx
// responses become RequestError and transport failures NetworkError.
func (c *Client) Do(ctx context.Context, call Call) (*resty.Response, error) {
	token := ""
	if !call.Anonymous && c.session != nil {
		token = c.session.AccessToken()
	}

	resp, err := c.send(ctx, call, token, false)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() == http.StatusUnauthorized && !call.Anonymous && c.session != nil {
		discard(call, resp)
		fresh, err := c.session.Refresh(ctx, token)
		if err != nil {
			return nil, err
		}
		resp, err = c.send(ctx, call, fresh, true)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() == http.StatusUnauthorized {
			reqErr := c.requestError(call, resp)
			if clearErr := c.session.Clear(); clearErr != nil {
				c.logger.Warn("api: clearing session failed", zap.Error(clearErr))
			}
			return nil, &model.AuthExpiredError{Reason: "request rejected after refresh", Err: reqErr}
		}
	}

	if !resp.IsSuccess() {
		return nil, c.requestError(call, resp)
	}

	if call.Result != nil && !call.Stream && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), call.Result); err != nil {
			return nil, fmt.Errorf("api: decoding %s: %w", call.op(), err)
		}
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, call Call, token string, replay bool) (*resty.Response, error) {
	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			return nil, &model.NetworkError{Op: call.op(), Err: err}
		}
	}

	ctx, span := observability.StartClientSpan(ctx, call.Method, call.Path,
		observability.AttrResource.String(call.Resource),
		observability.AttrTenantID.String(c.tenantID),
		observability.AttrReplayed.Bool(replay),
	)

	req := c.http.R().SetContext(ctx)
	observability.InjectTraceHeaders(ctx, req.Header)
	if token != "" {
		req.SetAuthToken(token)
	}
	if call.IdempotencyKey != "" {
		req.SetHeader(IdempotencyHeader, call.IdempotencyKey)
	}
	if len(call.Query) > 0 {
		req.SetQueryParamsFromValues(call.Query)
	}
	if call.Body != nil {
		req.SetBody(call.Body)
	}
	if call.Prepare != nil {
		call.Prepare(req)
	}
	if call.Stream {
		req.SetDoNotParseResponse(true)
	}

	start := time.Now()
	resp, err := req.Execute(call.Method, call.Path)
	duration := time.Since(start)

	status := 0
	if resp != nil && err == nil {
		status = resp.StatusCode()
	}
	c.metrics.RecordAPIRequest(call.Resource, call.Method, status, duration)

	if err != nil {
		if c.breaker != nil && ctx.Err() == nil {
			c.breaker.RecordFailure()
		}
		c.logger.Warn("api: no response",
			zap.String("method", call.Method),
			zap.String("path", call.Path),
			zap.Error(err),
		)
		observability.EndSpanWithError(span, err)
		return nil, &model.NetworkError{Op: call.op(), Err: err}
	}

	if c.breaker != nil {
		if status >= http.StatusInternalServerError {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
	}

	observability.SetResponseStatus(span, status)
	var spanErr error
	if status >= http.StatusBadRequest {
		spanErr = fmt.Errorf("%s: status %d", call.op(), status)
	}
	observability.EndSpanWithError(span, spanErr)

	fields := []zap.Field{
		zap.String("method", call.Method),
		zap.String("path", call.Path),
		zap.Int("status", status),
		zap.Duration("duration", duration),
		zap.Bool("replay", replay),
	}
	if body, ok := call.Body.(map[string]any); ok && c.logger.Core().Enabled(zap.DebugLevel) {
		fields = append(fields, zap.Any("body", observability.RedactBody(body, nil)))
	}
	switch {
	case status >= http.StatusInternalServerError:
		c.logger.Error("api: request failed", fields...)
	case status >= http.StatusBadRequest:
		c.logger.Warn("api: request rejected", fields...)
	default:
		c.logger.Debug("api: request", fields...)
	}
	return resp, nil
}

// requestError builds a RequestError, reading the server message from the
// body. Streamed bodies are drained first.
func (c *Client) requestError(call Call, resp *resty.Response) *model.RequestError {
	body := resp.Body()
	if call.Stream && resp.RawBody() != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.RawBody(), 64<<10))
		_ = resp.RawBody().Close()
	}
	e := model.NewRequestError(resp.StatusCode(), extractMessage(body))
	e.Method = call.Method
	e.Path = call.Path
	return e
}

// extractMessage returns the first non-empty string at one of messagePaths.
func extractMessage(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range messagePaths {
		res := gjson.GetBytes(body, path)
		if res.Type == gjson.String && res.Str != "" {
			return res.Str
		}
	}
	return ""
}

func discard(call Call, resp *resty.Response) {
	if call.Stream && resp.RawBody() != nil {
		_, _ = io.Copy(io.Discard, resp.RawBody())
		_ = resp.RawBody().Close()
	}
}

// HealthCheck pings the backend health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.Do(ctx, Call{Resource: "health", Method: http.MethodGet, Path: "/healthz", Anonymous: true})
	return err
}

// IsNetwork reports whether err means no response was received.
func IsNetwork(err error) bool {
	var netErr *model.NetworkError
	return errors.As(err, &netErr)
}
