package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/ratelimit"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// MaxResponseSize is the maximum response body size (10MB)
	MaxResponseSize = 10 * 1024 * 1024

	// BaseBackoff is the delay before the first retry
	BaseBackoff = time.Second

	// MaxBackoff caps the exponential part of the retry delay
	MaxBackoff = 30 * time.Second

	// MaxJitter bounds the random delay added to every retry
	MaxJitter = time.Second
)

// Request is one outbound call. Endpoint is relative to the connector's base
// URL unless it is absolute.
type Request struct {
	Endpoint string            `json:"endpoint" validate:"required"`
	Method   string            `json:"method,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
	Body     any               `json:"body,omitempty"`
	Timeout  time.Duration     `json:"-"`
}

// Response is the outcome of a request after all attempts.
type Response struct {
	Success    bool              `json:"success"`
	StatusCode int               `json:"status_code"`
	Data       any               `json:"data,omitempty"`
	Error      string            `json:"error,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       []byte            `json:"-"`
	DurationMs int64             `json:"duration_ms"`
	Attempts   int               `json:"attempts"`
}

// LogWriter persists connector audit logs.
type LogWriter interface {
	Create(ctx context.Context, log *models.ConnectorLog) error
}

// Client executes requests for one connector with auth, rate limiting,
// retries and audit logging.
type Client struct {
	config     *models.ConnectorConfig
	credential string
	http       *http.Client
	limiter    ratelimit.Limiter
	logs       LogWriter
	logger     ectologger.Logger
	sleep      func(ctx context.Context, d time.Duration) error
	jitter     func() time.Duration
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.http = client }
}

func WithRateLimiter(limiter ratelimit.Limiter) ClientOption {
	return func(c *Client) { c.limiter = limiter }
}

func WithLogWriter(logs LogWriter) ClientOption {
	return func(c *Client) { c.logs = logs }
}

// WithSleep replaces the backoff sleep. Used by tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = sleep }
}

// WithJitter replaces the random jitter source. Used by tests.
func WithJitter(jitter func() time.Duration) ClientOption {
	return func(c *Client) { c.jitter = jitter }
}

// NewClient creates a client for cfg. credential is the decrypted secret.
func NewClient(cfg *models.ConnectorConfig, credential string, logger ectologger.Logger, opts ...ClientOption) *Client {
	c := &Client{
		config:     cfg,
		credential: credential,
		http:       &http.Client{},
		logger:     logger,
		sleep:      sleepContext,
		jitter:     func() time.Duration { return rand.N(MaxJitter) },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = ratelimit.NewMemoryLimiter()
	}
	return c
}

func (c *Client) Config() *models.ConnectorConfig {
	return c.config
}

// BackoffDelay is min(1s * 2^(attempt-1), 30s) plus jitter.
func BackoffDelay(attempt int, jitter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := MaxBackoff
	if attempt <= 6 {
		delay = min(BaseBackoff<<(attempt-1), MaxBackoff)
	}
	return delay + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Request sends req, retrying network failures, 5xx and 429 up to the
// connector's retry count. The returned Response is never nil; err is a
// *errors.SourceError when the request ultimately failed.
func (c *Client) Request(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectorClient.Request")
	defer span.End()

	start := time.Now()
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	logger := c.logger.WithContext(ctx).WithFields(map[string]any{
		"connector_id": c.config.ID,
		"endpoint":     req.Endpoint,
		"method":       method,
	})

	fail := func(serr *fernerrors.SourceError, attempts int) (*Response, error) {
		tracing.RecordError(span, serr)
		return &Response{
			StatusCode: serr.StatusCode,
			Error:      serr.Error(),
			DurationMs: time.Since(start).Milliseconds(),
			Attempts:   attempts,
		}, serr
	}

	target, err := c.buildURL(req.Endpoint, req.Params)
	if err != nil {
		logger.WithError(err).Error("Failed to build connector request URL")
		return fail(&fernerrors.SourceError{Kind: fernerrors.KindInvalidRequest, Err: err}, 0)
	}

	var body []byte
	if req.Body != nil {
		if body, err = encodeBody(req.Body); err != nil {
			logger.WithError(err).Error("Failed to encode connector request body")
			return fail(&fernerrors.SourceError{Kind: fernerrors.KindInvalidRequest, Err: err}, 0)
		}
	}

	headers, err := ApplyAuth(c.config, c.credential, c.baseHeaders(req, body != nil))
	if err != nil {
		logger.WithError(err).Error("Failed to apply connector auth")
		return fail(&fernerrors.SourceError{Kind: fernerrors.KindInvalidRequest, Err: err}, 0)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.config.Timeout()
	}

	maxAttempts := max(c.config.RetryCount, 0) + 1
	key := c.config.ID.String()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if limit := c.config.RateLimit(); limit != nil {
			res, err := c.limiter.Allow(ctx, key, *limit)
			if err != nil {
				logger.WithError(err).Warn("Rate limiter unavailable, sending request anyway")
			} else if !res.Allowed {
				metrics.RecordRateLimitRejection(key)
				logger.Warnf("Rate limit exhausted, retry after %s", res.RetryAfter)
				return fail(&fernerrors.SourceError{Kind: fernerrors.KindRateLimited, RetryAfter: res.RetryAfter}, attempt-1)
			}
		}

		result, serr := c.send(ctx, method, target, req.Endpoint, headers, body, timeout, attempt)
		if serr == nil {
			result.Attempts = attempt
			result.DurationMs = time.Since(start).Milliseconds()
			return result, nil
		}
		if serr.Kind == fernerrors.KindInvalidRequest {
			logger.WithError(serr).Error("Connector request could not be sent")
			return fail(serr, attempt)
		}
		if ctx.Err() != nil {
			return fail(serr, attempt)
		}

		if !serr.Retryable() || attempt == maxAttempts {
			logger.WithError(serr).Warnf("Connector request failed after %d attempt(s)", attempt)
			return fail(serr, attempt)
		}

		delay := c.retryDelay(ctx, key, attempt, serr)
		metrics.RecordRetry(key, string(serr.Kind))
		logger.Warnf("Retrying in %v (attempt %d/%d): %s", delay, attempt, maxAttempts, serr.Error())
		if err := c.sleep(ctx, delay); err != nil {
			return fail(&fernerrors.SourceError{Kind: fernerrors.KindTransient, Err: err}, attempt)
		}
	}

	// unreachable: the loop always returns on the last attempt
	return fail(&fernerrors.SourceError{Kind: fernerrors.KindTransient}, maxAttempts)
}

// retryDelay prefers a 429's Retry-After when it is longer than the computed
// backoff, still capped at MaxBackoff plus jitter.
func (c *Client) retryDelay(ctx context.Context, key string, attempt int, serr *fernerrors.SourceError) time.Duration {
	jitter := c.jitter()
	delay := BackoffDelay(attempt, jitter)
	if serr.RetryAfter <= 0 {
		return delay
	}

	wait := min(serr.RetryAfter, MaxBackoff)
	if err := c.limiter.BlockFor(ctx, key, wait); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Failed to block rate limiter for Retry-After")
	}
	if wait+jitter > delay {
		return wait + jitter
	}
	return delay
}

// send performs one attempt and writes its audit log.
func (c *Client) send(ctx context.Context, method, target, endpoint string, headers map[string]string, body []byte, timeout time.Duration, attempt int) (*Response, *fernerrors.SourceError) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, target, reader)
	if err != nil {
		return nil, &fernerrors.SourceError{Kind: fernerrors.KindInvalidRequest, Err: err}
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	entry := &models.ConnectorLog{
		ID:             uuid.New(),
		ConnectorID:    c.config.ID,
		Endpoint:       endpoint,
		Method:         method,
		Attempt:        attempt,
		RequestHeaders: database.NewJSONB(SanitizeHeaders(headers, APIKeyHeader(c.config))),
		RequestBody:    SanitizeBody(body),
	}

	started := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		elapsed := time.Since(started)
		serr := &fernerrors.SourceError{Kind: fernerrors.KindTransient, Err: err}
		metrics.RecordConnectorRequest(c.config.ID.String(), method, 0, elapsed.Seconds())
		c.writeLog(ctx, entry, elapsed, serr)
		return nil, serr
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	elapsed := time.Since(started)
	metrics.RecordConnectorRequest(c.config.ID.String(), method, resp.StatusCode, elapsed.Seconds())

	respHeaders := make(map[string]string, len(resp.Header))
	for k, values := range resp.Header {
		if len(values) > 0 {
			respHeaders[k] = values[0]
		}
	}
	status := resp.StatusCode
	entry.ResponseStatus = &status
	entry.ResponseHeaders = database.NewJSONB(SanitizeHeaders(respHeaders))
	entry.ResponseBody = SanitizeBody(respBody)

	var serr *fernerrors.SourceError
	switch {
	case readErr != nil:
		serr = &fernerrors.SourceError{Kind: fernerrors.KindTransient, Err: fmt.Errorf("failed to read response body: %w", readErr)}
	case len(respBody) > MaxResponseSize:
		serr = &fernerrors.SourceError{Kind: fernerrors.KindPermanent, StatusCode: status, Body: fmt.Sprintf("response body too large (max %d bytes)", MaxResponseSize)}
	case status < 200 || status >= 300:
		serr = &fernerrors.SourceError{
			Kind:       fernerrors.ClassifyStatus(status),
			StatusCode: status,
			Body:       truncate(validText(respBody), MaxLoggedBodySize),
		}
		if status == http.StatusTooManyRequests {
			serr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
	}
	c.writeLog(ctx, entry, elapsed, serr)
	if serr != nil {
		return nil, serr
	}

	return &Response{
		Success:    true,
		StatusCode: status,
		Data:       decodeBody(respBody),
		Headers:    respHeaders,
		Body:       respBody,
	}, nil
}

func (c *Client) writeLog(ctx context.Context, entry *models.ConnectorLog, elapsed time.Duration, serr *fernerrors.SourceError) {
	if c.logs == nil {
		return
	}
	entry.DurationMs = elapsed.Milliseconds()
	entry.CreatedAt = time.Now().UTC()
	if serr != nil {
		msg := serr.Error()
		if serr.StatusCode == 0 && serr.Err != nil {
			msg = fmt.Sprintf("%s (%v)", msg, serr.Err)
		}
		entry.Error = &msg
	}
	if err := c.logs.Create(ctx, entry); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("connector_id", c.config.ID).Warn("Failed to write connector log")
	}
}

// TestConnection calls the health endpoint and reports whether it answered
// with a 2xx. Failures are logged, never returned.
func (c *Client) TestConnection(ctx context.Context, endpoint string) bool {
	resp, err := c.Request(ctx, Request{Endpoint: endpoint, Method: http.MethodGet})
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("connector_id", c.config.ID).Warn("Connection test failed")
		return false
	}
	return resp.Success
}

func (c *Client) baseHeaders(req Request, hasBody bool) map[string]string {
	headers := map[string]string{"Accept": "application/json"}
	if hasBody {
		headers["Content-Type"] = "application/json"
	}
	for k, v := range c.config.Headers.Data {
		headers[k] = v
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	return headers
}

func (c *Client) buildURL(endpoint string, params map[string]string) (string, error) {
	raw := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		raw = strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid URL %q: missing host", raw)
	}

	if len(params) > 0 {
		query := parsed.Query()
		for k, v := range params {
			query.Set(k, v)
		}
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	return json.Marshal(body)
}

func decodeBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body)
	}
	return data
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
