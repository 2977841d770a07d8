// Package upstream is the HTTP client every platform digger talks to its
// platform API through.
package upstream

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

	"github.com/pysugar/creator-insights/internal/logging"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// UserAgent identifies the digger to platform APIs.
	UserAgent = "creator-insights-digger/1.0"

	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	defaultBackoff    = 500 * time.Millisecond
	maxBackoff        = 30 * time.Second
)

// APIError is a non-2xx platform response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = truncate(e.Body, 256)
	}
	if e.Code != "" {
		return fmt.Sprintf("upstream returned %d (%s): %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, msg)
}

// IsAuthError reports whether err is a platform rejection of the credentials.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == http.StatusUnauthorized {
		return true
	}
	return apiErr.Code == "invalid_grant" || apiErr.Code == "OAuthException"
}

// Client performs JSON requests with a per-request timeout and retries
// rate limited or unavailable responses.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetries sets how many times a retryable response is retried.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// NewClient creates a client whose transport is traced with otelhttp.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		backoff:    defaultBackoff,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient exposes the traced client, e.g. for oauth2 token sources.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// GetJSON issues a GET to rawURL with query and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, header http.Header, out any) error {
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		rawURL += sep + query.Encode()
	}
	return c.do(ctx, http.MethodGet, rawURL, nil, "", header, out)
}

// PostForm posts form url-encoded and decodes the JSON body into out.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, out any) error {
	return c.do(ctx, http.MethodPost, rawURL, []byte(form.Encode()), "application/x-www-form-urlencoded", nil, out)
}

// BearerHeader returns a header carrying token as a bearer credential.
func BearerHeader(token string) http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+token)
	return h
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, contentType string, header http.Header, out any) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := c.once(ctx, method, rawURL, body, contentType, header)
		if err != nil {
			return err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			defer resp.Body.Close()
			if out == nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", redact(rawURL), err)
			}
			return nil
		}

		delay := ParseRetryDelay(resp)
		lastErr = newAPIError(resp)
		resp.Body.Close()

		if !retryable(resp.StatusCode) || attempt >= c.maxRetries {
			return lastErr
		}
		if delay <= 0 {
			delay = c.backoff << attempt
		}
		if delay > maxBackoff {
			delay = maxBackoff
		}
		logging.Entry(ctx).WithFields(logrus.Fields{
			"url":     redact(rawURL),
			"status":  resp.StatusCode,
			"attempt": attempt + 1,
			"delay":   delay.String(),
		}).Warn("upstream request throttled, retrying")
		if err := c.sleep(ctx, delay); err != nil {
			return errors.Join(lastErr, err)
		}
	}
}

func (c *Client) once(ctx context.Context, method, rawURL string, body []byte, contentType string, header http.Header) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, reader)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("request to %s failed: %w", redact(rawURL), err)
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelBody releases the request context once the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func newAPIError(resp *http.Response) *APIError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(data)}

	var envelope struct {
		Error            json.RawMessage `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}
	if json.Unmarshal(data, &envelope) != nil || len(envelope.Error) == 0 {
		return apiErr
	}

	// OAuth token endpoints answer {"error":"invalid_grant",...}, the Graph
	// and Data APIs nest an object.
	var code string
	if json.Unmarshal(envelope.Error, &code) == nil {
		apiErr.Code = code
		apiErr.Message = envelope.ErrorDescription
		return apiErr
	}
	var obj struct {
		Code    json.Number `json:"code"`
		Type    string      `json:"type"`
		Status  string      `json:"status"`
		Message string      `json:"message"`
	}
	if json.Unmarshal(envelope.Error, &obj) == nil {
		apiErr.Message = obj.Message
		switch {
		case obj.Type != "":
			apiErr.Code = obj.Type
		case obj.Status != "":
			apiErr.Code = obj.Status
		default:
			apiErr.Code = obj.Code.String()
		}
	}
	return apiErr
}

// redact strips the query string, which carries access tokens for the
// Graph API.
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
