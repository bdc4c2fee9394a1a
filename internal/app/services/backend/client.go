// Package backend is the credentialed HTTP client for the loans REST API.
//
// Every Client owns a cookie jar, so the session cookie issued by POST /jwt is
// attached to every later request. A 401 or 403 from any call runs the
// registered auth-failure hooks once before the error reaches the caller.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// ErrAuthRejected is wrapped by every *StatusError carrying a 401 or 403.
var ErrAuthRejected = errors.New("backend rejected credentials")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	if isAuthStatus(e.StatusCode) {
		return ErrAuthRejected
	}
	return nil
}

// AuthFailure describes the response that triggered an auth-failure hook.
type AuthFailure struct {
	Method     string
	Path       string
	StatusCode int
}

// AuthFailureHook runs synchronously inside the failing call, with the
// caller's context.
type AuthFailureHook func(ctx context.Context, f AuthFailure)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Attempts   int
	RetryDelay time.Duration
	// Transport overrides the default tuned transport, mainly for tests.
	Transport  http.RoundTripper
}

type Client struct {
	baseURL  string
	origin   *url.URL
	http     *http.Client
	jar      http.CookieJar
	attempts int
	delay    time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	hooks    map[uint64]AuthFailureHook
	nextHook uint64
}

type interceptionKey struct{}

// WithoutInterception marks ctx so that a 401/403 does not run the hooks.
// The sign-out path uses it so a rejected teardown cannot loop.
func WithoutInterception(ctx context.Context) context.Context {
	return context.WithValue(ctx, interceptionKey{}, true)
}

func interceptionDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(interceptionKey{}).(bool)
	return v
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	origin, err := url.Parse(cfg.BaseURL)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("backend: invalid base url %q", cfg.BaseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("backend: cookie jar: %w", err)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = defaultTransport()
	}

	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	return &Client{
		baseURL: origin.String(),
		origin:  origin,
		http: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Jar:       jar,
			Timeout:   cfg.Timeout,
		},
		jar:      jar,
		attempts: attempts,
		delay:    cfg.RetryDelay,
		logger:   logger,
		hooks:    make(map[uint64]AuthFailureHook),
	}, nil
}

func defaultTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// OnAuthFailure registers fn and returns a function that removes it again.
func (c *Client) OnAuthFailure(fn AuthFailureHook) (unregister func()) {
	c.mu.Lock()
	id := c.nextHook
	c.nextHook++
	c.hooks[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.hooks, id)
			c.mu.Unlock()
		})
	}
}

// HasSession reports whether the jar holds any cookie for the backend origin.
func (c *Client) HasSession() bool {
	return len(c.jar.Cookies(c.origin)) > 0
}

// Do sends one request. in is JSON-encoded when non-nil, and a 2xx body is
// decoded into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	l := c.logger.With(zap.String("method", "Do"), zap.String("http_method", method), zap.String("path", path))

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		l.Debug("Backend request failed", zap.Error(err))
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		statusErr := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(snippet)}
		if isAuthStatus(resp.StatusCode) && !interceptionDisabled(ctx) {
			l.Warn("Backend rejected credentials", zap.Int("status", resp.StatusCode))
			c.fireAuthFailure(ctx, AuthFailure{Method: method, Path: path, StatusCode: resp.StatusCode})
		}
		return statusErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) fireAuthFailure(ctx context.Context, f AuthFailure) {
	c.mu.Lock()
	hooks := make([]AuthFailureHook, 0, len(c.hooks))
	for _, h := range c.hooks {
		hooks = append(hooks, h)
	}
	c.mu.Unlock()

	for _, h := range hooks {
		h(ctx, f)
	}
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
