// Package dtagent is a small HTTP client bound to a single collector target.
// It enforces a per-call timeout, decodes JSON responses, and classifies
// failures as TimeoutError, HTTPError, or TransportError. It never retries.
package dtagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/peterbourgon/unixtransport"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds each call when no timeout is given.
	DefaultTimeout = 3 * time.Second

	// DefaultMaxConnsPerHost bounds the connection pool of each agent.
	DefaultMaxConnsPerHost = 2
)

// Agent performs requests against one collector target. Each agent owns its
// connection pool, which is never shared with other agents. An agent is safe
// for concurrent use.
type Agent struct {
	target    *url.URL // credentials removed
	timeout   time.Duration
	compress  bool
	transport *http.Transport
	client    *resty.Client
}

type agentConfig struct {
	timeout         time.Duration
	secret          string
	compress        bool
	maxConnsPerHost int
	logger          *zap.Logger
}

// Option configures an agent.
type Option func(*agentConfig)

// WithTimeout bounds each round trip. It must be positive.
func WithTimeout(d time.Duration) Option {
	return func(c *agentConfig) { c.timeout = d }
}

// WithSecret sends the secret as a bearer token, unless the DSN carries
// basic-auth credentials.
func WithSecret(secret string) Option {
	return func(c *agentConfig) { c.secret = secret }
}

// WithCompression gzips request bodies.
func WithCompression(enable bool) Option {
	return func(c *agentConfig) { c.compress = enable }
}

// WithMaxConnsPerHost bounds the number of connections to the target.
func WithMaxConnsPerHost(n int) Option {
	return func(c *agentConfig) { c.maxConnsPerHost = n }
}

// WithLogger receives warnings from the underlying HTTP client.
func WithLogger(logger *zap.Logger) Option {
	return func(c *agentConfig) { c.logger = logger }
}

// New returns an agent for the collector identified by dsn. Supported schemes
// are http, https, http+unix and https+unix. Credentials in the DSN are sent
// as basic auth.
func New(dsn string, opts ...Option) (*Agent, error) {
	cfg := agentConfig{
		timeout:         DefaultTimeout,
		maxConnsPerHost: DefaultMaxConnsPerHost,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (have %s)", cfg.timeout)
	}

	if cfg.maxConnsPerHost <= 0 {
		cfg.maxConnsPerHost = DefaultMaxConnsPerHost
	}

	target, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	username := target.User.Username()
	password, hasPassword := target.User.Password()
	hasUser := username != "" || hasPassword
	target.User = nil

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     cfg.maxConnsPerHost,
		MaxIdleConnsPerHost: cfg.maxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}
	unixtransport.Register(transport)

	client := resty.New().
		SetTransport(transport).
		SetTimeout(cfg.timeout).
		SetBaseURL(strings.TrimSuffix(target.String(), "/")).
		SetLogger(cfg.logger.Sugar()).
		SetDisableWarn(true).
		SetHeader("user-agent", "deeptrace-go")

	switch {
	case hasUser:
		client.SetBasicAuth(username, password)
	case cfg.secret != "":
		client.SetAuthToken(cfg.secret)
	}

	return &Agent{
		target:    target,
		timeout:   cfg.timeout,
		compress:  cfg.compress,
		transport: transport,
		client:    client,
	}, nil
}

// ParseDSN parses and validates a collector DSN.
func ParseDSN(dsn string) (*url.URL, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", redactURL(err))
	}

	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return nil, fmt.Errorf("DSN %s: host is required", u.Redacted())
		}
		if _, port, err := net.SplitHostPort(u.Host); err == nil && port == "" {
			return nil, fmt.Errorf("DSN %s: empty port", u.Redacted())
		}
	case "http+unix", "https+unix":
		if u.Path == "" {
			return nil, fmt.Errorf("DSN %s: socket path is required", u.Redacted())
		}
		// http+unix:///path/to/socket:/request/path
		if !strings.Contains(u.Path, ":") {
			u.Path += ":"
		}
	default:
		return nil, fmt.Errorf("DSN %s: unsupported scheme %q", u.Redacted(), u.Scheme)
	}

	return u, nil
}

// Target returns the DSN without credentials.
func (a *Agent) Target() string {
	return a.target.String()
}

// Timeout returns the per-call timeout.
func (a *Agent) Timeout() time.Duration {
	return a.timeout
}

// Close releases idle connections.
func (a *Agent) Close() {
	a.transport.CloseIdleConnections()
}

// Request is the optional part of a call.
type Request struct {
	Header http.Header
	Query  url.Values

	// Body is sent as-is when it's a []byte or string, and JSON encoded
	// otherwise. A nil body sends no content.
	Body any
}

// Response is a successful (status < 400) or failed (HTTPError) response.
type Response struct {
	StatusCode int
	Header     http.Header

	// Body is the decoded JSON value when the content type is JSON, and the
	// raw text otherwise.
	Body any

	// Raw is the undecoded response body.
	Raw []byte

	Took time.Duration
}

// Get performs a GET request.
func (a *Agent) Get(ctx context.Context, path string, req Request) (*Response, error) {
	return a.Do(ctx, http.MethodGet, path, req)
}

// Post performs a POST request.
func (a *Agent) Post(ctx context.Context, path string, req Request) (*Response, error) {
	return a.Do(ctx, http.MethodPost, path, req)
}

// Do performs a single request against the target. Path is relative to the
// target. The returned error is a *TimeoutError, *HTTPError or *TransportError,
// or a plain error if the request could not be built.
func (a *Agent) Do(ctx context.Context, method, path string, req Request) (*Response, error) {
	r := a.client.R().SetContext(ctx)

	if req.Header != nil {
		r.SetHeaderMultiValues(req.Header)
	}

	if req.Query != nil {
		r.SetQueryParamsFromValues(req.Query)
	}

	if req.Body != nil {
		body, contentType, err := encodeBody(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		if a.compress {
			if body, err = compressBody(body); err != nil {
				return nil, fmt.Errorf("compress request body: %w", err)
			}
			r.SetHeader("content-encoding", "gzip")
		}
		if r.Header.Get("content-type") == "" {
			r.SetHeader("content-type", contentType)
		}
		r.SetBody(body)
	}

	resp, err := r.Execute(method, path)
	if err != nil {
		return nil, a.classify(method, path, resp, err)
	}

	res := &Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Raw:        resp.Body(),
		Took:       resp.Time(),
	}
	res.Body = decodeBody(res.Header.Get("content-type"), res.Raw)

	if res.StatusCode >= 400 {
		return res, &HTTPError{Response: res}
	}

	return res, nil
}

func (a *Agent) classify(method, path string, resp *resty.Response, err error) error {
	var rawReq *http.Request
	if resp != nil && resp.Request != nil {
		rawReq = resp.Request.RawRequest
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutError{Request: rawReq, Timeout: a.timeout, Err: err}
	}

	target := a.target.String() + path
	if rawReq != nil {
		target = rawReq.URL.Redacted()
	}

	return &TransportError{Method: method, URL: target, Err: err}
}

func encodeBody(body any) ([]byte, string, error) {
	switch x := body.(type) {
	case []byte:
		return x, "application/octet-stream", nil
	case string:
		return []byte(x), "text/plain; charset=utf-8", nil
	default:
		buf, err := json.Marshal(x)
		if err != nil {
			return nil, "", err
		}
		return buf, "application/json; charset=utf-8", nil
	}
}

func compressBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeBody returns the JSON value of raw for JSON content types, and raw
// as text otherwise, or when it isn't valid JSON.
func decodeBody(contentType string, raw []byte) any {
	if !IsJSON(contentType) || len(bytes.TrimSpace(raw)) == 0 {
		return string(raw)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// IsJSON reports whether the content type is application/json or a +json
// structured syntax type.
func IsJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
