// Package httpclient sends JSON requests to a fixed base URL and classifies
// failures into Kinds. It is shared by the CRM and backend clients.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	DefaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of a failed response is kept in Error.Body.
	maxErrorBody = 4096
)

// Authenticator attaches credentials to an outgoing request.
type Authenticator func(req *http.Request)

// BearerAuth sets "Authorization: Bearer <token>".
func BearerAuth(token string) Authenticator {
	t := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	return func(req *http.Request) {
		t.SetAuthHeader(req)
	}
}

// HeaderAuth sets a custom header carrying an API key.
func HeaderAuth(name, key string) Authenticator {
	return func(req *http.Request) {
		req.Header.Set(name, key)
	}
}

// Executor performs requests against one base URL. Its configuration is fixed
// at construction and it is safe for concurrent use.
type Executor struct {
	name       string
	baseURL    string
	headers    http.Header
	auth       Authenticator
	timeout    time.Duration
	httpClient *http.Client
	logger     *logrus.Logger
}

// Config describes an Executor.
type Config struct {
	// Name identifies the executor in log lines.
	Name    string
	BaseURL string
	Headers http.Header
	Auth    Authenticator
	// Timeout is the default per-request timeout; zero means DefaultTimeout.
	Timeout time.Duration
}

func New(cfg Config, logger *logrus.Logger) *Executor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	headers := cfg.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Executor{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: headers,
		auth:    cfg.Auth,
		timeout: timeout,
		// Keep-alives are off so that every call opens and closes its own connection.
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: true,
			},
		},
		logger: logger,
	}
}

// BaseURL returns the base every path is resolved against.
func (e *Executor) BaseURL() string {
	return e.baseURL
}

type requestOptions struct {
	query   url.Values
	body    any
	headers http.Header
	timeout time.Duration
}

// Option customizes a single request.
type Option func(*requestOptions)

// WithQuery adds query parameters. Multi-valued keys are sent repeated.
func WithQuery(q url.Values) Option {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}
		for k, vs := range q {
			for _, v := range vs {
				o.query.Add(k, v)
			}
		}
	}
}

// WithJSON sends body encoded as JSON.
func WithJSON(body any) Option {
	return func(o *requestOptions) {
		o.body = body
	}
}

// WithHeaders replaces the default headers, credentials included.
func WithHeaders(h http.Header) Option {
	return func(o *requestOptions) {
		o.headers = h
	}
}

// WithTimeout overrides the default timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *requestOptions) {
		o.timeout = d
	}
}

// Do sends the request and decodes a successful JSON response into out
// (when out is non-nil). Failures are returned as *Error.
func (e *Executor) Do(ctx context.Context, method, path string, out any, opts ...Option) error {
	o := requestOptions{timeout: e.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	u := e.resolve(path, o.query)
	log := e.logger.WithFields(logrus.Fields{
		"client": e.name,
		"method": method,
		"url":    u,
	})

	fail := func(err *Error) error {
		log.WithField("kind", err.Kind.String()).WithError(err).Error("request failed")
		return err
	}

	var body io.Reader
	if o.body != nil {
		raw, err := json.Marshal(o.body)
		if err != nil {
			return fail(&Error{Kind: KindTransport, Method: method, URL: u, Err: fmt.Errorf("encode body: %w", err)})
		}
		body = bytes.NewReader(raw)
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fail(&Error{Kind: KindTransport, Method: method, URL: u, Err: err})
	}
	if o.headers != nil {
		req.Header = o.headers.Clone()
	} else {
		req.Header = e.headers.Clone()
		if e.auth != nil {
			e.auth(req)
		}
	}
	if o.body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debug("sending request")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fail(&Error{Kind: transportKind(err), Method: method, URL: u, Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		kind := KindStatus
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			kind = KindAuth
		case http.StatusNotFound:
			kind = KindNotFound
		}
		return fail(&Error{
			Kind:       kind,
			Method:     method,
			URL:        u,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(text)),
		})
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(&Error{Kind: transportKind(err), Method: method, URL: u, StatusCode: resp.StatusCode, Err: err})
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fail(&Error{Kind: KindTransport, Method: method, URL: u, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)})
	}
	return nil
}

func (e *Executor) resolve(path string, q url.Values) string {
	u := e.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(q) == 0 {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + q.Encode()
}

func transportKind(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindTransport
}
