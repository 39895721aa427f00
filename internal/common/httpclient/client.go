// Package httpclient provides the outbound HTTP client used for OAuth token
// endpoint calls. Every request carries a bounded timeout; transport failures
// are classified as TIMEOUT or NETWORK_ERROR so callers can branch on them.
// No automatic retry is performed; retrying is a higher layer's decision.
package httpclient

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"triggerskit/internal/common/errors"
	"triggerskit/internal/common/logging"
)

// DefaultTimeout bounds every outbound HTTP call
const DefaultTimeout = 30 * time.Second

// ClientConfig holds HTTP client configuration
type ClientConfig struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	Transport           http.RoundTripper
}

// DefaultClientConfig returns default HTTP client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:             DefaultTimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Option is a function that modifies ClientConfig
type Option func(*ClientConfig)

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

// WithTransport sets a custom transport
func WithTransport(transport http.RoundTripper) Option {
	return func(c *ClientConfig) {
		c.Transport = transport
	}
}

// New creates a new HTTP client with the given options
func New(opts ...Option) *http.Client {
	cfg := DefaultClientConfig()

	for _, opt := range opts {
		opt(&cfg)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.IdleConnTimeout,
		}
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}
}

// Response carries the status and raw body of a completed HTTP call
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status code is in the 2xx range
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// FormPoster posts url-encoded forms through a circuit breaker. Token
// endpoints are the sole consumer; the breaker keeps a flapping endpoint
// from being hammered by every expiring token.
type FormPoster struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  logging.Logger
}

// NewFormPoster creates a form poster named after the endpoint it serves
func NewFormPoster(name string, client *http.Client, logger logging.Logger) *FormPoster {
	if client == nil {
		client = New()
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				logging.Field{Key: "breaker", Value: name},
				logging.Field{Key: "from", Value: from.String()},
				logging.Field{Key: "to", Value: to.String()},
			)
		},
	}

	return &FormPoster{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// PostForm sends a form-urlencoded POST and returns the response regardless
// of status code; callers decide what a non-2xx status means. configure, when
// non-nil, runs on the request before it is sent (e.g. to add Basic auth).
func (p *FormPoster) PostForm(ctx context.Context, endpoint string, form url.Values, configure func(*http.Request)) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, errors.InternalError("failed to create token request", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if configure != nil {
		configure(req)
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		resp, httpErr := p.client.Do(req)
		if httpErr != nil {
			return nil, httpErr
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}

		return &Response{StatusCode: resp.StatusCode, Body: body}, nil
	})
	if err != nil {
		return nil, Classify(ctx, err)
	}

	return result.(*Response), nil
}

// Classify maps a transport error to the TIMEOUT / NETWORK_ERROR taxonomy
func Classify(ctx context.Context, err error) *errors.AppError {
	if err == nil {
		return nil
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		return errors.TimeoutError("outbound request")
	case isTimeout(err):
		return errors.TimeoutError("outbound request")
	case err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests:
		return errors.NetworkError("endpoint temporarily unavailable", err)
	default:
		return errors.NetworkError("request failed", err)
	}
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}
