package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/resilience"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/tracing"
)

// ErrEmptyResponse is returned when a body was expected but none arrived.
var ErrEmptyResponse = errors.New("empty response body")

// StatusError reports a non-2xx (or unexpected) response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
}

// Settings tune the shared backend client.
type Settings struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	RetryCount  int
	RateLimit   float64
	UserAgent   string
	// BreakerThreshold consecutive transport errors or 5xx responses open
	// the circuit for BreakerCooldown. Zero uses the breaker defaults.
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

// Client wraps resty with rate limiting and bearer auth for the backend.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	baseURL string
	log     *zap.Logger
	mu      sync.RWMutex
}

// New creates the shared client. RetryCount defaults to zero: callers
// surface transport errors instead of retrying internally.
func New(s Settings, log *zap.Logger) *Client {
	// Pooled transport only; retries stay with resty so they can be disabled.
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	if s.UserAgent == "" {
		s.UserAgent = "SuperAppHost/1.0"
	}

	r := resty.New().
		SetTimeout(s.Timeout).
		SetRetryCount(s.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("User-Agent", s.UserAgent).
		SetHeader("Accept", "application/json")
	r.SetTransport(retryClient.HTTPClient.Transport)
	if s.AccessToken != "" {
		r.SetAuthToken(s.AccessToken)
	}

	c := &Client{
		resty:   r,
		limiter: rate.NewLimiter(rate.Inf, 0),
		baseURL: strings.TrimRight(s.BaseURL, "/"),
		log:     logging.OrNop(log),
	}
	c.breaker = resilience.New("backend", resilience.Settings{
		Threshold: s.BreakerThreshold,
		Cooldown:  s.BreakerCooldown,
		IsFailure: isBackendFailure,
		OnStateChange: func(name string, from, to resilience.State) {
			c.log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
	c.SetRateLimit(s.RateLimit)
	return c
}

// Breaker exposes the backend circuit breaker.
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

// isBackendFailure counts transport errors and 5xx responses. Client
// errors say nothing about the backend's health.
func isBackendFailure(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled)
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL joins path onto the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// SetBearerAuth replaces the access token used for every request.
func (c *Client) SetBearerAuth(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resty.SetAuthToken(token)
}

// SetRateLimit configures rate limiting (requests per second)
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Request creates new request after waiting on the rate limiter.
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	req := c.resty.R().SetContext(ctx)
	tracing.Inject(ctx, req.Header)
	return req, nil
}

// GetJSON issues a GET against a base-relative path and decodes the body.
func (c *Client) GetJSON(ctx context.Context, path string, query map[string]string, out any) error {
	req, err := c.Request(ctx)
	if err != nil {
		return err
	}
	url := c.URL(path)
	var resp *resty.Response
	err = c.breaker.Do(func() error {
		var err error
		resp, err = req.SetQueryParams(query).Get(url)
		if err != nil {
			return fmt.Errorf("GET %s: %w", url, err)
		}
		return c.check(resp, 0)
	})
	if err != nil {
		return err
	}
	// resty only fills SetResult for JSON content types.
	if len(resp.Body()) == 0 {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// PostJSON posts body and requires want (or any 2xx when want is zero).
func (c *Client) PostJSON(ctx context.Context, path string, body any, want int) error {
	req, err := c.Request(ctx)
	if err != nil {
		return err
	}
	url := c.URL(path)
	return c.breaker.Do(func() error {
		resp, err := req.SetHeader("Content-Type", "application/json").SetBody(body).Post(url)
		if err != nil {
			return fmt.Errorf("POST %s: %w", url, err)
		}
		return c.check(resp, want)
	})
}

// Download fetches an absolute URL as raw bytes.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := c.Request(ctx)
	if err != nil {
		return nil, err
	}
	var resp *resty.Response
	err = c.breaker.Do(func() error {
		var err error
		resp, err = req.SetHeader("Accept", "*/*").Get(url)
		if err != nil {
			return fmt.Errorf("GET %s: %w", url, err)
		}
		return c.check(resp, 0)
	})
	if err != nil {
		return nil, err
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, ErrEmptyResponse
	}
	return body, nil
}

func (c *Client) check(resp *resty.Response, want int) error {
	ok := resp.IsSuccess()
	if want != 0 {
		ok = resp.StatusCode() == want
	}
	if ok {
		return nil
	}
	c.log.Warn("Backend request failed",
		tracing.Field(resp.Request.Context()),
		zap.String("method", resp.Request.Method),
		zap.String("url", resp.Request.URL),
		zap.Int("status", resp.StatusCode()))
	return &StatusError{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL,
		StatusCode: resp.StatusCode(),
		Body:       truncate(resp.String(), 512),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
