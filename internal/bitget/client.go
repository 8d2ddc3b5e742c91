package bitget

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://api.bitget.com"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0

	// DefaultRequestsPerSecond stays under Bitget's private endpoint limit.
	DefaultRequestsPerSecond = 8
)

// ProductTypeUSDTFutures selects USDT-margined perpetuals on mix endpoints.
const ProductTypeUSDTFutures = "USDT-FUTURES"

// Credentials holds the read-only API key triple.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// Client is a signed Bitget private REST client. It only implements read
// endpoints; nothing here can place or cancel orders.
type Client struct {
	baseURL     string
	creds       Credentials
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	now         func() time.Time
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API host.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithRateLimit sets the request rate limit in requests per second.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithClock sets the timestamp source used for request signing.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new Bitget REST client.
func NewClient(creds Credentials, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		creds:       creds,
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-retryable error reported by the exchange.
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitget API error %s (http %d): %s", e.Code, e.HTTPStatus, e.Message)
}

// envelope is the common Bitget response wrapper.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// sign computes base64(hmac_sha256(secret, timestamp+method+pathWithQuery+body)).
func (c *Client) sign(timestamp, method, pathWithQuery, body string) string {
	mac := hmac.New(sha256.New, []byte(c.creds.APISecret))
	mac.Write([]byte(timestamp + method + pathWithQuery + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// get performs a signed GET with retries and exponential backoff. Server
// errors and rate limiting are retried; exchange-level errors are not.
func (c *Client) get(ctx context.Context, pathWithQuery string, result interface{}) error {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathWithQuery, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		ts := strconv.FormatInt(c.now().UnixMilli(), 10)
		req.Header.Set("ACCESS-KEY", c.creds.APIKey)
		req.Header.Set("ACCESS-SIGN", c.sign(ts, http.MethodGet, pathWithQuery, ""))
		req.Header.Set("ACCESS-PASSPHRASE", c.creds.Passphrase)
		req.Header.Set("ACCESS-TIMESTAMP", ts)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if d := retryAfter(resp); d > 0 {
				delay = d
			}
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(respBody, 200))
			continue
		}

		var env envelope
		if err := json.Unmarshal(respBody, &env); err != nil {
			if resp.StatusCode != http.StatusOK {
				return &APIError{HTTPStatus: resp.StatusCode, Message: truncate(respBody, 300)}
			}
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK || (env.Code != "00000" && env.Code != "0") {
			// Exchange rejected the request; retrying will not change that.
			return &APIError{HTTPStatus: resp.StatusCode, Code: env.Code, Message: env.Msg}
		}

		if result != nil && env.Data != nil {
			if err := json.Unmarshal(env.Data, result); err != nil {
				return fmt.Errorf("unmarshal data: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
