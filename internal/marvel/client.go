package marvel

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/comixcatalog/etl/internal/config"
	"github.com/comixcatalog/etl/internal/metrics"
)

// Client executes signed GET requests against the gateway with bounded
// retry and increasing backoff. It holds no state beyond configuration and
// is safe to share.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	auth        authenticator
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *zap.Logger
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.MarvelConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: cfg.HTTPTimeout()},
		auth:        newAuthenticator(cfg.PublicKey, cfg.PrivateKey),
		maxAttempts: cfg.MaxRetries,
		baseDelay:   time.Duration(cfg.BackoffInitialMs) * time.Millisecond,
		maxDelay:    time.Duration(cfg.BackoffMaxMs) * time.Millisecond,
		logger:      logger,
	}
}

// Get fetches one page from endpoint (e.g. "series", "comics") with the
// given query parameters. Authentication parameters are recomputed on every
// attempt. 5xx responses and transport timeouts are retried up to the
// attempt ceiling; 4xx responses and embedded non-success codes fail fast.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*Page, error) {
	var lastStatus int
	var lastBody string
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.ObserveUpstreamRetry()
			if err := c.wait(ctx, c.backoff(attempt-1)); err != nil {
				return nil, err
			}
		}

		page, status, body, err := c.do(ctx, endpoint, query)
		switch {
		case err == nil:
			metrics.ObserveUpstreamRequest(endpoint, "ok")
			return page, nil

		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil, err

		case status == 0:
			// Transport-level failure (timeout, reset): transient.
			metrics.ObserveUpstreamRequest(endpoint, outcomeForTransport(err))
			c.logger.Warn("gateway transport failure",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.maxAttempts),
				zap.Error(err))
			lastErr = err

		case status >= http.StatusInternalServerError:
			metrics.ObserveUpstreamRequest(endpoint, "5xx")
			c.logger.Warn("gateway 5xx",
				zap.String("endpoint", endpoint),
				zap.Int("status", status),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.maxAttempts))
			lastStatus, lastBody = status, body

		default:
			// 4xx, embedded failure code, or an unreadable body: not
			// retryable.
			metrics.ObserveUpstreamRequest(endpoint, "rejected")
			return nil, &APIError{
				Kind:       KindClientRejected,
				Endpoint:   endpoint,
				StatusCode: status,
				Body:       body,
				Message:    rejectionMessage(err, body),
				Err:        err,
			}
		}
	}

	apiErr := &APIError{
		Kind:       KindRetryExhausted,
		Endpoint:   endpoint,
		StatusCode: lastStatus,
		Body:       lastBody,
		Message:    fmt.Sprintf("gave up after %d attempts", c.maxAttempts),
		Err:        lastErr,
	}
	c.logger.Error("gateway retries exhausted",
		zap.String("endpoint", endpoint),
		zap.Int("last_status", lastStatus),
		zap.String("body", lastBody),
		zap.Error(lastErr))
	return nil, apiErr
}

// do performs a single signed request. It returns the decoded page on
// success; otherwise the HTTP status (0 for transport errors), a truncated
// body for diagnostics, and the error.
func (c *Client) do(ctx context.Context, endpoint string, query url.Values) (*Page, int, string, error) {
	signed := url.Values{}
	for k, vs := range query {
		signed[k] = vs
	}
	c.auth.sign(signed)

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, signed.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return nil, resp.StatusCode, "", fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, snippet(body), fmt.Errorf("http %d", resp.StatusCode)
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, resp.StatusCode, snippet(body), fmt.Errorf("decode envelope: %w", err)
	}
	if env.Code != http.StatusOK {
		return nil, resp.StatusCode, snippet(body),
			fmt.Errorf("embedded status %d (%s)", env.Code, env.Status)
	}
	return &env.Data, resp.StatusCode, "", nil
}

// backoff returns a jittered exponential delay for the given attempt.
func (c *Client) backoff(attempt int) time.Duration {
	delay := float64(c.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.maxDelay) {
		delay = float64(c.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func outcomeForTransport(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "transport"
}

func rejectionMessage(err error, body string) string {
	if err != nil {
		return err.Error()
	}
	return body
}
