package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-fetcher/internal/metrics"
)

// ErrThrottled marks a 429 from the index API.
var ErrThrottled = errors.New("index api throttled the request")

const defaultBaseURL = "http://web.archive.org/cdx/search/cdx"

// StatusError reports a non-200 index response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("index api returned status %d: %s", e.StatusCode, e.Body)
}

// Unwrap exposes ErrThrottled for 429 responses.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return ErrThrottled
	}
	return nil
}

// Retryable reports whether a retry could plausibly succeed.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Pacer blocks until the next request to url may be sent.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// ClientConfig configures the CDX HTTP client.
type ClientConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client fetches and decodes CDX pages.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	pacer      Pacer
	retry      *RetryPolicy
	logger     *zap.Logger
}

// NewClient builds a Client. pacer and retry may be nil.
func NewClient(cfg ClientConfig, pacer Pacer, retry *RetryPolicy, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if retry == nil {
		retry = NewRetryPolicy(0, time.Second, time.Second)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		pacer:      pacer,
		retry:      retry,
		logger:     logger,
	}
}

// FetchPage requests one page and returns the decoded rows.
func (c *Client) FetchPage(ctx context.Context, q Query) ([][]string, error) {
	reqURL := c.baseURL + "?" + q.Values().Encode()
	for attempt := 0; ; attempt++ {
		rows, err := c.fetchOnce(ctx, reqURL)
		if err == nil {
			metrics.ObserveIndexPage("ok")
			return rows, nil
		}
		if !c.retry.ShouldRetry(err, attempt) {
			metrics.ObserveIndexPage("error")
			return nil, err
		}
		metrics.ObserveIndexPage("retry")
		wait := c.retry.Backoff(attempt)
		c.logger.Warn("index page failed, retrying",
			zap.String("domain", q.Domain),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("wait for retry: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func (c *Client) fetchOnce(ctx context.Context, reqURL string) ([][]string, error) {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx, reqURL); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build index request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("index request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read index response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(snippet)}
	}
	return decodeRows(body)
}

func decodeRows(body []byte) ([][]string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var rows [][]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode index response: %w", err)
	}
	return rows, nil
}
