package serp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// ClientConfig controls proxy API access.
type ClientConfig struct {
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Render     bool
}

// Client posts Google search URLs to a scraping proxy API and returns the raw
// SERP HTML. Transient failures are retried with jittered backoff.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	retry      *ExponentialRetryPolicy
	logger     *zap.Logger
}

// proxyRequest is the JSON body the proxy API expects.
type proxyRequest struct {
	URL     string `json:"url"`
	Country string `json:"country,omitempty"`
	Render  bool   `json:"render,omitempty"`
}

// NewClient builds a Client.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	retryPolicy := NewExponentialRetryPolicy()
	if cfg.MaxRetries > 0 {
		retryPolicy = retryPolicy.WithAttempts(cfg.MaxRetries)
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retry:  retryPolicy,
		logger: logger,
	}
}

// BuildSearchURL assembles the Google search URL for one page of a query.
func BuildSearchURL(query string, page, perPage int, country, language string) string {
	if perPage <= 0 {
		perPage = 10
	}
	searchURL := fmt.Sprintf("https://www.google.com/search?q=%s&num=%d&safe=off&pws=0",
		url.QueryEscape(query), perPage)
	if language != "" {
		searchURL += "&hl=" + url.QueryEscape(language)
	}
	if country != "" {
		searchURL += "&gl=" + url.QueryEscape(country)
	}
	if page > 1 {
		searchURL += fmt.Sprintf("&start=%d", (page-1)*perPage)
	}
	return searchURL
}

// FetchPage retrieves the raw HTML for one SERP page via the proxy.
func (c *Client) FetchPage(ctx context.Context, req BatchRequest, page int) ([]byte, error) {
	searchURL := BuildSearchURL(req.Query, page, req.PerPage, req.Country, req.Language)

	var lastErr error
	for attempt := 0; ; attempt++ {
		body, err := c.post(ctx, searchURL, req.Country)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !c.retry.ShouldRetry(err, attempt) {
			break
		}
		wait := c.retry.Backoff(attempt)
		if ra := retryAfter(err); ra > wait {
			wait = ra
		}
		c.logger.Warn("serp fetch retrying",
			zap.String("query", req.Query),
			zap.Int("page", page),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("serp fetch canceled: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("serp fetch page %d: %w", page, lastErr)
}

func (c *Client) post(ctx context.Context, searchURL, country string) ([]byte, error) {
	payload, err := json.Marshal(proxyRequest{
		URL:     searchURL,
		Country: country,
		Render:  c.cfg.Render,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal proxy request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build proxy request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("proxy request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read proxy response: %w", err)
	}

	if clsErr := classifyStatus(resp.StatusCode, snippet(body)); clsErr != nil {
		if apiErr, ok := clsErr.(*APIError); ok {
			apiErr.Detail = withRetryAfter(apiErr.Detail, resp.Header)
		}
		return nil, clsErr
	}
	return body, nil
}

// snippet truncates a response body for error messages.
func snippet(body []byte) string {
	const max = 120
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}

// withRetryAfter stashes a Retry-After header into the error detail so the
// retry loop can honor it without holding the response.
func withRetryAfter(detail string, h http.Header) string {
	if ra := h.Get("Retry-After"); ra != "" {
		return "retry-after=" + ra + " " + detail
	}
	return detail
}

// retryAfter extracts a Retry-After hint from a classified error, if any.
func retryAfter(err error) time.Duration {
	apiErr, ok := err.(*APIError)
	if !ok {
		return 0
	}
	var seconds int
	if _, scanErr := fmt.Sscanf(apiErr.Detail, "retry-after=%d", &seconds); scanErr != nil {
		return 0
	}
	if seconds <= 0 || seconds > 120 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
