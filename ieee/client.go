package ieee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"survey-collector/config"
	"survey-collector/logger"
)

// Client talks to the IEEE Xplore REST endpoints and article pages
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	issuesURL   string
	magazineURL string
	headers     map[string]string
	skipTitles  map[string]struct{}
	maxBody     int64
	logger      *logger.Logger

	rateLimit   time.Duration
	rateMu      sync.Mutex
	lastRequest time.Time

	nameMu   sync.Mutex
	magazine string
}

// NewClient creates a new IEEE client from the source configuration
func NewClient(cfg config.SourceConfig, log *logger.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", cfg.BaseURL)
	}

	if log == nil {
		log = logger.New("ieee-client")
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	skip := make(map[string]struct{}, len(cfg.SkipTitles))
	for _, title := range cfg.SkipTitles {
		skip[normalizeTitle(title)] = struct{}{}
	}

	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultRequestTimeoutSec) * time.Second
	}

	maxBodyKb := cfg.MaxBodyKb
	if maxBodyKb <= 0 {
		maxBodyKb = config.DefaultMaxBodyKb
	}

	var rateLimit time.Duration
	if cfg.RateLimit > 0 {
		rateLimit = time.Second / time.Duration(cfg.RateLimit)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:     base,
		issuesURL:   cfg.IssuesURL,
		magazineURL: cfg.MagazineURL,
		headers:     headers,
		skipTitles:  skip,
		maxBody:     int64(maxBodyKb) * 1024,
		logger:      log,
		rateLimit:   rateLimit,
	}, nil
}

// response is a fully read upstream reply
type response struct {
	status int
	body   []byte
}

// get issues a GET request with the configured browser headers
func (c *Client) get(ctx context.Context, target string) (*response, error) {
	return c.do(ctx, http.MethodGet, target, nil)
}

// postJSON issues a POST request with payload encoded as JSON
func (c *Client) postJSON(ctx context.Context, target string, payload interface{}) (*response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request payload: %w", err)
	}
	return c.do(ctx, http.MethodPost, target, data)
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte) (*response, error) {
	if err := c.waitForRateLimit(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("response body from %s exceeds %d bytes", target, c.maxBody)
	}

	return &response{status: resp.StatusCode, body: data}, nil
}

// waitForRateLimit spaces requests from all goroutines sharing the client.
// Each caller reserves the next free slot under the lock and sleeps outside it.
func (c *Client) waitForRateLimit(ctx context.Context) error {
	if c.rateLimit <= 0 {
		return nil
	}

	c.rateMu.Lock()
	now := time.Now()
	next := c.lastRequest.Add(c.rateLimit)
	if next.Before(now) {
		next = now
	}
	c.lastRequest = next
	c.rateMu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resolve turns a site-relative path into an absolute URL on the base host
func (c *Client) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", ref, err)
	}
	return c.baseURL.ResolveReference(u).String(), nil
}

func (c *Client) skipTitle(title string) bool {
	_, ok := c.skipTitles[normalizeTitle(title)]
	return ok
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
