// Package httpsource is the JSON-over-HTTP client shared by the quote and
// corporate-action gateways.
package httpsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fundledger/internal/config"
	"fundledger/internal/logger"
	"fundledger/internal/pkg/circuit"
	"fundledger/internal/pkg/symbol"
	"fundledger/internal/pkg/text"

	"github.com/patrickmn/go-cache"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// ErrNotFound marks a 404 from the upstream. It does not trip the breaker.
var ErrNotFound = errors.New("not found upstream")

const maxBodyBytes = 4 << 20

// Client issues rate-limited GETs, caches parsed bodies and stops calling an
// upstream that keeps failing.
type Client struct {
	name       string
	baseURL    *url.URL
	headers    map[string]string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *cache.Cache
	ttl        time.Duration
	breaker    *circuit.Breaker
}

func New(name string, cfg config.HTTPSourceConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("%s: base_url cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: parse base_url failed: %w", name, err)
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	c := &Client{
		name:       name,
		baseURL:    parsed,
		headers:    cfg.Headers,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, burst),
		ttl:        cfg.CacheTTL(),
	}
	if c.ttl > 0 {
		c.cache = cache.New(c.ttl, 2*c.ttl)
	}
	if cfg.BreakerThreshold > 0 {
		c.breaker = circuit.New(name, cfg.BreakerThreshold, cfg.BreakerCooldown())
	}
	return c, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Get fetches path with query and returns the parsed JSON body.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (gjson.Result, error) {
	endpoint := c.resolve(path, query)
	if c.cache != nil {
		if hit, ok := c.cache.Get(endpoint); ok {
			return hit.(gjson.Result), nil
		}
	}
	var body gjson.Result
	err := c.breaker.Do(func() error {
		var err error
		body, err = c.fetch(ctx, endpoint)
		return err
	}, func(err error) bool { return errors.Is(err, ErrNotFound) })
	if err != nil {
		return gjson.Result{}, err
	}
	if c.cache != nil {
		c.cache.Set(endpoint, body, c.ttl)
	}
	return body, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) (gjson.Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("call %s failed: %w", c.name, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read %s response failed: %w", c.name, err)
	}
	logger.Debugf("%s GET %s -> %d in %s", c.name, endpoint, resp.StatusCode, time.Since(started).Truncate(time.Millisecond))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return gjson.Result{}, ErrNotFound
	case resp.StatusCode >= 300:
		msg := text.Truncate(strings.TrimSpace(string(data)), 256)
		return gjson.Result{}, fmt.Errorf("%s returned %s: %s", c.name, resp.Status, msg)
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("%s returned invalid json", c.name)
	}
	return gjson.ParseBytes(data), nil
}

func (c *Client) resolve(path string, query url.Values) string {
	base := *c.baseURL
	trimmed := strings.TrimSpace(path)
	if trimmed != "" && !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + trimmed
	base.RawPath = ""
	base.Fragment = ""
	// Encode sorts keys, so equal queries share a cache entry.
	base.RawQuery = query.Encode()
	return base.String()
}

// Query builds the symbol/market query for a lookup, plus any extra pairs. The
// symbol is rendered in the source's SymbolFormat.
func Query(cfg config.HTTPSourceConfig, code, market string, extra ...string) url.Values {
	q := url.Values{}
	if cfg.SymbolParam != "" {
		conv, ok := symbol.For(cfg.SymbolFormat)
		if !ok {
			conv = symbol.Plain
		}
		q.Set(cfg.SymbolParam, conv.ToVendor(symbol.Symbol{Code: code, Market: market}))
	}
	if cfg.MarketParam != "" && market != "" {
		q.Set(cfg.MarketParam, market)
	}
	for i := 0; i+1 < len(extra); i += 2 {
		if extra[i] != "" {
			q.Set(extra[i], extra[i+1])
		}
	}
	return q
}
