// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package market fetches the data the thesis agents analyze.
//
// One Client talks to three providers:
//
//	Yahoo Finance  prices, fundamentals, quarterly statements, insider filings
//	Finnhub        company news
//	Reddit         retail sentiment posts
//
// Every request passes a per-provider rate limiter, is deduplicated with
// singleflight while in flight, and successful bodies are kept in an
// in-memory BadgerDB cache. Several agents ask for the same symbol data in
// the same layer, so most runs hit each URL once.
//
// Errors implement dag.KindError so agents can record the right failure
// kind with dag.FailureFrom.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Provider names used in limiter keys, logs and errors.
const (
	ProviderYahoo   = "yahoo"
	ProviderFinnhub = "finnhub"
	ProviderReddit  = "reddit"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	maxBodyBytes     = 16 << 20
)

// HTTPClient interface allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	// YahooChartURL is the base for the v8 chart API.
	YahooChartURL string `yaml:"yahoo_chart_url"`

	// YahooSummaryURL is the base for quoteSummary and crumb requests.
	YahooSummaryURL string `yaml:"yahoo_summary_url"`

	// YahooCookieURL sets the session cookie the crumb is bound to.
	YahooCookieURL string `yaml:"yahoo_cookie_url"`

	// FinnhubURL is the Finnhub REST base.
	FinnhubURL string `yaml:"finnhub_url"`

	// FinnhubKey is the Finnhub API token.
	FinnhubKey string `yaml:"-"`

	// RedditAuthURL issues application-only OAuth tokens.
	RedditAuthURL string `yaml:"reddit_auth_url"`

	// RedditURL is the OAuth API base.
	RedditURL string `yaml:"reddit_url"`

	RedditClientID     string `yaml:"-"`
	RedditClientSecret string `yaml:"-"`

	// UserAgent is sent on every request.
	UserAgent string `yaml:"user_agent"`

	// CacheTTL is how long successful responses are reused. Zero disables caching.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// RequestsPerSecond limits each provider separately.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`

	// Burst is the limiter bucket size.
	Burst int `yaml:"burst" validate:"gte=0"`

	// Timeout bounds a single HTTP request when the default client is used.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns production endpoints and limits.
func DefaultConfig() Config {
	return Config{
		YahooChartURL:     "https://query1.finance.yahoo.com",
		YahooSummaryURL:   "https://query2.finance.yahoo.com",
		YahooCookieURL:    "https://fc.yahoo.com",
		FinnhubURL:        "https://finnhub.io/api/v1",
		RedditAuthURL:     "https://www.reddit.com/api/v1/access_token",
		RedditURL:         "https://oauth.reddit.com",
		UserAgent:         defaultUserAgent,
		CacheTTL:          10 * time.Minute,
		RequestsPerSecond: 4,
		Burst:             4,
		Timeout:           30 * time.Second,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h HTTPClient) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCache sets the response cache. Nil disables caching.
func WithCache(cache *Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithInflux serves price history from InfluxDB, falling back to Yahoo
// when the query fails or the data is stale.
func WithInflux(p *InfluxPrices) Option {
	return func(c *Client) {
		c.influx = p
	}
}

// Client fetches market data.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	cfg      Config
	http     HTTPClient
	logger   *slog.Logger
	cache    *Cache
	flight   singleflight.Group
	limiters map[string]*rate.Limiter
	prices   PriceSource
	influx   *InfluxPrices

	crumbMu sync.Mutex
	crumb   string

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// New creates a Client. Empty Config fields take DefaultConfig values.
func New(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.YahooChartURL == "" {
		cfg.YahooChartURL = def.YahooChartURL
	}
	if cfg.YahooSummaryURL == "" {
		cfg.YahooSummaryURL = def.YahooSummaryURL
	}
	if cfg.YahooCookieURL == "" {
		cfg.YahooCookieURL = def.YahooCookieURL
	}
	if cfg.FinnhubURL == "" {
		cfg.FinnhubURL = def.FinnhubURL
	}
	if cfg.RedditAuthURL == "" {
		cfg.RedditAuthURL = def.RedditAuthURL
	}
	if cfg.RedditURL == "" {
		cfg.RedditURL = def.RedditURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	jar, _ := cookiejar.New(nil)
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout, Jar: jar},
		logger: slog.Default(),
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if burst <= 0 {
			burst = 1
		}
	}
	c.limiters = map[string]*rate.Limiter{
		ProviderYahoo:   rate.NewLimiter(limit, burst),
		ProviderFinnhub: rate.NewLimiter(limit, burst),
		ProviderReddit:  rate.NewLimiter(limit, burst),
	}

	for _, opt := range opts {
		opt(c)
	}
	c.prices = yahooPrices{c}
	if c.influx != nil {
		c.prices = &FallbackPrices{Primary: c.influx, Secondary: yahooPrices{c}, Logger: c.logger}
	}
	return c
}

// Prices returns the configured price history source.
func (c *Client) Prices() PriceSource {
	return c.prices
}

// wait blocks until provider's limiter allows one request.
func (c *Client) wait(ctx context.Context, provider string) error {
	lim, ok := c.limiters[provider]
	if !ok {
		return nil
	}
	if err := lim.Wait(ctx); err != nil {
		// Wait fails fast when the deadline cannot be met.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return nil
}

// request describes one GET call.
type request struct {
	provider string
	url      string
	header   http.Header
	// cacheKey overrides url as the cache and singleflight key, so secrets
	// in query strings stay out of the cache.
	cacheKey string
	noCache  bool
}

// getJSON fetches r and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, r request, out any) error {
	body, err := c.get(ctx, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &ParseError{Provider: r.provider, Err: err}
	}
	return nil
}

// get returns the body for r, from cache when possible.
func (c *Client) get(ctx context.Context, r request) ([]byte, error) {
	key := r.cacheKey
	if key == "" {
		key = r.url
	}
	key = r.provider + "|" + key

	if !r.noCache {
		if body, ok := c.cache.Get(key); ok {
			c.logger.Debug("market cache hit", slog.String("provider", r.provider), slog.String("key", key))
			return body, nil
		}
	}

	// Results are shared between callers, so the fetch must not die with
	// the first caller's context.
	ch := c.flight.DoChan(key, func() (interface{}, error) {
		return c.fetch(context.WithoutCancel(ctx), r)
	})

	select {
	case <-ctx.Done():
		return nil, &ProviderError{Provider: r.provider, Op: "GET", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		body := res.Val.([]byte)
		if !r.noCache {
			if err := c.cache.Set(key, body, c.cfg.CacheTTL); err != nil {
				c.logger.Warn("market cache write failed", slog.String("error", err.Error()))
			}
		}
		return body, nil
	}
}

// fetch performs the HTTP round trip.
func (c *Client) fetch(ctx context.Context, r request) ([]byte, error) {
	// Shared fetches still need an upper bound.
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.wait(ctx, r.provider); err != nil {
		return nil, &ProviderError{Provider: r.provider, Op: "rate limit", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, &ProviderError{Provider: r.provider, Op: "create request", Err: err}
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: r.provider, Op: "GET", Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("market request",
		slog.String("provider", r.provider),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Provider: r.provider, Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &ProviderError{Provider: r.provider, Op: "read body", Err: err}
	}
	return body, nil
}

// yahooCrumb returns the anti-forgery token quoteSummary requires.
// A failed lookup returns "" and the request is tried without it.
func (c *Client) yahooCrumb(ctx context.Context) string {
	c.crumbMu.Lock()
	defer c.crumbMu.Unlock()
	if c.crumb != "" {
		return c.crumb
	}

	// The crumb is bound to the cookie set by this first request.
	if _, err := c.fetch(ctx, request{provider: ProviderYahoo, url: c.cfg.YahooCookieURL, noCache: true}); err != nil {
		c.logger.Debug("yahoo cookie request failed", slog.String("error", err.Error()))
	}

	body, err := c.fetch(ctx, request{
		provider: ProviderYahoo,
		url:      strings.TrimRight(c.cfg.YahooSummaryURL, "/") + "/v1/test/getcrumb",
		noCache:  true,
	})
	if err != nil {
		c.logger.Warn("yahoo crumb unavailable", slog.String("error", err.Error()))
		return ""
	}
	c.crumb = strings.TrimSpace(string(body))
	return c.crumb
}
