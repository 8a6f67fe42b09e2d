// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/icd9cms/pkg/hierarchy"
	"github.com/AleutianAI/icd9cms/pkg/logging"
	"github.com/AleutianAI/icd9cms/pkg/telemetry"
)

const tracerName = "icd9.acquire"

// maxPageBytes caps a single page read.
const maxPageBytes = 8 << 20

// =============================================================================
// Configuration
// =============================================================================

// Config configures acquisition.
type Config struct {
	// BaseURL of the hierarchy site.
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// RootResource is the path of the top-level listing, relative to BaseURL.
	RootResource string `yaml:"root_resource" validate:"required"`

	// DatasetPath is the CMS descriptions workbook. Supports ~ expansion.
	DatasetPath string `yaml:"dataset_path"`

	// RequestsPerSecond is the sustained request rate.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`

	// Burst is the number of requests allowed back to back.
	Burst int `yaml:"burst" validate:"gte=1"`

	// MaxConcurrency bounds in-flight page fetches.
	MaxConcurrency int `yaml:"max_concurrency" validate:"gte=1,lte=64"`

	// MaxRetries is the number of extra attempts for a retryable failure.
	MaxRetries int `yaml:"max_retries" validate:"gte=0,lte=10"`

	// RetryBackoff is the wait before the first retry; it doubles per attempt.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// RequestTimeout bounds one page request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"user_agent"`
}

// DefaultConfig returns the settings used against the public site: one
// request every five seconds, a single page in flight.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "http://www.icd9data.com",
		RootResource:      "2015/Volume1/default.htm",
		DatasetPath:       "~/.icd9/CMS32_DESC_LONG_SHORT_DX.xlsx",
		RequestsPerSecond: 0.2,
		Burst:             1,
		MaxConcurrency:    1,
		MaxRetries:        2,
		RetryBackoff:      2 * time.Second,
		RequestTimeout:    30 * time.Second,
		UserAgent:         "icd9cms/1.0 (+https://github.com/AleutianAI/icd9cms)",
	}
}

// =============================================================================
// Crawler
// =============================================================================

// HTTPClient is the subset of *http.Client used by the crawler.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// CrawlStats summarizes a crawl.
type CrawlStats struct {
	Pages    int
	Branches int
	Lowest   int
	Retries  int
}

// Crawler walks the hierarchy site and builds branch nodes.
//
// # Description
//
// Pages are fetched level by level. Within a level up to MaxConcurrency
// pages are in flight, and every request first waits on a shared rate
// limiter. Nodes are linked only after the whole level has been fetched,
// in level order, so the tree does not depend on response timing.
//
// # Thread Safety
//
// A Crawler may be reused, but Crawl calls must not overlap.
type Crawler struct {
	config  Config
	base    *url.URL
	client  HTTPClient
	limiter *rate.Limiter
	logger  *logging.Logger
	onLevel func(depth, pages int)

	pages    atomic.Int64
	branches atomic.Int64
	lowest   atomic.Int64
	retries  atomic.Int64

	// seen is touched only by the goroutine running Crawl.
	seen map[string]struct{}
}

// NewCrawler creates a Crawler.
//
// # Inputs
//
//   - cfg: Acquisition settings. BaseURL must be absolute.
//   - client: HTTP client; nil uses an *http.Client with cfg.RequestTimeout.
//   - logger: Optional; nil discards logs.
//
// # Outputs
//
//   - *Crawler: Ready to Crawl.
//   - error: ErrInvalidConfig for a malformed base URL or non-positive limits.
func NewCrawler(cfg Config, client HTTPClient, logger *logging.Logger) (*Crawler, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrInvalidConfig, cfg.BaseURL)
	}
	if cfg.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("%w: requests_per_second must be positive", ErrInvalidConfig)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &Crawler{
		config:  cfg,
		base:    base,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}, nil
}

// OnLevel registers fn to be called before each level is fetched.
func (c *Crawler) OnLevel(fn func(depth, pages int)) {
	c.onLevel = fn
}

// pending is a node whose page has yet to be fetched.
type pending struct {
	node *hierarchy.Node
	url  string
}

// Crawl fetches the root resource and attaches the whole branch structure
// below root.
//
// # Description
//
// Every created node is registered in index as soon as it is linked. Entries
// of a lowest-level page whose code equals the page's own node are dropped,
// since a category page lists itself. A code seen twice is skipped with a
// warning so a cyclic link cannot loop forever; the copy kept is the first
// in breadth-first page order regardless of MaxConcurrency. An entry
// without a description is named by its display code.
//
// # Inputs
//
//   - ctx: Cancels outstanding requests.
//   - root: Node receiving the top-level chapters, normally the sentinel.
//   - index: Index to register created nodes in.
//
// # Outputs
//
//   - CrawlStats: Counters for the run.
//   - error: *FetchError, ErrUnexpectedPage, or a context error.
func (c *Crawler) Crawl(ctx context.Context, root *hierarchy.Node, index *hierarchy.Index) (CrawlStats, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Crawler.Crawl")
	defer span.End()

	c.reset()
	start := time.Now()

	rootURL, err := c.resolve(c.config.RootResource)
	if err != nil {
		telemetry.RecordError(span, err)
		return c.stats(), err
	}
	page, err := c.fetch(ctx, rootURL)
	if err != nil {
		telemetry.RecordError(span, err)
		return c.stats(), err
	}
	if page.Kind != PageBranch {
		err := fmt.Errorf("%w: root resource %s has no definition list", ErrUnexpectedPage, rootURL)
		telemetry.RecordError(span, err)
		return c.stats(), err
	}

	level, err := c.attach(root, page, index)
	if err != nil {
		telemetry.RecordError(span, err)
		return c.stats(), err
	}

	for depth := 1; len(level) > 0; depth++ {
		c.logger.Info("crawling level", "depth", depth, "pages", len(level))
		if c.onLevel != nil {
			c.onLevel(depth, len(level))
		}
		if level, err = c.crawlLevel(ctx, level, index); err != nil {
			telemetry.RecordError(span, err)
			return c.stats(), err
		}
	}

	stats := c.stats()
	span.SetAttributes(
		attribute.Int("crawl.pages", stats.Pages),
		attribute.Int("crawl.branches", stats.Branches),
		attribute.Int("crawl.lowest", stats.Lowest),
	)
	c.logger.Info("crawl complete",
		"pages", stats.Pages,
		"branches", stats.Branches,
		"lowest", stats.Lowest,
		"retries", stats.Retries,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return stats, nil
}

// crawlLevel fetches every pending page of one level concurrently, then
// links the results in level order and returns the next level.
func (c *Crawler) crawlLevel(ctx context.Context, level []pending, index *hierarchy.Index) ([]pending, error) {
	pages := make([]*Page, len(level))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.MaxConcurrency)

	for i, p := range level {
		g.Go(func() error {
			page, err := c.fetch(gCtx, p.url)
			if err != nil {
				return err
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []pending
	for i, p := range level {
		children, err := c.attach(p.node, pages[i], index)
		if err != nil {
			return nil, err
		}
		out = append(out, children...)
	}
	return out, nil
}

// attach links the entries of page below parent and returns the pages
// still to fetch.
func (c *Crawler) attach(parent *hierarchy.Node, page *Page, index *hierarchy.Index) ([]pending, error) {
	parent.Expand()

	var out []pending
	for _, e := range page.Entries {
		code := hierarchy.NormalizeCode(e.Code)
		if page.Kind == PageLowest && code == parent.Code {
			continue
		}
		if !c.claim(code) {
			c.logger.Warn("skipping repeated code", "code", code, "parent", parent.Code)
			continue
		}

		node := hierarchy.NewBranch(code, e.ShortDesc)
		if node.ShortDesc == "" {
			node.ShortDesc = node.AltCode()
			c.logger.Warn("entry has no description", "code", code, "parent", parent.Code)
		}
		if err := parent.AddChild(node); err != nil {
			return nil, fmt.Errorf("link %s under %s: %w", code, parent.Code, err)
		}
		if err := index.Register(node); err != nil {
			return nil, err
		}

		switch page.Kind {
		case PageLowest:
			node.Expand()
			c.lowest.Add(1)
			c.logger.Debug("created lowest branch node", "code", node.Code, "desc", node.ShortDesc)
		default:
			c.branches.Add(1)
			c.logger.Debug("created branch node", "code", node.Code, "desc", node.ShortDesc)
			if e.Href == "" {
				continue
			}
			u, err := c.resolve(e.Href)
			if err != nil {
				return nil, err
			}
			out = append(out, pending{node: node, url: u})
		}
	}
	return out, nil
}

// fetch downloads and parses one page, retrying transient failures.
func (c *Crawler) fetch(ctx context.Context, pageURL string) (*Page, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.retries.Add(1)
			c.logger.Warn("retrying page fetch", "url", pageURL, "attempt", attempt, "error", lastErr)
			if err := sleep(ctx, backoff(c.config.RetryBackoff, attempt)); err != nil {
				return nil, err
			}
		}

		page, err := c.fetchOnce(ctx, pageURL)
		if err == nil {
			return page, nil
		}
		lastErr = err

		var fe *FetchError
		if ctx.Err() != nil || !errors.As(err, &fe) || !fe.Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Crawler) fetchOnce(ctx context.Context, pageURL string) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBytes))
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	page, err := ParsePage(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", pageURL, err)
	}
	c.pages.Add(1)
	c.logger.Debug("fetched page", "url", pageURL, "kind", page.Kind.String(), "entries", len(page.Entries))
	return page, nil
}

// resolve turns an href into an absolute URL on the configured site.
func (c *Crawler) resolve(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: bad link %q: %v", ErrUnexpectedPage, href, err)
	}
	if !ref.IsAbs() && len(href) > 0 && href[0] != '/' {
		// Relative resources are anchored at the site root.
		ref.Path = "/" + ref.Path
	}
	return c.base.ResolveReference(ref).String(), nil
}

func (c *Crawler) claim(code string) bool {
	if _, ok := c.seen[code]; ok {
		return false
	}
	c.seen[code] = struct{}{}
	return true
}

func (c *Crawler) reset() {
	c.seen = make(map[string]struct{})
	c.pages.Store(0)
	c.branches.Store(0)
	c.lowest.Store(0)
	c.retries.Store(0)
}

func (c *Crawler) stats() CrawlStats {
	return CrawlStats{
		Pages:    int(c.pages.Load()),
		Branches: int(c.branches.Load()),
		Lowest:   int(c.lowest.Load()),
		Retries:  int(c.retries.Load()),
	}
}

// backoff returns the wait before the given retry attempt, capped at a minute.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base << (attempt - 1)
	if d <= 0 || d > time.Minute {
		d = time.Minute
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
