package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Anchor selectors that carry ad links on AutoRia search pages. The markup
// varies between desktop and promoted tickets, so several are tried.
var listingLinkSelectors = []string{
	"a.m-link-ticket",
	"a.address",
	"div.ticket-title a",
	"div.head-ticket a",
	"div.content-bar a[href*='auto_']",
}

// Discoverer walks the paginated search index and streams candidate ad URLs.
// Each cycle starts discovery fresh from page 1; there is no persisted
// pagination cursor.
type Discoverer struct {
	fetcher  Fetcher
	startURL string
	maxPages int
	logger   *zap.Logger
}

// NewDiscoverer builds a Discoverer. maxPages is a safety bound against
// runaway pagination.
func NewDiscoverer(fetcher Fetcher, startURL string, maxPages int, logger *zap.Logger) *Discoverer {
	return &Discoverer{
		fetcher:  fetcher,
		startURL: startURL,
		maxPages: maxPages,
		logger:   logger,
	}
}

// Run walks index pages and sends each previously unseen ad URL to out,
// closing out when discovery ends. Termination: a page yields zero new
// links, maxPages is reached, an index page fails to fetch, or ctx is
// canceled. Hitting the page bound is a normal partial-success cycle.
func (d *Discoverer) Run(ctx context.Context, out chan<- string) {
	defer close(out)

	seen := make(map[string]struct{})
	for page := 1; ; page++ {
		if page > d.maxPages {
			d.logger.Warn("discovery page bound reached, stopping pagination",
				zap.Int("max_pages", d.maxPages),
			)
			return
		}
		pageURL := d.pageURL(page)
		body, err := d.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Warn("index page fetch failed, ending discovery",
				zap.String("url", pageURL),
				zap.Int("page", page),
				zap.Error(err),
			)
			return
		}

		links, err := extractListingLinks(pageURL, body)
		if err != nil {
			d.logger.Warn("index page unparseable, ending discovery",
				zap.String("url", pageURL),
				zap.Error(err),
			)
			return
		}

		fresh := 0
		for _, link := range links {
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			fresh++
			select {
			case out <- link:
			case <-ctx.Done():
				return
			}
		}
		if fresh == 0 {
			d.logger.Info("no new listings on page, discovery complete",
				zap.Int("page", page),
				zap.Int("total", len(seen)),
			)
			return
		}
		d.logger.Debug("index page discovered",
			zap.Int("page", page),
			zap.Int("links", fresh),
		)
	}
}

func (d *Discoverer) pageURL(page int) string {
	sep := "?"
	if strings.Contains(d.startURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spage=%d", d.startURL, sep, page)
}

// extractListingLinks pulls ad links out of one index page, resolving
// relative hrefs against the page URL. Only hrefs containing "auto_" are ad
// pages.
func extractListingLinks(pageURL string, body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse index page: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var links []string
	seen := make(map[string]struct{})
	for _, selector := range listingLinkSelectors {
		doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
			href, ok := a.Attr("href")
			if !ok || !strings.Contains(href, "auto_") {
				return
			}
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			abs := base.ResolveReference(ref).String()
			if _, dup := seen[abs]; dup {
				return
			}
			seen[abs] = struct{}{}
			links = append(links, abs)
		})
	}
	return links, nil
}
