// Package dispatch discovers URLs from sitemaps and feeds them to the crawl
// work queue in bounded batches.
package dispatch

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	fetchTimeout = 15 * time.Second
	userAgent    = "kensaku sitemap fetcher (+https://github.com/kensaku-io/kensaku)"
)

// Fetcher retrieves sitemap documents over HTTP with a bounded timeout.
type Fetcher struct {
	client *http.Client
	logger *zap.Logger
}

// NewFetcher creates a sitemap fetcher.
func NewFetcher(logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client: &http.Client{Timeout: fetchTimeout},
		logger: logger,
	}
}

// FetchSitemap fetches the sitemap at url. Network errors and non-200
// responses are logged and yield nil; processing continues with whatever
// other input is available.
func (f *Fetcher) FetchSitemap(ctx context.Context, url string) []byte {
	f.logger.Info("fetching sitemap", zap.String("url", url))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		f.logger.Error("invalid sitemap url", zap.String("url", url), zap.Error(err))
		return nil
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("failed to fetch sitemap", zap.String("url", url), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		f.logger.Error("failed to fetch sitemap", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return nil
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Error("failed to read sitemap body", zap.String("url", url), zap.Error(err))
		return nil
	}
	f.logger.Info("fetched sitemap", zap.String("url", url), zap.Int("bytes", len(content)))
	return content
}

// ParseSitemap extracts every <loc> value from sitemap XML, wherever it
// appears (plain urlset and sitemapindex documents alike).
func ParseSitemap(content []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	var urls []string
	inLoc := false
	var loc strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse sitemap: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "loc" {
				inLoc = true
				loc.Reset()
			}
		case xml.CharData:
			if inLoc {
				loc.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "loc" {
				inLoc = false
				if u := strings.TrimSpace(loc.String()); u != "" {
					urls = append(urls, u)
				}
			}
		}
	}
	return urls, nil
}
