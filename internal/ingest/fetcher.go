package ingest

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"github.com/mohammad-safakhou/newschat/config"
	"github.com/mohammad-safakhou/newschat/internal/helpers"
	"github.com/mohammad-safakhou/newschat/models"
)

// FeedFetcher pulls the current articles of one feed source. Implementations
// own feed acquisition and markup parsing; the ingestor only sees articles.
type FeedFetcher interface {
	Fetch(ctx context.Context, source config.FeedSource) ([]models.Article, error)
}

// RSSFetcher parses RSS/Atom feeds and extracts readable article text from
// each linked page.
type RSSFetcher struct {
	parser      *gofeed.Parser
	httpClient  *http.Client
	maxArticles int
}

// NewRSSFetcher builds a fetcher capped at maxArticles entries per feed.
func NewRSSFetcher(maxArticles int, timeout time.Duration) *RSSFetcher {
	if maxArticles <= 0 {
		maxArticles = 10
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RSSFetcher{
		parser:      gofeed.NewParser(),
		httpClient:  &http.Client{Timeout: timeout},
		maxArticles: maxArticles,
	}
}

func (f *RSSFetcher) Fetch(ctx context.Context, source config.FeedSource) ([]models.Article, error) {
	feed, err := f.parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", source.URL, err)
	}

	var articles []models.Article
	for i, item := range feed.Items {
		if i >= f.maxArticles {
			break
		}
		if item.Link == "" {
			continue
		}
		// Canonicalising here makes the same story fetched through
		// different tracking links dedup to one stored article.
		link, err := helpers.CanonicalURL(item.Link)
		if err != nil {
			continue
		}
		text, err := f.extract(ctx, item.Link)
		if err != nil {
			// Fall back to the feed's own summary rather than dropping
			// the entry entirely. Summaries carry markup.
			text = helpers.PlainText(item.Description)
			if text == "" {
				continue
			}
		}
		published := time.Time{}
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		}
		articles = append(articles, models.Article{
			URL:         link,
			Title:       item.Title,
			Feed:        source.Title,
			PublishedAt: published,
			Text:        text,
			ContentHash: sha1Hex(text),
		})
	}
	return articles, nil
}

func (f *RSSFetcher) extract(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", link, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch article %s: %w", link, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch article %s: status %d", link, resp.StatusCode)
	}
	pageURL, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse article url: %w", err)
	}
	article, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return "", fmt.Errorf("extract article %s: %w", link, err)
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("extract article %s: empty content", link)
	}
	return text, nil
}

func sha1Hex(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}
