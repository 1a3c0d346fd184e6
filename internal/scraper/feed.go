package scraper

import (
	"context"
	"crypto/md5"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"imgfilter/internal/domain"
)

// Feed pulls image URLs out of RSS and Atom feeds.
type Feed struct {
	client *http.Client
	parser *gofeed.Parser
}

func NewFeed() *Feed {
	return &Feed{
		client: &http.Client{Timeout: 15 * time.Second},
		parser: gofeed.NewParser(),
	}
}

func (f *Feed) Scrape(ctx context.Context, feedURL string) ([]domain.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", "imgfilter/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	urls := ImageURLs(feed)
	requests := make([]domain.Request, 0, len(urls))
	for _, u := range urls {
		requests = append(requests, domain.Request{
			ID:        generateID(feedURL, u),
			URL:       u,
			SessionID: domain.SessionID(feedURL),
		})
	}

	return requests, nil
}

// ImageURLs collects the distinct image URLs of a feed: the feed logo, item
// images, image enclosures and media:content/media:thumbnail entries.
func ImageURLs(feed *gofeed.Feed) []string {
	var urls []string
	seen := make(map[string]bool)
	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}

	if feed.Image != nil {
		add(feed.Image.URL)
	}

	for _, item := range feed.Items {
		if item.Image != nil {
			add(item.Image.URL)
		}
		for _, enc := range item.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") {
				add(enc.URL)
			}
		}
		media := item.Extensions["media"]
		for _, name := range []string{"content", "thumbnail"} {
			for _, e := range media[name] {
				if medium := e.Attrs["medium"]; medium != "" && medium != "image" {
					continue
				}
				add(e.Attrs["url"])
			}
		}
	}

	return urls
}

func generateID(feedURL, imageURL string) string {
	hash := md5.Sum([]byte(feedURL + "\x00" + imageURL))
	return fmt.Sprintf("%x", hash)[:16]
}
