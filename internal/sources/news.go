package sources

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"

	"github.com/ummatics/impact-monitor/internal/models"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

const newsSnippetLimit = 500

// NewsSource reads a Google Alerts RSS feed of press coverage and turns
// each entry into a news mention. The entry link doubles as the natural
// key; alerts re-deliver old entries, so dedup does the real filtering.
type NewsSource struct {
	feedURL string
	client  *resty.Client
	parser  *gofeed.Parser
}

// NewNewsSource creates the news connector for an alerts feed URL.
func NewNewsSource(feedURL string) *NewsSource {
	return &NewsSource{
		feedURL: feedURL,
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "impact-monitor/1.0"),
		parser: gofeed.NewParser(),
	}
}

func (n *NewsSource) Name() string {
	return models.PlatformNews
}

func (n *NewsSource) Enabled() bool {
	return n.feedURL != ""
}

func (n *NewsSource) Fetch(ctx context.Context) (Batch, error) {
	var batch Batch

	resp, err := n.client.R().SetContext(ctx).Get(n.feedURL)
	if err != nil {
		return batch, err
	}
	if resp.StatusCode() == 404 {
		return batch, Permanent("alerts feed not found: status 404")
	}
	if resp.StatusCode() != 200 {
		return batch, fmt.Errorf("alerts feed returned status %d", resp.StatusCode())
	}

	feed, err := n.parser.ParseString(string(resp.Body()))
	if err != nil {
		return batch, Permanent("failed to parse alerts feed: %v", err)
	}

	for _, item := range feed.Items {
		mention, err := n.normalize(item)
		if err != nil {
			logrus.Warnf("Skipping malformed alert entry: %v", err)
			continue
		}
		batch.Mentions = append(batch.Mentions, mention)
	}

	logrus.Infof("Alerts feed returned %d entries, %d normalized", len(feed.Items), len(batch.Mentions))
	return batch, nil
}

func (n *NewsSource) normalize(item *gofeed.Item) (models.Mention, error) {
	link := cleanAlertLink(item.Link)
	if link == "" {
		return models.Mention{}, fmt.Errorf("entry missing link")
	}

	postedAt := time.Now().UTC()
	if item.PublishedParsed != nil {
		postedAt = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		postedAt = item.UpdatedParsed.UTC()
	}

	return models.Mention{
		Platform:      models.PlatformNews,
		ExternalID:    link,
		Author:        sourceHostname(link),
		Title:         stripHTML(item.Title),
		Body:          snippet(item.Description),
		Permalink:     link,
		PostedAt:      postedAt,
		MatchLocation: models.MatchTitle,
	}, nil
}

// cleanAlertLink unwraps the Google redirect that alerts feeds wrap
// around article links.
func cleanAlertLink(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return link
	}
	if strings.Contains(parsed.Host, "google.com") {
		if target := parsed.Query().Get("url"); target != "" {
			return target
		}
	}
	return link
}

func sourceHostname(link string) string {
	parsed, err := url.Parse(link)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	return strings.TrimPrefix(parsed.Host, "www.")
}

func stripHTML(s string) string {
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(s, ""))
}

func snippet(s string) string {
	clean := stripHTML(s)
	if len(clean) > newsSnippetLimit {
		clean = clean[:newsSnippetLimit]
	}
	return clean
}
