package sources

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"
)

var subredditPattern = regexp.MustCompile(`reddit\.com/r/([a-zA-Z0-9_]+)/`)

// excludedCommunities are generic aggregator subreddits that show up in
// search results but never represent a real discussion community.
var excludedCommunities = map[string]bool{
	"all":           true,
	"popular":       true,
	"announcements": true,
	"reddit":        true,
}

// WebSearcher runs site-restricted queries against a public search engine
// and extracts the result links from the HTML response. It backs both the
// forum connector's search fallback and subreddit discovery.
type WebSearcher struct {
	baseURL string
	client  *resty.Client
}

// NewWebSearcher creates a searcher against the default engine.
func NewWebSearcher() *WebSearcher {
	return &WebSearcher{
		baseURL: "https://www.google.com/search",
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "Mozilla/5.0 (compatible; impact-monitor/1.0)"),
	}
}

// SetBaseURL overrides the search endpoint; used by tests.
func (w *WebSearcher) SetBaseURL(base string) {
	w.baseURL = base
}

// Search returns the outbound result URLs for a query, best first.
func (w *WebSearcher) Search(ctx context.Context, query string) ([]string, error) {
	resp, err := w.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":   query,
			"num": "20",
		}).
		Get(w.baseURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("search engine returned status %d", resp.StatusCode())
	}
	return extractResultLinks(string(resp.Body())), nil
}

// DiscoverCommunities searches for site-restricted keyword hits on reddit
// and returns the subreddit names found in the result links, deduplicated
// and with aggregator subreddits filtered out.
func (w *WebSearcher) DiscoverCommunities(ctx context.Context, keyword string) ([]string, error) {
	results, err := w.Search(ctx, fmt.Sprintf("site:reddit.com %q", keyword))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var communities []string
	for _, link := range results {
		for _, match := range subredditPattern.FindAllStringSubmatch(link, -1) {
			name := match[1]
			key := strings.ToLower(name)
			if excludedCommunities[key] || seen[key] {
				continue
			}
			seen[key] = true
			communities = append(communities, name)
		}
	}
	return communities, nil
}

// extractResultLinks walks the result page and collects outbound hrefs.
// Result links are either wrapped in a /url?q= redirect or appear as plain
// absolute links; internal engine links are skipped.
func extractResultLinks(body string) []string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if link := resolveResultLink(attr.Val); link != "" && !seen[link] {
					seen[link] = true
					links = append(links, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

func resolveResultLink(href string) string {
	if strings.HasPrefix(href, "/url?") {
		parsed, err := url.Parse(href)
		if err != nil {
			return ""
		}
		target := parsed.Query().Get("q")
		if strings.HasPrefix(target, "http") {
			return target
		}
		return ""
	}
	if strings.HasPrefix(href, "http") && !strings.Contains(href, "google.com") {
		return href
	}
	return ""
}
