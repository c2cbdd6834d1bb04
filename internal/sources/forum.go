package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"

	"github.com/ummatics/impact-monitor/internal/models"
)

// CommunityRegistry is the slice of the store the forum connector needs:
// the persistent set of communities worth checking each run.
type CommunityRegistry interface {
	ActiveCommunities(ctx context.Context) ([]string, error)
	AddCommunity(ctx context.Context, name string, discoveredAt time.Time) (bool, error)
	TouchCommunity(ctx context.Context, name string, checkedAt time.Time) error
}

// RedditSource fetches keyword mentions from a registry of subreddits.
// Reddit's public search endpoint is unreliable for small communities, so
// each community is tried with a ladder of strategies: the JSON search
// endpoint, a site-restricted web search, and finally the new-posts RSS
// feed filtered by keyword. The first strategy that yields posts wins.
type RedditSource struct {
	userAgent string
	keywords  []string
	seeded    []string
	registry  CommunityRegistry
	searcher  *WebSearcher
	baseURL   string
	client    *resty.Client
	parser    *gofeed.Parser

	maxCommentsPerPost int
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
	Score       int     `json:"score"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	NumComments int     `json:"num_comments"`
	Subreddit   string  `json:"subreddit"`
}

// NewRedditSource creates the Reddit connector. The seeded communities are
// merged into the registry on first run; discovery adds more over time.
func NewRedditSource(userAgent string, keywords, seeded []string, registry CommunityRegistry, searcher *WebSearcher) *RedditSource {
	if userAgent == "" {
		userAgent = "impact-monitor/1.0"
	}
	return &RedditSource{
		userAgent: userAgent,
		keywords:  keywords,
		seeded:    seeded,
		registry:  registry,
		searcher:  searcher,
		baseURL:   "https://www.reddit.com",
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", userAgent),
		parser:             gofeed.NewParser(),
		maxCommentsPerPost: 10,
	}
}

// SetBaseURL overrides the Reddit host; used by tests.
func (r *RedditSource) SetBaseURL(base string) {
	r.baseURL = base
}

func (r *RedditSource) Name() string {
	return models.PlatformReddit
}

func (r *RedditSource) Enabled() bool {
	return r.registry != nil
}

func (r *RedditSource) Fetch(ctx context.Context) (Batch, error) {
	var batch Batch

	communities, err := r.communities(ctx)
	if err != nil {
		return batch, fmt.Errorf("failed to load community registry: %w", err)
	}

	now := time.Now().UTC()
	for _, community := range communities {
		posts, strategy, err := r.fetchCommunity(ctx, community)
		if err != nil {
			logrus.Warnf("All strategies failed for r/%s: %v", community, err)
			continue
		}
		logrus.Infof("r/%s: %d posts via %s", community, len(posts), strategy)

		for _, post := range posts {
			mention, ok := r.normalize(ctx, post)
			if !ok {
				continue
			}
			batch.Mentions = append(batch.Mentions, mention)
		}

		if err := r.registry.TouchCommunity(ctx, community, now); err != nil {
			logrus.Warnf("Failed to touch registry entry for r/%s: %v", community, err)
		}
	}

	r.discover(ctx)

	return batch, nil
}

// communities merges the configured seeds into the registry and returns
// the active set.
func (r *RedditSource) communities(ctx context.Context) ([]string, error) {
	now := time.Now().UTC()
	for _, name := range r.seeded {
		if _, err := r.registry.AddCommunity(ctx, name, now); err != nil {
			return nil, err
		}
	}
	return r.registry.ActiveCommunities(ctx)
}

// fetchCommunity tries the strategy ladder for one subreddit and reports
// which strategy produced the posts.
func (r *RedditSource) fetchCommunity(ctx context.Context, community string) ([]redditPost, string, error) {
	posts, searchErr := r.searchPosts(ctx, community)
	if searchErr == nil && len(posts) > 0 {
		return posts, "search", nil
	}

	var webErr error
	if r.searcher != nil {
		posts, webErr = r.webSearchPosts(ctx, community)
		if webErr == nil && len(posts) > 0 {
			return posts, "web-search", nil
		}
		if webErr != nil {
			logrus.Warnf("Web search for r/%s failed: %v", community, webErr)
		}
	}

	posts, feedErr := r.feedPosts(ctx, community)
	if feedErr == nil {
		return posts, "rss", nil
	}

	if searchErr != nil || webErr != nil {
		return nil, "", fmt.Errorf("search: %v, web-search: %v, rss: %v", searchErr, webErr, feedErr)
	}
	return nil, "", feedErr
}

// searchPosts queries Reddit's JSON search endpoint restricted to one
// subreddit.
func (r *RedditSource) searchPosts(ctx context.Context, community string) ([]redditPost, error) {
	var all []redditPost
	for _, kw := range r.keywords {
		resp, err := r.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"q":           kw,
				"restrict_sr": "1",
				"sort":        "new",
				"limit":       "25",
			}).
			Get(fmt.Sprintf("%s/r/%s/search.json", r.baseURL, community))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() == 429 {
			return nil, fmt.Errorf("rate limited")
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("search returned status %d", resp.StatusCode())
		}

		var listing redditListing
		if err := json.Unmarshal(resp.Body(), &listing); err != nil {
			return nil, fmt.Errorf("failed to parse search response: %w", err)
		}
		for _, child := range listing.Data.Children {
			all = append(all, child.Data)
		}
	}
	return all, nil
}

// webSearchPosts falls back to a site-restricted web search and fetches
// each resulting thread's JSON directly.
func (r *RedditSource) webSearchPosts(ctx context.Context, community string) ([]redditPost, error) {
	var all []redditPost
	for _, kw := range r.keywords {
		query := fmt.Sprintf("site:reddit.com/r/%s %q", community, kw)
		links, err := r.searcher.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			if !strings.Contains(link, "/comments/") {
				continue
			}
			post, err := r.fetchThread(ctx, link)
			if err != nil {
				logrus.Warnf("Failed to fetch thread %s: %v", link, err)
				continue
			}
			all = append(all, post)
		}
	}
	return all, nil
}

// fetchThread loads a single thread's JSON representation. Reddit serves
// any permalink with a .json suffix as a two-element array whose first
// element is a listing containing the post itself.
func (r *RedditSource) fetchThread(ctx context.Context, link string) (redditPost, error) {
	jsonURL := strings.TrimSuffix(link, "/") + ".json"
	resp, err := r.client.R().SetContext(ctx).Get(jsonURL)
	if err != nil {
		return redditPost{}, err
	}
	if resp.StatusCode() != 200 {
		return redditPost{}, fmt.Errorf("thread fetch returned status %d", resp.StatusCode())
	}

	var listings []redditListing
	if err := json.Unmarshal(resp.Body(), &listings); err != nil {
		return redditPost{}, fmt.Errorf("failed to parse thread: %w", err)
	}
	if len(listings) == 0 || len(listings[0].Data.Children) == 0 {
		return redditPost{}, fmt.Errorf("thread has no post data")
	}
	return listings[0].Data.Children[0].Data, nil
}

// feedPosts reads the subreddit's new-posts RSS feed and keeps entries
// that mention a configured keyword.
func (r *RedditSource) feedPosts(ctx context.Context, community string) ([]redditPost, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/r/%s/new.rss", r.baseURL, community))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("rss returned status %d", resp.StatusCode())
	}

	feed, err := r.parser.ParseString(string(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rss: %w", err)
	}

	var posts []redditPost
	for _, item := range feed.Items {
		kw, _ := matchKeyword(r.keywords, item.Title, item.Description, nil)
		if kw == "" {
			continue
		}
		post := redditPost{
			ID:        feedItemID(item),
			Title:     item.Title,
			Selftext:  item.Description,
			Subreddit: community,
		}
		if item.Author != nil {
			post.Author = strings.TrimPrefix(item.Author.Name, "/u/")
		}
		if item.PublishedParsed != nil {
			post.CreatedUTC = float64(item.PublishedParsed.Unix())
		}
		if strings.HasPrefix(item.Link, "https://www.reddit.com") {
			post.Permalink = strings.TrimPrefix(item.Link, "https://www.reddit.com")
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func feedItemID(item *gofeed.Item) string {
	// Reddit feed GUIDs look like "t3_abc123"; strip the kind prefix so
	// the ID matches what the JSON endpoints report.
	id := item.GUID
	if id == "" {
		id = item.Link
	}
	if idx := strings.Index(id, "_"); idx >= 0 && idx <= 3 {
		id = id[idx+1:]
	}
	return id
}

func (r *RedditSource) normalize(ctx context.Context, post redditPost) (models.Mention, bool) {
	if post.ID == "" {
		return models.Mention{}, false
	}

	var comments []string
	kw, location := matchKeyword(r.keywords, post.Title, post.Selftext, nil)
	if kw == "" {
		// The keyword may live in the discussion rather than the post.
		comments = r.fetchComments(ctx, post.Permalink)
		kw, location = matchKeyword(r.keywords, post.Title, post.Selftext, comments)
		if kw == "" {
			return models.Mention{}, false
		}
	}

	postedAt := time.Unix(int64(post.CreatedUTC), 0).UTC()
	if post.CreatedUTC == 0 {
		postedAt = time.Now().UTC()
	}

	permalink := post.Permalink
	if permalink != "" && !strings.HasPrefix(permalink, "http") {
		permalink = "https://www.reddit.com" + permalink
	}

	return models.Mention{
		Platform:   models.PlatformReddit,
		ExternalID: post.ID,
		Author:     post.Author,
		Title:      post.Title,
		Body:       post.Selftext,
		Permalink:  permalink,
		PostedAt:   postedAt,
		Engagement: models.Engagement{
			Primary: post.Score,
			Replies: post.NumComments,
		},
		Keyword:       kw,
		MatchLocation: location,
	}, true
}

// fetchComments retrieves the top-level comment bodies for a thread, best
// effort. An empty slice on failure just means no comment match.
func (r *RedditSource) fetchComments(ctx context.Context, permalink string) []string {
	if permalink == "" {
		return nil
	}
	jsonURL := r.baseURL + strings.TrimSuffix(permalink, "/") + ".json"
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParam("limit", fmt.Sprintf("%d", r.maxCommentsPerPost)).
		Get(jsonURL)
	if err != nil || resp.StatusCode() != 200 {
		return nil
	}

	var listings []struct {
		Data struct {
			Children []struct {
				Data struct {
					Body string `json:"body"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &listings); err != nil || len(listings) < 2 {
		return nil
	}

	var comments []string
	for _, child := range listings[1].Data.Children {
		if child.Data.Body != "" {
			comments = append(comments, child.Data.Body)
		}
		if len(comments) >= r.maxCommentsPerPost {
			break
		}
	}
	return comments
}

// discover runs keyword discovery and records any new communities in the
// registry. Discovery failures are logged, never fatal.
func (r *RedditSource) discover(ctx context.Context) {
	if r.searcher == nil {
		return
	}
	now := time.Now().UTC()
	for _, kw := range r.keywords {
		found, err := r.searcher.DiscoverCommunities(ctx, kw)
		if err != nil {
			logrus.Warnf("Community discovery failed for %q: %v", kw, err)
			continue
		}
		for _, name := range found {
			added, err := r.registry.AddCommunity(ctx, name, now)
			if err != nil {
				logrus.Warnf("Failed to register community r/%s: %v", name, err)
				continue
			}
			if added {
				logrus.Infof("Discovered new community: r/%s", name)
			}
		}
	}
}
