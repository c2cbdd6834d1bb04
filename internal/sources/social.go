package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/ummatics/impact-monitor/internal/models"
)

// TwitterSource fetches mentions of the organization from the Twitter
// search API, plus a point-in-time follower count for the org's own
// account (stored as an audience_size metric point, independent of
// mention volume).
type TwitterSource struct {
	bearerToken string
	username    string
	keywords    []string
	baseURL     string
	client      *resty.Client
}

type twitterSearchResponse struct {
	Data     []twitterTweet `json:"data"`
	Includes struct {
		Users []twitterUser `json:"users"`
	} `json:"includes"`
	Meta struct {
		ResultCount int `json:"result_count"`
	} `json:"meta"`
}

type twitterTweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	AuthorID      string `json:"author_id"`
	CreatedAt     string `json:"created_at"`
	PublicMetrics struct {
		RetweetCount int `json:"retweet_count"`
		LikeCount    int `json:"like_count"`
		ReplyCount   int `json:"reply_count"`
	} `json:"public_metrics"`
}

type twitterUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type twitterUserResponse struct {
	Data struct {
		ID            string `json:"id"`
		Username      string `json:"username"`
		PublicMetrics struct {
			FollowersCount int `json:"followers_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

// NewTwitterSource creates the Twitter connector.
func NewTwitterSource(bearerToken, username string, keywords []string) *TwitterSource {
	return &TwitterSource{
		bearerToken: bearerToken,
		username:    username,
		keywords:    keywords,
		baseURL:     "https://api.twitter.com",
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "impact-monitor/1.0"),
	}
}

// SetBaseURL overrides the API host; used by tests.
func (t *TwitterSource) SetBaseURL(base string) {
	t.baseURL = base
}

func (t *TwitterSource) Name() string {
	return models.PlatformTwitter
}

func (t *TwitterSource) Enabled() bool {
	return t.bearerToken != ""
}

func (t *TwitterSource) Fetch(ctx context.Context) (Batch, error) {
	var batch Batch

	// The follower count is independent of the mention search; a failure
	// here costs one metric point, not the batch.
	if point, err := t.fetchFollowerCount(ctx); err != nil {
		logrus.Warnf("Failed to fetch follower count for @%s: %v", t.username, err)
	} else if point != nil {
		batch.Metrics = append(batch.Metrics, *point)
	}

	mentions, err := t.searchMentions(ctx)
	if err != nil {
		return batch, err
	}
	batch.Mentions = mentions

	return batch, nil
}

func (t *TwitterSource) fetchFollowerCount(ctx context.Context) (*models.MetricPoint, error) {
	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+t.bearerToken).
		SetQueryParam("user.fields", "public_metrics").
		Get(fmt.Sprintf("%s/2/users/by/username/%s", t.baseURL, t.username))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("user lookup returned status %d", resp.StatusCode())
	}

	var parsed twitterUserResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}

	return &models.MetricPoint{
		Platform:   models.PlatformTwitter,
		Metric:     models.MetricAudienceSize,
		ObservedAt: time.Now().UTC(),
		Value:      float64(parsed.Data.PublicMetrics.FollowersCount),
	}, nil
}

func (t *TwitterSource) searchMentions(ctx context.Context) ([]models.Mention, error) {
	query := t.buildQuery()

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+t.bearerToken).
		SetQueryParams(map[string]string{
			"query":        query,
			"max_results":  "100",
			"tweet.fields": "created_at,author_id,public_metrics",
			"expansions":   "author_id",
			"user.fields":  "username,name",
		}).
		Get(t.baseURL + "/2/tweets/search/recent")
	if err != nil {
		return nil, err
	}

	// Rate limit: return what we have so the rest of the run proceeds;
	// the missed window is covered by natural-key dedup on the next run.
	if resp.StatusCode() == 429 {
		logrus.Warnf("Twitter API rate limit hit, skipping mention search this run")
		return nil, nil
	}

	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		return nil, Permanent("twitter API rejected credentials: status %d", resp.StatusCode())
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("twitter API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var parsed twitterSearchResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, Permanent("failed to parse twitter response: %v", err)
	}

	users := make(map[string]twitterUser, len(parsed.Includes.Users))
	for _, u := range parsed.Includes.Users {
		users[u.ID] = u
	}

	var mentions []models.Mention
	for _, tweet := range parsed.Data {
		mention, err := t.normalize(tweet, users)
		if err != nil {
			logrus.Warnf("Skipping malformed tweet %s: %v", tweet.ID, err)
			continue
		}
		// The org's own posts are not mentions of it.
		if strings.EqualFold(mention.Author, t.username) {
			continue
		}
		mentions = append(mentions, mention)
	}

	logrus.Infof("Twitter search returned %d tweets, %d normalized", len(parsed.Data), len(mentions))
	return mentions, nil
}

func (t *TwitterSource) normalize(tweet twitterTweet, users map[string]twitterUser) (models.Mention, error) {
	if tweet.ID == "" {
		return models.Mention{}, fmt.Errorf("tweet missing id")
	}

	postedAt, err := time.Parse(time.RFC3339, tweet.CreatedAt)
	if err != nil {
		return models.Mention{}, fmt.Errorf("bad created_at %q: %w", tweet.CreatedAt, err)
	}

	author := tweet.AuthorID
	if u, ok := users[tweet.AuthorID]; ok {
		author = u.Username
	}

	keyword, location := matchKeyword(t.keywords, "", tweet.Text, nil)

	return models.Mention{
		Platform:   models.PlatformTwitter,
		ExternalID: tweet.ID,
		Author:     author,
		Body:       tweet.Text,
		Permalink:  fmt.Sprintf("https://twitter.com/%s/status/%s", author, tweet.ID),
		PostedAt:   postedAt.UTC(),
		Engagement: models.Engagement{
			Primary:   tweet.PublicMetrics.LikeCount,
			Secondary: tweet.PublicMetrics.RetweetCount,
			Replies:   tweet.PublicMetrics.ReplyCount,
		},
		Keyword:       keyword,
		MatchLocation: location,
	}, nil
}

func (t *TwitterSource) buildQuery() string {
	terms := make([]string, 0, len(t.keywords)+1)
	for _, kw := range t.keywords {
		terms = append(terms, fmt.Sprintf("%q", kw))
	}
	terms = append(terms, "@"+t.username)
	return fmt.Sprintf("(%s) -is:retweet", strings.Join(terms, " OR "))
}

// matchKeyword finds the first configured keyword present in the title,
// body, or fetched comments (checked in that order) and reports where it
// matched. Returns empty strings when nothing matches.
func matchKeyword(keywords []string, title, body string, comments []string) (string, string) {
	lowerTitle := strings.ToLower(title)
	lowerBody := strings.ToLower(body)

	for _, kw := range keywords {
		lower := strings.ToLower(kw)
		if lowerTitle != "" && strings.Contains(lowerTitle, lower) {
			return kw, models.MatchTitle
		}
		if strings.Contains(lowerBody, lower) {
			return kw, models.MatchBody
		}
	}
	for _, kw := range keywords {
		lower := strings.ToLower(kw)
		for _, comment := range comments {
			if strings.Contains(strings.ToLower(comment), lower) {
				return kw, models.MatchComment
			}
		}
	}
	return "", ""
}
