package models

import "time"

// Platform identifiers used as the first half of every mention's natural key.
const (
	PlatformTwitter = "twitter"
	PlatformReddit  = "reddit"
	PlatformNews    = "news"
)

// Sentiment labels. A label is always derived from the score via the
// configured thresholds, never supplied independently.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Where the configured keyword matched inside a raw item.
const (
	MatchTitle   = "title"
	MatchBody    = "body"
	MatchComment = "comment"
)

// Engagement holds per-mention interaction counts. The semantics vary per
// platform (likes/retweets on Twitter, upvotes on Reddit) but the logical
// slots are fixed so aggregation never branches on platform. A platform
// lacking a notion supplies zero, not null.
type Engagement struct {
	Primary   int `json:"primary"`   // like-analog: likes, upvotes
	Secondary int `json:"secondary"` // repost-analog: retweets, crossposts
	Replies   int `json:"replies"`
}

// Total returns the unweighted sum of all interaction counts.
func (e Engagement) Total() int {
	return e.Primary + e.Secondary + e.Replies
}

// Mention is the normalized representation of a single social post, forum
// thread, or news item referencing the organization. (Platform, ExternalID)
// is the natural key; re-ingesting the same external item never creates a
// second row and never mutates the first one. Only the enrichment stage
// writes the Sentiment* fields, after the row already exists.
type Mention struct {
	ID             int64      `json:"id"`
	Platform       string     `json:"platform"`
	ExternalID     string     `json:"external_id"`
	Author         string     `json:"author"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	Permalink      string     `json:"permalink"`
	PostedAt       time.Time  `json:"posted_at"`
	Engagement     Engagement `json:"engagement"`
	Keyword        string     `json:"keyword"`        // keyword that matched
	MatchLocation  string     `json:"match_location"` // title, body, or comment
	Sentiment      string     `json:"sentiment,omitempty"`
	SentimentScore *float64   `json:"sentiment_score,omitempty"`
	ScoredAt       *time.Time `json:"sentiment_scored_at,omitempty"`
	IngestedAt     time.Time  `json:"ingested_at"`
}

// MetricPoint is a point-in-time observation that is not tied to a single
// mention: audience size for the org's own account, site sessions, etc.
type MetricPoint struct {
	Platform   string    `json:"platform"`
	Metric     string    `json:"metric"`
	ObservedAt time.Time `json:"observed_at"`
	Value      float64   `json:"value"`
}

// Metric names stored as MetricPoints.
const (
	MetricAudienceSize  = "audience_size"
	MetricSiteSessions  = "site_sessions"
	MetricSiteUsers     = "site_users"
	MetricSitePageviews = "site_pageviews"
)

// Citation types. Institutional means the org appears as an affiliated
// institution on the work; conceptual means it is only mentioned in text.
const (
	CitationInstitutional = "institutional"
	CitationConceptual    = "conceptual"
)

// Citation represents a scholarly work referencing the organization.
// WorkID is the natural key. CitedByCount is the one mutable non-key field
// in the whole schema: it grows on re-fetch of the same work.
type Citation struct {
	WorkID          string     `json:"work_id"`
	DOI             string     `json:"doi,omitempty"`
	Title           string     `json:"title"`
	Authors         string     `json:"authors"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	CitedByCount    int        `json:"cited_by_count"`
	CitationType    string     `json:"citation_type"`
	SourceURL       string     `json:"source_url"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// DailyBucket is one derived row per (date, platform): a pure function of
// the mentions whose posted_at falls on that calendar day, recomputable at
// any time. Unscored mentions count toward MentionsCount but are excluded
// from the sentiment distribution so volume is reportable before
// enrichment catches up.
type DailyBucket struct {
	Date          time.Time `json:"date"`
	Platform      string    `json:"platform"`
	MentionsCount int       `json:"mentions_count"`
	AvgEngagement float64   `json:"avg_engagement"`
	PositiveCount int       `json:"positive_count"`
	NegativeCount int       `json:"negative_count"`
	NeutralCount  int       `json:"neutral_count"`
	UnscoredCount int       `json:"unscored_count"`
	AvgSentiment  float64   `json:"avg_sentiment_score"`
}

// WeeklySnapshot is the top-level overview row, one per Monday-anchored
// calendar week. It fans in over several source tables, not just the daily
// buckets, so recompute re-reads each of them.
type WeeklySnapshot struct {
	WeekStart      time.Time `json:"week_start_date"`
	WeekEnd        time.Time `json:"week_end_date"`
	NewsMentions   int       `json:"total_news_mentions"`
	SocialMentions int       `json:"total_social_mentions"`
	Citations      int       `json:"total_citations"`
	SiteSessions   int       `json:"total_website_sessions"`
}

// Community is a discovered-source registry entry: a forum community found
// by the search-engine fallback, polled on every subsequent run.
type Community struct {
	Name         string    `json:"name"`
	DiscoveredAt time.Time `json:"discovered_at"`
	Active       bool      `json:"is_active"`
	LastChecked  time.Time `json:"last_checked"`
}

// ConnectorReport summarizes one connector's contribution to a run.
type ConnectorReport struct {
	Fetched  int    `json:"fetched"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
	// Permanent marks misconfiguration-class failures (bad credentials,
	// malformed response schema) so operators can tell them from blips.
	Permanent bool `json:"permanent,omitempty"`
}

// RunReport summarizes a full ingestion run for observability.
type RunReport struct {
	StartedAt       time.Time                  `json:"started_at"`
	Duration        string                     `json:"duration"`
	Connectors      map[string]ConnectorReport `json:"connectors"`
	MentionsScored  int                        `json:"mentions_scored"`
	DaysAggregated  int                        `json:"days_aggregated"`
	WeeksAggregated int                        `json:"weeks_aggregated"`
	ErrorCount      int                        `json:"error_count"`
}
