package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ummatics/impact-monitor/internal/models"
)

// UpsertDailyBucket writes a derived daily row, overwriting in place. The
// bucket is a pure function of the mentions table so overwrite is always
// correct.
func (s *Store) UpsertDailyBucket(ctx context.Context, b models.DailyBucket) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_buckets
			(date, platform, mentions_count, avg_engagement,
			 positive_count, negative_count, neutral_count, unscored_count,
			 avg_sentiment_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, platform) DO UPDATE SET
			mentions_count = excluded.mentions_count,
			avg_engagement = excluded.avg_engagement,
			positive_count = excluded.positive_count,
			negative_count = excluded.negative_count,
			neutral_count = excluded.neutral_count,
			unscored_count = excluded.unscored_count,
			avg_sentiment_score = excluded.avg_sentiment_score`,
		b.Date.UTC().Format(dateLayout), b.Platform, b.MentionsCount, b.AvgEngagement,
		b.PositiveCount, b.NegativeCount, b.NeutralCount, b.UnscoredCount,
		b.AvgSentiment)
	if err != nil {
		return fmt.Errorf("upsert daily bucket %s/%s: %w", b.Date.Format(dateLayout), b.Platform, err)
	}
	return nil
}

// GetDailyBucket fetches one bucket row, or nil when absent.
func (s *Store) GetDailyBucket(ctx context.Context, day time.Time, platform string) (*models.DailyBucket, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT date, platform, mentions_count, avg_engagement,
		       positive_count, negative_count, neutral_count, unscored_count,
		       avg_sentiment_score
		FROM daily_buckets WHERE date = ? AND platform = ?`,
		day.UTC().Format(dateLayout), platform)

	var b models.DailyBucket
	var date string
	err := row.Scan(&date, &b.Platform, &b.MentionsCount, &b.AvgEngagement,
		&b.PositiveCount, &b.NegativeCount, &b.NeutralCount, &b.UnscoredCount,
		&b.AvgSentiment)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get daily bucket: %w", err)
	}
	b.Date, _ = time.Parse(dateLayout, date)
	return &b, nil
}

// DailyBuckets returns bucket rows ordered newest first. An empty
// platform selects all platforms.
func (s *Store) DailyBuckets(ctx context.Context, platform string, limit int) ([]models.DailyBucket, error) {
	query := `
		SELECT date, platform, mentions_count, avg_engagement,
		       positive_count, negative_count, neutral_count, unscored_count,
		       avg_sentiment_score
		FROM daily_buckets`
	args := []interface{}{}
	if platform != "" {
		query += ` WHERE platform = ?`
		args = append(args, platform)
	}
	query += ` ORDER BY date DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select daily buckets: %w", err)
	}
	defer rows.Close()

	var buckets []models.DailyBucket
	for rows.Next() {
		var b models.DailyBucket
		var date string
		if err := rows.Scan(&date, &b.Platform, &b.MentionsCount, &b.AvgEngagement,
			&b.PositiveCount, &b.NegativeCount, &b.NeutralCount, &b.UnscoredCount,
			&b.AvgSentiment); err != nil {
			return nil, err
		}
		b.Date, _ = time.Parse(dateLayout, date)
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// SumDailyMentions sums mentions_count over bucket rows for a platform in
// [from, to]. Used by the weekly rollup for social totals.
func (s *Store) SumDailyMentions(ctx context.Context, platform string, from, to time.Time) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(mentions_count), 0)
		FROM daily_buckets
		WHERE platform = ? AND date >= ? AND date <= ?`,
		platform, from.UTC().Format(dateLayout), to.UTC().Format(dateLayout)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum daily mentions: %w", err)
	}
	return total, nil
}

// CountMentionsBetween counts raw mentions for a platform posted in
// [from, to). The weekly fan-in uses this for the news table directly,
// not via the daily buckets.
func (s *Store) CountMentionsBetween(ctx context.Context, platform string, from, to time.Time) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM mentions
		WHERE platform = ? AND posted_at >= ? AND posted_at < ?`,
		platform, from.UTC(), to.UTC()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count mentions: %w", err)
	}
	return total, nil
}

// TotalCitations returns the sum of cited_by_count across all works.
func (s *Store) TotalCitations(ctx context.Context) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cited_by_count), 0) FROM citations`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total citations: %w", err)
	}
	return total, nil
}

// SumMetric sums a metric's values observed in [from, to].
func (s *Store) SumMetric(ctx context.Context, metric string, from, to time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(value), 0) FROM metric_points
		WHERE metric = ? AND observed_date >= ? AND observed_date <= ?`,
		metric, from.UTC().Format(dateLayout), to.UTC().Format(dateLayout)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum metric %s: %w", metric, err)
	}
	return total, nil
}

// UpsertWeeklySnapshot writes the derived weekly overview row in place.
func (s *Store) UpsertWeeklySnapshot(ctx context.Context, w models.WeeklySnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO weekly_snapshots
			(week_start_date, week_end_date, total_news_mentions,
			 total_social_mentions, total_citations, total_website_sessions)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(week_start_date) DO UPDATE SET
			week_end_date = excluded.week_end_date,
			total_news_mentions = excluded.total_news_mentions,
			total_social_mentions = excluded.total_social_mentions,
			total_citations = excluded.total_citations,
			total_website_sessions = excluded.total_website_sessions`,
		w.WeekStart.UTC().Format(dateLayout), w.WeekEnd.UTC().Format(dateLayout),
		w.NewsMentions, w.SocialMentions, w.Citations, w.SiteSessions)
	if err != nil {
		return fmt.Errorf("upsert weekly snapshot %s: %w", w.WeekStart.Format(dateLayout), err)
	}
	return nil
}

// WeeklySnapshots returns snapshot rows newest first.
func (s *Store) WeeklySnapshots(ctx context.Context, limit int) ([]models.WeeklySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT week_start_date, week_end_date, total_news_mentions,
		       total_social_mentions, total_citations, total_website_sessions
		FROM weekly_snapshots
		ORDER BY week_start_date DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select weekly snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []models.WeeklySnapshot
	for rows.Next() {
		var w models.WeeklySnapshot
		var start, end string
		if err := rows.Scan(&start, &end, &w.NewsMentions, &w.SocialMentions,
			&w.Citations, &w.SiteSessions); err != nil {
			return nil, err
		}
		w.WeekStart, _ = time.Parse(dateLayout, start)
		w.WeekEnd, _ = time.Parse(dateLayout, end)
		snapshots = append(snapshots, w)
	}
	return snapshots, rows.Err()
}

// GetWeeklySnapshot fetches one snapshot row, or nil when absent.
func (s *Store) GetWeeklySnapshot(ctx context.Context, weekStart time.Time) (*models.WeeklySnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT week_start_date, week_end_date, total_news_mentions,
		       total_social_mentions, total_citations, total_website_sessions
		FROM weekly_snapshots WHERE week_start_date = ?`,
		weekStart.UTC().Format(dateLayout))

	var w models.WeeklySnapshot
	var start, end string
	err := row.Scan(&start, &end, &w.NewsMentions, &w.SocialMentions,
		&w.Citations, &w.SiteSessions)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get weekly snapshot: %w", err)
	}
	w.WeekStart, _ = time.Parse(dateLayout, start)
	w.WeekEnd, _ = time.Parse(dateLayout, end)
	return &w, nil
}

// RecentMentions returns mentions for the dashboard feed, newest first,
// with offset pagination. An empty platform selects all platforms.
func (s *Store) RecentMentions(ctx context.Context, platform string, limit, offset int) ([]models.Mention, error) {
	query := `
		SELECT id, platform, external_id, author, title, body, permalink, posted_at,
		       engagement_primary, engagement_secondary, engagement_replies,
		       keyword, match_location, sentiment, sentiment_score, sentiment_scored_at, ingested_at
		FROM mentions`
	args := []interface{}{}
	if platform != "" {
		query += ` WHERE platform = ?`
		args = append(args, platform)
	}
	query += ` ORDER BY posted_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select recent mentions: %w", err)
	}
	defer rows.Close()

	return scanMentions(rows)
}

// TopCitations returns works ordered by citation count.
func (s *Store) TopCitations(ctx context.Context, limit int) ([]models.Citation, error) {
	return s.queryCitations(ctx, `ORDER BY cited_by_count DESC`, limit)
}

// RecentCitations returns works ordered by last update.
func (s *Store) RecentCitations(ctx context.Context, limit int) ([]models.Citation, error) {
	return s.queryCitations(ctx, `ORDER BY updated_at DESC`, limit)
}

func (s *Store) queryCitations(ctx context.Context, order string, limit int) ([]models.Citation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT work_id, doi, title, authors, publication_date, cited_by_count,
		       citation_type, source_url, updated_at
		FROM citations `+order+` LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select citations: %w", err)
	}
	defer rows.Close()

	var citations []models.Citation
	for rows.Next() {
		var c models.Citation
		var doi, sourceURL sql.NullString
		var pubDate sql.NullTime
		if err := rows.Scan(&c.WorkID, &doi, &c.Title, &c.Authors, &pubDate,
			&c.CitedByCount, &c.CitationType, &sourceURL, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.DOI = doi.String
		c.SourceURL = sourceURL.String
		if pubDate.Valid {
			t := pubDate.Time
			c.PublicationDate = &t
		}
		citations = append(citations, c)
	}
	return citations, rows.Err()
}

// GetCitation fetches one citation by work ID, or nil when absent.
func (s *Store) GetCitation(ctx context.Context, workID string) (*models.Citation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT work_id, doi, title, authors, publication_date, cited_by_count,
		       citation_type, source_url, updated_at
		FROM citations WHERE work_id = ? LIMIT 1`, workID)
	if err != nil {
		return nil, fmt.Errorf("get citation: %w", err)
	}
	defer rows.Close()

	var c models.Citation
	var doi, sourceURL sql.NullString
	var pubDate sql.NullTime
	if !rows.Next() {
		return nil, rows.Err()
	}
	if err := rows.Scan(&c.WorkID, &doi, &c.Title, &c.Authors, &pubDate,
		&c.CitedByCount, &c.CitationType, &sourceURL, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.DOI = doi.String
	c.SourceURL = sourceURL.String
	if pubDate.Valid {
		t := pubDate.Time
		c.PublicationDate = &t
	}
	return &c, nil
}

// LatestMetric returns the most recent observation of a metric for a
// platform, or nil when none exists.
func (s *Store) LatestMetric(ctx context.Context, platform, metric string) (*models.MetricPoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT platform, metric, observed_at, value
		FROM metric_points
		WHERE platform = ? AND metric = ?
		ORDER BY observed_date DESC
		LIMIT 1`, platform, metric)

	var p models.MetricPoint
	err := row.Scan(&p.Platform, &p.Metric, &p.ObservedAt, &p.Value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest metric %s/%s: %w", platform, metric, err)
	}
	return &p, nil
}

// CountMentions counts every stored mention, optionally per platform.
func (s *Store) CountMentions(ctx context.Context, platform string) (int, error) {
	var total int
	var err error
	if platform == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mentions`).Scan(&total)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM mentions WHERE platform = ?`, platform).Scan(&total)
	}
	if err != nil {
		return 0, fmt.Errorf("count mentions: %w", err)
	}
	return total, nil
}
