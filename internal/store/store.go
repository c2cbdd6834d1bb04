// Package store provides SQLite persistence for the impact monitor.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/ummatics/impact-monitor/internal/models"
)

// Store handles all database access. Every writer uses natural-key upsert
// so re-running ingestion is always safe; each upsert is its own small
// transaction, so a crash mid-run loses at most the in-flight item.
type Store struct {
	db *sql.DB
}

// Open creates a Store at the given path, creating tables as needed.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logrus.Infof("Database initialized at %s", dbPath)
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS mentions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		platform TEXT NOT NULL,
		external_id TEXT NOT NULL,
		author TEXT,
		title TEXT,
		body TEXT,
		permalink TEXT,
		posted_at DATETIME NOT NULL,
		engagement_primary INTEGER NOT NULL DEFAULT 0,
		engagement_secondary INTEGER NOT NULL DEFAULT 0,
		engagement_replies INTEGER NOT NULL DEFAULT 0,
		keyword TEXT,
		match_location TEXT,
		sentiment TEXT,
		sentiment_score REAL,
		sentiment_scored_at DATETIME,
		ingested_at DATETIME NOT NULL,
		UNIQUE(platform, external_id)
	);

	CREATE INDEX IF NOT EXISTS idx_mentions_posted ON mentions(posted_at);
	CREATE INDEX IF NOT EXISTS idx_mentions_platform_posted ON mentions(platform, posted_at);
	CREATE INDEX IF NOT EXISTS idx_mentions_unscored ON mentions(sentiment_scored_at) WHERE sentiment_scored_at IS NULL;

	CREATE TABLE IF NOT EXISTS metric_points (
		platform TEXT NOT NULL,
		metric TEXT NOT NULL,
		observed_date TEXT NOT NULL,
		observed_at DATETIME NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (platform, metric, observed_date)
	);

	CREATE TABLE IF NOT EXISTS citations (
		work_id TEXT PRIMARY KEY,
		doi TEXT,
		title TEXT NOT NULL,
		authors TEXT,
		publication_date DATETIME,
		cited_by_count INTEGER NOT NULL DEFAULT 0,
		citation_type TEXT NOT NULL,
		source_url TEXT,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_citations_cited ON citations(cited_by_count DESC);

	CREATE TABLE IF NOT EXISTS communities (
		name TEXT PRIMARY KEY,
		discovered_at DATETIME NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		last_checked DATETIME
	);

	CREATE TABLE IF NOT EXISTS daily_buckets (
		date TEXT NOT NULL,
		platform TEXT NOT NULL,
		mentions_count INTEGER NOT NULL DEFAULT 0,
		avg_engagement REAL NOT NULL DEFAULT 0,
		positive_count INTEGER NOT NULL DEFAULT 0,
		negative_count INTEGER NOT NULL DEFAULT 0,
		neutral_count INTEGER NOT NULL DEFAULT 0,
		unscored_count INTEGER NOT NULL DEFAULT 0,
		avg_sentiment_score REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (date, platform)
	);

	CREATE INDEX IF NOT EXISTS idx_daily_buckets_date ON daily_buckets(date DESC);

	CREATE TABLE IF NOT EXISTS weekly_snapshots (
		week_start_date TEXT PRIMARY KEY,
		week_end_date TEXT NOT NULL,
		total_news_mentions INTEGER NOT NULL DEFAULT 0,
		total_social_mentions INTEGER NOT NULL DEFAULT 0,
		total_citations INTEGER NOT NULL DEFAULT 0,
		total_website_sessions INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const dateLayout = "2006-01-02"

// UpsertMention inserts a mention if its natural key is unseen. A conflict
// is a silent skip, never an overwrite: mentions are point-in-time
// captures and their content is immutable after first sighting.
func (s *Store) UpsertMention(ctx context.Context, m models.Mention) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO mentions
			(platform, external_id, author, title, body, permalink, posted_at,
			 engagement_primary, engagement_secondary, engagement_replies,
			 keyword, match_location, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform, external_id) DO NOTHING`,
		m.Platform, m.ExternalID, m.Author, m.Title, m.Body, m.Permalink,
		m.PostedAt.UTC(), m.Engagement.Primary, m.Engagement.Secondary,
		m.Engagement.Replies, m.Keyword, m.MatchLocation, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("upsert mention %s/%s: %w", m.Platform, m.ExternalID, err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// UpsertMetricPoint records one observation per (platform, metric, day);
// a repeat observation on the same day overwrites the value, so the
// latest fetch wins.
func (s *Store) UpsertMetricPoint(ctx context.Context, p models.MetricPoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metric_points (platform, metric, observed_date, observed_at, value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(platform, metric, observed_date) DO UPDATE SET
			observed_at = excluded.observed_at,
			value = excluded.value`,
		p.Platform, p.Metric, p.ObservedAt.UTC().Format(dateLayout), p.ObservedAt.UTC(), p.Value)
	if err != nil {
		return fmt.Errorf("upsert metric point %s/%s: %w", p.Platform, p.Metric, err)
	}
	return nil
}

// UpsertCitation inserts a citation or, on a work-ID conflict, updates
// only the mutable fields. Citations are the one entity whose non-key
// fields change over time: cited_by_count grows on re-fetch.
func (s *Store) UpsertCitation(ctx context.Context, c models.Citation) error {
	var pubDate interface{}
	if c.PublicationDate != nil {
		pubDate = c.PublicationDate.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO citations
			(work_id, doi, title, authors, publication_date, cited_by_count,
			 citation_type, source_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(work_id) DO UPDATE SET
			cited_by_count = excluded.cited_by_count,
			updated_at = excluded.updated_at`,
		c.WorkID, c.DOI, c.Title, c.Authors, pubDate, c.CitedByCount,
		c.CitationType, c.SourceURL, c.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert citation %s: %w", c.WorkID, err)
	}
	return nil
}

// AddCommunity registers a discovered community if it is new. Returns true
// when the registry gained a row.
func (s *Store) AddCommunity(ctx context.Context, name string, discoveredAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO communities (name, discovered_at, is_active, last_checked)
		VALUES (?, ?, 1, NULL)
		ON CONFLICT(name) DO NOTHING`,
		name, discoveredAt.UTC())
	if err != nil {
		return false, fmt.Errorf("add community %s: %w", name, err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// TouchCommunity updates last_checked regardless of whether the poll
// found anything.
func (s *Store) TouchCommunity(ctx context.Context, name string, checkedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE communities SET last_checked = ? WHERE name = ?`,
		checkedAt.UTC(), name)
	if err != nil {
		return fmt.Errorf("touch community %s: %w", name, err)
	}
	return nil
}

// ActiveCommunities returns the names of registry entries still being polled.
func (s *Store) ActiveCommunities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM communities WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// UnscoredMentions returns up to limit mentions that enrichment has not
// scored yet, oldest first. This is the work queue behind the enrichment
// stage; at-least-once semantics, safe to interrupt and resume.
func (s *Store) UnscoredMentions(ctx context.Context, limit int) ([]models.Mention, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, platform, external_id, author, title, body, posted_at
		FROM mentions
		WHERE sentiment_scored_at IS NULL
		ORDER BY id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select unscored mentions: %w", err)
	}
	defer rows.Close()

	var mentions []models.Mention
	for rows.Next() {
		var m models.Mention
		if err := rows.Scan(&m.ID, &m.Platform, &m.ExternalID, &m.Author,
			&m.Title, &m.Body, &m.PostedAt); err != nil {
			return nil, err
		}
		mentions = append(mentions, m)
	}
	return mentions, rows.Err()
}

// MarkScored persists the sentiment result for one mention. This is the
// only writer of the sentiment columns.
func (s *Store) MarkScored(ctx context.Context, id int64, label string, score float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mentions
		SET sentiment = ?, sentiment_score = ?, sentiment_scored_at = ?
		WHERE id = ?`,
		label, score, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark mention %d scored: %w", id, err)
	}
	return nil
}

// MentionsOn returns all mentions for a platform whose posted_at falls on
// the given UTC calendar day.
func (s *Store) MentionsOn(ctx context.Context, day time.Time, platform string) ([]models.Mention, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, platform, external_id, author, title, body, permalink, posted_at,
		       engagement_primary, engagement_secondary, engagement_replies,
		       keyword, match_location, sentiment, sentiment_score, sentiment_scored_at, ingested_at
		FROM mentions
		WHERE platform = ? AND posted_at >= ? AND posted_at < ?
		ORDER BY posted_at`, platform, start, end)
	if err != nil {
		return nil, fmt.Errorf("select mentions on %s for %s: %w", start.Format(dateLayout), platform, err)
	}
	defer rows.Close()

	return scanMentions(rows)
}

func scanMentions(rows *sql.Rows) ([]models.Mention, error) {
	var mentions []models.Mention
	for rows.Next() {
		var m models.Mention
		var sentiment sql.NullString
		var score sql.NullFloat64
		var scoredAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.Platform, &m.ExternalID, &m.Author,
			&m.Title, &m.Body, &m.Permalink, &m.PostedAt,
			&m.Engagement.Primary, &m.Engagement.Secondary, &m.Engagement.Replies,
			&m.Keyword, &m.MatchLocation, &sentiment, &score, &scoredAt, &m.IngestedAt); err != nil {
			return nil, err
		}
		if sentiment.Valid {
			m.Sentiment = sentiment.String
		}
		if score.Valid {
			v := score.Float64
			m.SentimentScore = &v
		}
		if scoredAt.Valid {
			t := scoredAt.Time
			m.ScoredAt = &t
		}
		mentions = append(mentions, m)
	}
	return mentions, rows.Err()
}
