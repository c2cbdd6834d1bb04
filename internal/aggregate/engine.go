// Package aggregate rolls normalized mentions and metric points up into
// the derived daily and weekly tables the dashboard reads. Every
// recompute is idempotent: buckets are pure functions of the source rows,
// upserted by natural key, so backfilling historical gaps is just
// re-running the same computation.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ummatics/impact-monitor/internal/models"
	"github.com/ummatics/impact-monitor/internal/store"
)

// WeightsFunc returns the engagement weight vector (primary, secondary,
// replies) for a platform.
type WeightsFunc func(platform string) [3]float64

// Engine recomputes the derived aggregate tables.
type Engine struct {
	store     *store.Store
	platforms []string
	weights   WeightsFunc
}

// New creates an Engine covering the given platforms. Days with no
// mentions on a covered platform still get a zero bucket so the time
// series stays dense.
func New(st *store.Store, platforms []string, weights WeightsFunc) *Engine {
	if weights == nil {
		weights = func(string) [3]float64 { return [3]float64{1, 1, 1} }
	}
	return &Engine{store: st, platforms: platforms, weights: weights}
}

// RecomputeDaily rebuilds the bucket for one (day, platform) from the
// mentions table. Unscored mentions count toward volume but not toward
// the sentiment distribution, so volume is reportable before enrichment
// catches up.
func (e *Engine) RecomputeDaily(ctx context.Context, day time.Time, platform string) (*models.DailyBucket, error) {
	mentions, err := e.store.MentionsOn(ctx, day, platform)
	if err != nil {
		return nil, fmt.Errorf("load mentions for %s/%s: %w", day.Format("2006-01-02"), platform, err)
	}

	bucket := models.DailyBucket{
		Date:     day.UTC().Truncate(24 * time.Hour),
		Platform: platform,
	}

	w := e.weights(platform)
	var engagementTotal float64
	var scoreTotal float64
	scoredCount := 0

	for _, m := range mentions {
		bucket.MentionsCount++
		engagementTotal += w[0]*float64(m.Engagement.Primary) +
			w[1]*float64(m.Engagement.Secondary) +
			w[2]*float64(m.Engagement.Replies)

		switch m.Sentiment {
		case models.SentimentPositive:
			bucket.PositiveCount++
		case models.SentimentNegative:
			bucket.NegativeCount++
		case models.SentimentNeutral:
			bucket.NeutralCount++
		default:
			bucket.UnscoredCount++
		}
		if m.SentimentScore != nil {
			scoreTotal += *m.SentimentScore
			scoredCount++
		}
	}

	if bucket.MentionsCount > 0 {
		bucket.AvgEngagement = engagementTotal / float64(bucket.MentionsCount)
	}
	if scoredCount > 0 {
		bucket.AvgSentiment = scoreTotal / float64(scoredCount)
	}

	if err := e.store.UpsertDailyBucket(ctx, bucket); err != nil {
		return nil, err
	}
	return &bucket, nil
}

// RecomputeDailyRange rebuilds buckets for every covered platform on
// every day in [from, to]. Returns the number of days processed.
func (e *Engine) RecomputeDailyRange(ctx context.Context, from, to time.Time) (int, error) {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)

	days := 0
	for day := from; !day.After(to); day = day.Add(24 * time.Hour) {
		for _, platform := range e.platforms {
			if _, err := e.RecomputeDaily(ctx, day, platform); err != nil {
				return days, err
			}
		}
		days++
	}

	logrus.Infof("Recomputed daily buckets for %d days across %d platforms", days, len(e.platforms))
	return days, nil
}

// RecomputeWeekly rebuilds the overview snapshot for the week starting at
// the given Monday. The snapshot fans in over several tables: social
// totals come from the daily buckets, but news counts, citation totals,
// and site sessions are re-read from their own source tables.
func (e *Engine) RecomputeWeekly(ctx context.Context, weekStart time.Time) (*models.WeeklySnapshot, error) {
	weekStart = WeekStart(weekStart)
	weekEnd := weekStart.AddDate(0, 0, 6)

	snapshot := models.WeeklySnapshot{
		WeekStart: weekStart,
		WeekEnd:   weekEnd,
	}

	for _, platform := range e.platforms {
		if platform == models.PlatformNews {
			continue
		}
		n, err := e.store.SumDailyMentions(ctx, platform, weekStart, weekEnd)
		if err != nil {
			return nil, fmt.Errorf("sum social mentions for week %s: %w", weekStart.Format("2006-01-02"), err)
		}
		snapshot.SocialMentions += n
	}

	news, err := e.store.CountMentionsBetween(ctx, models.PlatformNews, weekStart, weekEnd.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("count news mentions for week %s: %w", weekStart.Format("2006-01-02"), err)
	}
	snapshot.NewsMentions = news

	citations, err := e.store.TotalCitations(ctx)
	if err != nil {
		return nil, err
	}
	snapshot.Citations = citations

	sessions, err := e.store.SumMetric(ctx, models.MetricSiteSessions, weekStart, weekEnd)
	if err != nil {
		return nil, err
	}
	snapshot.SiteSessions = int(sessions)

	if err := e.store.UpsertWeeklySnapshot(ctx, snapshot); err != nil {
		return nil, err
	}

	logrus.Infof("Weekly snapshot %s: news=%d social=%d citations=%d sessions=%d",
		weekStart.Format("2006-01-02"), snapshot.NewsMentions, snapshot.SocialMentions,
		snapshot.Citations, snapshot.SiteSessions)
	return &snapshot, nil
}

// RecomputeWeeksIn rebuilds every weekly snapshot whose Monday falls in
// [from, to]. Returns the number of weeks processed.
func (e *Engine) RecomputeWeeksIn(ctx context.Context, from, to time.Time) (int, error) {
	weeks := 0
	seen := map[string]bool{}
	for day := from.UTC().Truncate(24 * time.Hour); !day.After(to); day = day.Add(24 * time.Hour) {
		monday := WeekStart(day)
		key := monday.Format("2006-01-02")
		if seen[key] {
			continue
		}
		seen[key] = true
		if _, err := e.RecomputeWeekly(ctx, monday); err != nil {
			return weeks, err
		}
		weeks++
	}
	return weeks, nil
}

// WeekStart returns the Monday of the week containing t, truncated to a
// UTC day.
func WeekStart(t time.Time) time.Time {
	t = t.UTC().Truncate(24 * time.Hour)
	offset := (int(t.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return t.AddDate(0, 0, -offset)
}
