package aggregate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ummatics/impact-monitor/internal/models"
	"github.com/ummatics/impact-monitor/internal/store"
)

var testDay = time.Date(2026, 8, 12, 0, 0, 0, 0, time.UTC) // a Wednesday

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	platforms := []string{models.PlatformTwitter, models.PlatformReddit, models.PlatformNews}
	return New(st, platforms, nil), st
}

func seedMention(t *testing.T, st *store.Store, platform, id string, postedAt time.Time, engagement models.Engagement, sentiment string, score float64) {
	t.Helper()
	ctx := context.Background()
	inserted, err := st.UpsertMention(ctx, models.Mention{
		Platform:   platform,
		ExternalID: id,
		Author:     "someone",
		Body:       "about ummatics",
		PostedAt:   postedAt,
		Engagement: engagement,
		Keyword:    "ummatics",
	})
	require.NoError(t, err)
	require.True(t, inserted)

	if sentiment != "" {
		mentions, err := st.MentionsOn(ctx, postedAt, platform)
		require.NoError(t, err)
		for _, m := range mentions {
			if m.ExternalID == id {
				require.NoError(t, st.MarkScored(ctx, m.ID, sentiment, score, time.Now().UTC()))
			}
		}
	}
}

func TestRecomputeDaily(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	seedMention(t, st, models.PlatformTwitter, "1", testDay.Add(2*time.Hour),
		models.Engagement{Primary: 10, Secondary: 2, Replies: 3}, models.SentimentPositive, 0.8)
	seedMention(t, st, models.PlatformTwitter, "2", testDay.Add(4*time.Hour),
		models.Engagement{Primary: 2}, models.SentimentNegative, -0.4)
	seedMention(t, st, models.PlatformTwitter, "3", testDay.Add(6*time.Hour),
		models.Engagement{}, "", 0)

	bucket, err := engine.RecomputeDaily(ctx, testDay, models.PlatformTwitter)
	require.NoError(t, err)

	assert.Equal(t, 3, bucket.MentionsCount)
	assert.Equal(t, 1, bucket.PositiveCount)
	assert.Equal(t, 1, bucket.NegativeCount)
	assert.Equal(t, 0, bucket.NeutralCount)
	assert.Equal(t, 1, bucket.UnscoredCount)
	// Unit weights: (15 + 2 + 0) / 3
	assert.InDelta(t, 17.0/3.0, bucket.AvgEngagement, 1e-9)
	// Average over the two scored mentions only.
	assert.InDelta(t, 0.2, bucket.AvgSentiment, 1e-9)
}

func TestRecomputeDaily_EmptyDayWritesZeroBucket(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	bucket, err := engine.RecomputeDaily(ctx, testDay, models.PlatformReddit)
	require.NoError(t, err)
	assert.Equal(t, 0, bucket.MentionsCount)

	stored, err := st.GetDailyBucket(ctx, testDay, models.PlatformReddit)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 0, stored.MentionsCount)
	assert.Equal(t, 0.0, stored.AvgEngagement)
}

func TestRecomputeDaily_Idempotent(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	seedMention(t, st, models.PlatformTwitter, "1", testDay.Add(time.Hour),
		models.Engagement{Primary: 5}, models.SentimentPositive, 0.5)

	first, err := engine.RecomputeDaily(ctx, testDay, models.PlatformTwitter)
	require.NoError(t, err)
	second, err := engine.RecomputeDaily(ctx, testDay, models.PlatformTwitter)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	buckets, err := st.DailyBuckets(ctx, models.PlatformTwitter, 10)
	require.NoError(t, err)
	assert.Len(t, buckets, 1)
}

func TestRecomputeDaily_CustomWeights(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	weights := func(platform string) [3]float64 {
		return [3]float64{1, 2, 0.5}
	}
	engine := New(st, []string{models.PlatformTwitter}, weights)
	ctx := context.Background()

	seedMention(t, st, models.PlatformTwitter, "1", testDay.Add(time.Hour),
		models.Engagement{Primary: 4, Secondary: 3, Replies: 2}, "", 0)

	bucket, err := engine.RecomputeDaily(ctx, testDay, models.PlatformTwitter)
	require.NoError(t, err)
	// 1*4 + 2*3 + 0.5*2
	assert.InDelta(t, 11.0, bucket.AvgEngagement, 1e-9)
}

func TestRecomputeDailyRange_DenseSeries(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	// One mention in the middle of the range, rest of the days empty.
	seedMention(t, st, models.PlatformTwitter, "1", testDay.Add(time.Hour),
		models.Engagement{Primary: 1}, "", 0)

	from := testDay.AddDate(0, 0, -2)
	to := testDay.AddDate(0, 0, 2)
	days, err := engine.RecomputeDailyRange(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, 5, days)

	buckets, err := st.DailyBuckets(ctx, models.PlatformTwitter, 100)
	require.NoError(t, err)
	require.Len(t, buckets, 5)

	total := 0
	for _, b := range buckets {
		total += b.MentionsCount
	}
	assert.Equal(t, 1, total)
}

func TestRecomputeWeekly_FanIn(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	monday := WeekStart(testDay)

	seedMention(t, st, models.PlatformTwitter, "t1", testDay.Add(time.Hour), models.Engagement{}, "", 0)
	seedMention(t, st, models.PlatformReddit, "r1", testDay.Add(2*time.Hour), models.Engagement{}, "", 0)
	seedMention(t, st, models.PlatformNews, "n1", testDay.Add(3*time.Hour), models.Engagement{}, "", 0)
	// A news item posted just after the week must not count.
	seedMention(t, st, models.PlatformNews, "n2", monday.AddDate(0, 0, 7), models.Engagement{}, "", 0)

	require.NoError(t, st.UpsertCitation(ctx, models.Citation{
		WorkID:       "W1",
		Title:        "work",
		CitedByCount: 12,
		CitationType: models.CitationInstitutional,
		UpdatedAt:    time.Now().UTC(),
	}))
	require.NoError(t, st.UpsertMetricPoint(ctx, models.MetricPoint{
		Platform:   "website",
		Metric:     models.MetricSiteSessions,
		ObservedAt: testDay,
		Value:      350,
	}))

	// Social totals read the daily buckets, so those come first.
	_, err := engine.RecomputeDailyRange(ctx, monday, monday.AddDate(0, 0, 6))
	require.NoError(t, err)

	snapshot, err := engine.RecomputeWeekly(ctx, testDay)
	require.NoError(t, err)

	assert.Equal(t, monday, snapshot.WeekStart)
	assert.Equal(t, 2, snapshot.SocialMentions)
	assert.Equal(t, 1, snapshot.NewsMentions)
	assert.Equal(t, 12, snapshot.Citations)
	assert.Equal(t, 350, snapshot.SiteSessions)
}

func TestRecomputeWeeksIn_OneSnapshotPerWeek(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	from := WeekStart(testDay)
	to := from.AddDate(0, 0, 13)
	weeks, err := engine.RecomputeWeeksIn(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, weeks)

	snapshots, err := st.WeeklySnapshots(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, snapshots, 2)
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected time.Time
	}{
		{
			name:     "Monday maps to itself",
			input:    time.Date(2026, 8, 10, 15, 30, 0, 0, time.UTC),
			expected: time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "Wednesday maps back to Monday",
			input:    time.Date(2026, 8, 12, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "Sunday maps back six days",
			input:    time.Date(2026, 8, 16, 23, 59, 0, 0, time.UTC),
			expected: time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, WeekStart(tt.input))
		})
	}
}
