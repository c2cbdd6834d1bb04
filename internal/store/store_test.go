package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ummatics/impact-monitor/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testMention(externalID string) models.Mention {
	return models.Mention{
		Platform:      models.PlatformTwitter,
		ExternalID:    externalID,
		Author:        "someone",
		Body:          "ummatics is doing interesting work",
		Permalink:     "https://twitter.com/someone/status/" + externalID,
		PostedAt:      time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC),
		Engagement:    models.Engagement{Primary: 3, Secondary: 1, Replies: 2},
		Keyword:       "ummatics",
		MatchLocation: models.MatchBody,
	}
}

func TestUpsertMention_Dedup(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	inserted, err := st.UpsertMention(ctx, testMention("100"))
	require.NoError(t, err)
	assert.True(t, inserted)

	// The same natural key with different content is a silent skip.
	dup := testMention("100")
	dup.Body = "edited body that must not overwrite"
	inserted, err = st.UpsertMention(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	count, err := st.CountMentions(ctx, models.PlatformTwitter)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	mentions, err := st.RecentMentions(ctx, models.PlatformTwitter, 10, 0)
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, "ummatics is doing interesting work", mentions[0].Body)
}

func TestUpsertMention_SamePlatformDifferentID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		inserted, err := st.UpsertMention(ctx, testMention(id))
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	count, err := st.CountMentions(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestUpsertCitation_CountGrows(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	citation := models.Citation{
		WorkID:       "W123",
		DOI:          "10.1234/example",
		Title:        "A study of transnational institutions",
		Authors:      "A. Author, B. Author",
		CitedByCount: 4,
		CitationType: models.CitationInstitutional,
		SourceURL:    "https://example.org/w123",
		UpdatedAt:    time.Now().UTC(),
	}
	require.NoError(t, st.UpsertCitation(ctx, citation))

	// Re-fetch of the same work with a grown count updates in place.
	citation.CitedByCount = 9
	citation.Title = "changed title that must not overwrite"
	require.NoError(t, st.UpsertCitation(ctx, citation))

	got, err := st.GetCitation(ctx, "W123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 9, got.CitedByCount)
	assert.Equal(t, "A study of transnational institutions", got.Title)

	total, err := st.TotalCitations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, total)
}

func TestCommunityRegistry(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	added, err := st.AddCommunity(ctx, "islam", now)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = st.AddCommunity(ctx, "islam", now)
	require.NoError(t, err)
	assert.False(t, added)

	added, err = st.AddCommunity(ctx, "MuslimLounge", now)
	require.NoError(t, err)
	assert.True(t, added)

	require.NoError(t, st.TouchCommunity(ctx, "islam", now))

	names, err := st.ActiveCommunities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"MuslimLounge", "islam"}, names)
}

func TestUnscoredMentionsQueue(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		_, err := st.UpsertMention(ctx, testMention(id))
		require.NoError(t, err)
	}

	unscored, err := st.UnscoredMentions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unscored, 3)

	require.NoError(t, st.MarkScored(ctx, unscored[0].ID, models.SentimentPositive, 0.6, time.Now().UTC()))

	unscored, err = st.UnscoredMentions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, unscored, 2)

	// A neutral zero score still counts as scored.
	require.NoError(t, st.MarkScored(ctx, unscored[0].ID, models.SentimentNeutral, 0, time.Now().UTC()))
	unscored, err = st.UnscoredMentions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, unscored, 1)
}

func TestMentionsOn_DayBoundary(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	inDay := testMention("in")
	inDay.PostedAt = day.Add(23*time.Hour + 59*time.Minute)
	_, err := st.UpsertMention(ctx, inDay)
	require.NoError(t, err)

	nextDay := testMention("next")
	nextDay.PostedAt = day.Add(24 * time.Hour)
	_, err = st.UpsertMention(ctx, nextDay)
	require.NoError(t, err)

	mentions, err := st.MentionsOn(ctx, day, models.PlatformTwitter)
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, "in", mentions[0].ExternalID)
}

func TestUpsertMetricPoint_LatestWins(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	observed := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	point := models.MetricPoint{
		Platform:   models.PlatformTwitter,
		Metric:     models.MetricAudienceSize,
		ObservedAt: observed,
		Value:      1500,
	}
	require.NoError(t, st.UpsertMetricPoint(ctx, point))

	// Second observation on the same day overwrites.
	point.ObservedAt = observed.Add(6 * time.Hour)
	point.Value = 1523
	require.NoError(t, st.UpsertMetricPoint(ctx, point))

	latest, err := st.LatestMetric(ctx, models.PlatformTwitter, models.MetricAudienceSize)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 1523.0, latest.Value)
}

func TestWeeklySnapshotRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	weekStart := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC) // a Monday
	snapshot := models.WeeklySnapshot{
		WeekStart:      weekStart,
		WeekEnd:        weekStart.AddDate(0, 0, 6),
		NewsMentions:   2,
		SocialMentions: 14,
		Citations:      31,
		SiteSessions:   420,
	}
	require.NoError(t, st.UpsertWeeklySnapshot(ctx, snapshot))

	// Recompute overwrites in place.
	snapshot.SocialMentions = 15
	require.NoError(t, st.UpsertWeeklySnapshot(ctx, snapshot))

	got, err := st.GetWeeklySnapshot(ctx, weekStart)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 15, got.SocialMentions)

	all, err := st.WeeklySnapshots(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
