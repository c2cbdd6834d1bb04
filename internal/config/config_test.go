package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "weekly", cfg.Schedule)
	assert.Equal(t, []string{"ummatics"}, cfg.Keywords)
	assert.Equal(t, "ummatics", cfg.TwitterUsername)
	assert.Equal(t, []string{"islam", "MuslimLounge"}, cfg.Communities)
	assert.Equal(t, 50, cfg.EnrichmentBatch)
	assert.Equal(t, 0.1, cfg.PositiveThreshold)
	assert.Equal(t, -0.1, cfg.NegativeThreshold)
	assert.Equal(t, 7, cfg.BackfillDays)
	assert.Equal(t, 14, cfg.BackupRetention)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("INGEST_SCHEDULE", "daily")
	t.Setenv("KEYWORDS", "ummatics, muslim unity")
	t.Setenv("ENRICHMENT_BATCH_SIZE", "10")
	t.Setenv("SENTIMENT_POSITIVE_THRESHOLD", "0.25")
	t.Setenv("TWITTER_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "daily", cfg.Schedule)
	assert.Equal(t, []string{"ummatics", "muslim unity"}, cfg.Keywords)
	assert.Equal(t, 10, cfg.EnrichmentBatch)
	assert.Equal(t, 0.25, cfg.PositiveThreshold)
	assert.False(t, cfg.TwitterEnabled)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "Bad schedule",
			env:  map[string]string{"INGEST_SCHEDULE": "hourly"},
		},
		{
			name: "Batch size too large",
			env:  map[string]string{"ENRICHMENT_BATCH_SIZE": "200"},
		},
		{
			name: "Batch size zero",
			env:  map[string]string{"ENRICHMENT_BATCH_SIZE": "0"},
		},
		{
			name: "Inverted thresholds",
			env: map[string]string{
				"SENTIMENT_POSITIVE_THRESHOLD": "-0.5",
				"SENTIMENT_NEGATIVE_THRESHOLD": "0.5",
			},
		},
		{
			name: "Email without SMTP",
			env:  map[string]string{"NOTIFICATION_EMAIL": "team@example.org"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestWeightsFor(t *testing.T) {
	t.Setenv("ENGAGEMENT_WEIGHTS", "twitter:1:2:0.5,reddit:2:0:1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, [3]float64{1, 2, 0.5}, cfg.WeightsFor("twitter"))
	assert.Equal(t, [3]float64{2, 0, 1}, cfg.WeightsFor("reddit"))
	// Unknown platforms fall back to unit weights.
	assert.Equal(t, DefaultEngagementWeights, cfg.WeightsFor("news"))
}

func TestGetWeightsEnv_MalformedEntriesSkipped(t *testing.T) {
	t.Setenv("ENGAGEMENT_WEIGHTS", "twitter:1:2,reddit:a:b:c,news:1:1:1")

	weights := getWeightsEnv("ENGAGEMENT_WEIGHTS")
	assert.Len(t, weights, 1)
	assert.Equal(t, [3]float64{1, 1, 1}, weights["news"])
}

func TestGetSliceEnv(t *testing.T) {
	t.Setenv("TEST_SLICE", "a, b , ,c")
	assert.Equal(t, []string{"a", "b", "c"}, getSliceEnv("TEST_SLICE", nil))

	t.Setenv("TEST_SLICE", "")
	assert.Equal(t, []string{"fallback"}, getSliceEnv("TEST_SLICE", []string{"fallback"}))
}

func TestGetBoolEnv(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	assert.True(t, getBoolEnv("TEST_BOOL", false))

	t.Setenv("TEST_BOOL", "not-a-bool")
	assert.True(t, getBoolEnv("TEST_BOOL", true))

	t.Setenv("TEST_BOOL", "")
	assert.False(t, getBoolEnv("TEST_BOOL", false))
}
