package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ummatics/impact-monitor/internal/config"
	"github.com/ummatics/impact-monitor/internal/models"
)

func sampleReport() *models.RunReport {
	return &models.RunReport{
		StartedAt: time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC),
		Duration:  "42s",
		Connectors: map[string]models.ConnectorReport{
			"twitter": {Fetched: 10, Inserted: 7, Skipped: 3},
			"reddit":  {Error: "rate limited"},
		},
		MentionsScored:  7,
		DaysAggregated:  7,
		WeeksAggregated: 2,
		ErrorCount:      1,
	}
}

func TestSendRunReport_Teams(t *testing.T) {
	var received TeamsMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &config.Config{TeamsWebhookURL: server.URL}
	service := NewService(cfg)

	require.NoError(t, service.SendRunReport(sampleReport()))

	assert.Equal(t, "MessageCard", received.Type)
	assert.Contains(t, received.Text, "7 new mentions")
	require.NotEmpty(t, received.Sections)
	assert.Equal(t, "Summary", received.Sections[0].ActivityTitle)
}

func TestSendRunReport_TeamsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := &config.Config{TeamsWebhookURL: server.URL}
	service := NewService(cfg)

	err := service.SendRunReport(sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Teams")
}

func TestSendRunReport_NoChannelsConfigured(t *testing.T) {
	service := NewService(&config.Config{})
	assert.NoError(t, service.SendRunReport(sampleReport()))
}

func TestBuildEmailText(t *testing.T) {
	service := NewService(&config.Config{})
	text := service.buildEmailText(sampleReport())

	assert.Contains(t, text, "Mentions Scored: 7")
	assert.Contains(t, text, "Errors: 1")
	assert.Contains(t, text, "twitter")
	assert.Contains(t, text, "Fetched: 10 | Inserted: 7 | Skipped: 3")
	assert.Contains(t, text, "Error: rate limited")
	// Connector sections come out in stable order.
	assert.Less(t, strings.Index(text, "reddit"), strings.Index(text, "twitter"))
}
