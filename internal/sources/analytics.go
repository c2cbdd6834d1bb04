package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/ummatics/impact-monitor/internal/models"
)

// AnalyticsSource pulls site traffic totals for the trailing week from the
// analytics reporting API and emits them as metric points under the
// "website" platform. It produces no mentions.
type AnalyticsSource struct {
	baseURL    string
	propertyID string
	apiSecret  string
	client     *resty.Client
}

type analyticsReportRequest struct {
	DateRanges []analyticsDateRange `json:"dateRanges"`
	Metrics    []analyticsMetric    `json:"metrics"`
}

type analyticsDateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type analyticsMetric struct {
	Name string `json:"name"`
}

type analyticsReportResponse struct {
	Rows []struct {
		MetricValues []struct {
			Value string `json:"value"`
		} `json:"metricValues"`
	} `json:"rows"`
}

// NewAnalyticsSource creates the analytics connector.
func NewAnalyticsSource(baseURL, propertyID, apiSecret string) *AnalyticsSource {
	return &AnalyticsSource{
		baseURL:    baseURL,
		propertyID: propertyID,
		apiSecret:  apiSecret,
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "impact-monitor/1.0"),
	}
}

// SetBaseURL overrides the reporting endpoint; used by tests.
func (a *AnalyticsSource) SetBaseURL(base string) {
	a.baseURL = base
}

func (a *AnalyticsSource) Name() string {
	return "analytics"
}

func (a *AnalyticsSource) Enabled() bool {
	return a.propertyID != "" && a.apiSecret != ""
}

func (a *AnalyticsSource) Fetch(ctx context.Context) (Batch, error) {
	var batch Batch

	body := analyticsReportRequest{
		DateRanges: []analyticsDateRange{{StartDate: "7daysAgo", EndDate: "today"}},
		Metrics: []analyticsMetric{
			{Name: "sessions"},
			{Name: "totalUsers"},
			{Name: "screenPageViews"},
		},
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+a.apiSecret).
		SetBody(body).
		Post(fmt.Sprintf("%s/v1beta/properties/%s:runReport", a.baseURL, a.propertyID))
	if err != nil {
		return batch, err
	}
	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		return batch, Permanent("analytics API rejected credentials: status %d", resp.StatusCode())
	}
	if resp.StatusCode() != 200 {
		return batch, fmt.Errorf("analytics API returned status %d", resp.StatusCode())
	}

	var parsed analyticsReportResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return batch, Permanent("failed to parse analytics response: %v", err)
	}
	if len(parsed.Rows) == 0 {
		logrus.Warnf("Analytics report returned no rows")
		return batch, nil
	}

	values := parsed.Rows[0].MetricValues
	metrics := []string{models.MetricSiteSessions, models.MetricSiteUsers, models.MetricSitePageviews}
	now := time.Now().UTC()
	for i, metric := range metrics {
		if i >= len(values) {
			break
		}
		value, err := strconv.ParseFloat(values[i].Value, 64)
		if err != nil {
			logrus.Warnf("Skipping unparseable analytics value %q for %s", values[i].Value, metric)
			continue
		}
		batch.Metrics = append(batch.Metrics, models.MetricPoint{
			Platform:   "website",
			Metric:     metric,
			ObservedAt: now,
			Value:      value,
		})
	}

	logrus.Infof("Analytics report yielded %d metric points", len(batch.Metrics))
	return batch, nil
}
