package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ummatics/impact-monitor/internal/models"
	"github.com/ummatics/impact-monitor/internal/sources"
	"github.com/ummatics/impact-monitor/internal/store"
)

// ErrRunInProgress is returned when a run is requested while another one
// is still executing.
var ErrRunInProgress = errors.New("ingestion run already in progress")

// Enricher scores mentions that have not been through sentiment analysis.
type Enricher interface {
	EnrichUnscored(ctx context.Context) (int, error)
}

// Aggregator recomputes the derived daily and weekly rollups.
type Aggregator interface {
	RecomputeDailyRange(ctx context.Context, from, to time.Time) (int, error)
	RecomputeWeeksIn(ctx context.Context, from, to time.Time) (int, error)
}

// Service runs the full pipeline: fetch from every enabled connector,
// upsert, enrich, aggregate. Connector failures are isolated per source;
// aggregation failures abort the run because the rollups would otherwise
// silently go stale.
type Service struct {
	store        *store.Store
	sources      []sources.Source
	enricher     Enricher
	aggregator   Aggregator
	backfillDays int

	mu      sync.Mutex
	running bool

	lastMu  sync.RWMutex
	lastRun *models.RunReport
}

// New creates the ingestion service. backfillDays controls how far back
// daily buckets are recomputed each run, so late-arriving mentions still
// land in the right bucket.
func New(st *store.Store, srcs []sources.Source, enricher Enricher, aggregator Aggregator, backfillDays int) *Service {
	if backfillDays < 1 {
		backfillDays = 1
	}
	return &Service{
		store:        st,
		sources:      srcs,
		enricher:     enricher,
		aggregator:   aggregator,
		backfillDays: backfillDays,
	}
}

// Run executes one full pipeline pass. Only one run may execute at a
// time; concurrent callers get ErrRunInProgress.
func (s *Service) Run(ctx context.Context) (*models.RunReport, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrRunInProgress
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	started := time.Now().UTC()
	report := &models.RunReport{
		StartedAt:  started,
		Connectors: make(map[string]models.ConnectorReport),
	}

	logrus.Infof("Starting ingestion run with %d sources", len(s.sources))

	for _, src := range s.sources {
		if !src.Enabled() {
			logrus.Infof("Source %s is disabled, skipping", src.Name())
			continue
		}
		report.Connectors[src.Name()] = s.runSource(ctx, src)
	}

	scored, err := s.enricher.EnrichUnscored(ctx)
	if err != nil {
		// Enrichment is retried next run; unscored rows stay queued.
		logrus.Errorf("Sentiment enrichment failed: %v", err)
		report.ErrorCount++
	}
	report.MentionsScored = scored

	for _, cr := range report.Connectors {
		if cr.Error != "" {
			report.ErrorCount++
		}
	}

	if err := s.aggregate(ctx, report); err != nil {
		report.ErrorCount++
		s.finish(report, started)
		return report, fmt.Errorf("aggregation failed: %w", err)
	}

	s.finish(report, started)
	logrus.Infof("Ingestion run complete in %s: %d connectors, %d scored, %d errors",
		report.Duration, len(report.Connectors), report.MentionsScored, report.ErrorCount)
	return report, nil
}

// runSource fetches one connector's batch and persists it. All errors are
// captured in the report rather than propagated, so one broken source
// never takes the others down.
func (s *Service) runSource(ctx context.Context, src sources.Source) models.ConnectorReport {
	var cr models.ConnectorReport

	batch, err := src.Fetch(ctx)
	if err != nil {
		cr.Error = err.Error()
		cr.Permanent = sources.IsPermanent(err)
		if cr.Permanent {
			logrus.Errorf("Source %s failed permanently, needs operator attention: %v", src.Name(), err)
		} else {
			logrus.Warnf("Source %s failed transiently: %v", src.Name(), err)
		}
		// A page fetched before the failure is still worth keeping.
		if batch.Size() == 0 {
			return cr
		}
	}

	cr.Fetched = batch.Size()

	for _, m := range batch.Mentions {
		inserted, err := s.store.UpsertMention(ctx, m)
		if err != nil {
			logrus.Warnf("Failed to upsert mention %s/%s: %v", m.Platform, m.ExternalID, err)
			continue
		}
		if inserted {
			cr.Inserted++
		} else {
			cr.Skipped++
		}
	}

	for _, p := range batch.Metrics {
		if err := s.store.UpsertMetricPoint(ctx, p); err != nil {
			logrus.Warnf("Failed to upsert metric %s/%s: %v", p.Platform, p.Metric, err)
		}
	}

	for _, c := range batch.Citations {
		if err := s.store.UpsertCitation(ctx, c); err != nil {
			logrus.Warnf("Failed to upsert citation %s: %v", c.WorkID, err)
		}
	}

	logrus.Infof("Source %s: fetched %d, inserted %d, skipped %d",
		src.Name(), cr.Fetched, cr.Inserted, cr.Skipped)
	return cr
}

func (s *Service) aggregate(ctx context.Context, report *models.RunReport) error {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -s.backfillDays)

	days, err := s.aggregator.RecomputeDailyRange(ctx, from, today)
	if err != nil {
		return fmt.Errorf("daily rollup: %w", err)
	}
	report.DaysAggregated = days

	weeks, err := s.aggregator.RecomputeWeeksIn(ctx, from, today)
	if err != nil {
		return fmt.Errorf("weekly rollup: %w", err)
	}
	report.WeeksAggregated = weeks
	return nil
}

func (s *Service) finish(report *models.RunReport, started time.Time) {
	report.Duration = time.Since(started).Round(time.Millisecond).String()
	s.lastMu.Lock()
	s.lastRun = report
	s.lastMu.Unlock()
}

// LastRun returns the report of the most recent completed run, or nil if
// no run has completed yet.
func (s *Service) LastRun() *models.RunReport {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.lastRun
}
