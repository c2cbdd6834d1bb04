package scheduler

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ummatics/impact-monitor/internal/config"
	"github.com/ummatics/impact-monitor/internal/ingest"
)

// Runner is the pipeline entry point the scheduler triggers.
type Runner interface {
	Run(ctx context.Context) error
}

// Service schedules recurring ingestion runs.
type Service struct {
	config *config.Config
	runner Runner
	cron   *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, runner Runner) *Service {
	return &Service{
		config: cfg,
		runner: runner,
		cron:   cron.New(cron.WithSeconds()),
	}
}

// Start begins the scheduled ingestion runs.
func (s *Service) Start() error {
	var cronExpression string

	switch s.config.Schedule {
	case "daily":
		// Run daily at 9 AM UTC
		cronExpression = "0 0 9 * * *"
	case "weekly":
		// Run weekly on Monday at 9 AM UTC
		cronExpression = "0 0 9 * * MON"
	default:
		cronExpression = "0 0 9 * * *"
	}

	_, err := s.cron.AddFunc(cronExpression, func() {
		logrus.Info("Starting scheduled ingestion run")
		if err := s.runner.Run(context.Background()); err != nil {
			if errors.Is(err, ingest.ErrRunInProgress) {
				logrus.Warn("Skipping scheduled run, previous run still in progress")
				return
			}
			logrus.Errorf("Scheduled ingestion run failed: %v", err)
		}
	})

	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with %s schedule", s.config.Schedule)
	return nil
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logrus.Info("Scheduler stopped")
	}
}
