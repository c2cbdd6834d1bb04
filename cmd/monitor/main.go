package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ummatics/impact-monitor/internal/aggregate"
	"github.com/ummatics/impact-monitor/internal/api"
	"github.com/ummatics/impact-monitor/internal/backup"
	"github.com/ummatics/impact-monitor/internal/config"
	"github.com/ummatics/impact-monitor/internal/enrich"
	"github.com/ummatics/impact-monitor/internal/ingest"
	"github.com/ummatics/impact-monitor/internal/models"
	"github.com/ummatics/impact-monitor/internal/notifications"
	"github.com/ummatics/impact-monitor/internal/scheduler"
	"github.com/ummatics/impact-monitor/internal/sentiment"
	"github.com/ummatics/impact-monitor/internal/sources"
	"github.com/ummatics/impact-monitor/internal/store"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting impact monitor")

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logrus.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	var uploader backup.Uploader
	if cfg.BackupAccount != "" {
		uploader, err = backup.NewAzureBackup(cfg.BackupAccount, cfg.BackupContainer, cfg.BackupRetention)
		if err != nil {
			logrus.Fatalf("Failed to initialize backup storage: %v", err)
		}
	}

	service := buildService(cfg, st)
	runner := &pipelineRunner{
		service:  service,
		notifier: notifications.NewService(cfg),
		uploader: uploader,
		dbPath:   cfg.DatabasePath,
	}

	schedulerService := scheduler.NewService(cfg, runner)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      api.NewServer(cfg, st, service).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Run once at startup so a fresh deployment has data before the first
	// scheduled slot.
	go func() {
		if err := runner.Run(context.Background()); err != nil {
			logrus.Errorf("Initial ingestion run failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func buildService(cfg *config.Config, st *store.Store) *ingest.Service {
	var srcs []sources.Source

	if cfg.TwitterEnabled {
		srcs = append(srcs, sources.NewTwitterSource(cfg.TwitterBearerToken, cfg.TwitterUsername, cfg.Keywords))
	}
	if cfg.RedditEnabled {
		srcs = append(srcs, sources.NewRedditSource(cfg.RedditUserAgent, cfg.Keywords, cfg.Communities, st, sources.NewWebSearcher()))
	}
	if cfg.NewsEnabled {
		srcs = append(srcs, sources.NewNewsSource(cfg.NewsAlertsURL))
	}
	if cfg.CitationsEnabled {
		srcs = append(srcs, sources.NewCitationSource(cfg.CitationsRORID, cfg.Keywords[0], cfg.ContactEmail))
	}
	if cfg.AnalyticsEnabled {
		srcs = append(srcs, sources.NewAnalyticsSource(cfg.AnalyticsBaseURL, cfg.AnalyticsPropertyID, cfg.AnalyticsAPISecret))
	}

	thresholds := sentiment.Thresholds{Positive: cfg.PositiveThreshold, Negative: cfg.NegativeThreshold}
	classifiers := []sentiment.Classifier{sentiment.NewLexical(thresholds)}
	if cfg.SentimentEndpoint != "" {
		classifiers = append([]sentiment.Classifier{sentiment.NewRemote(cfg.SentimentEndpoint, thresholds)}, classifiers...)
	}
	chain := sentiment.NewChain(classifiers...)

	enricher := enrich.New(st, chain, cfg.EnrichmentBatch)
	platforms := []string{models.PlatformTwitter, models.PlatformReddit, models.PlatformNews}
	engine := aggregate.New(st, platforms, cfg.WeightsFor)

	return ingest.New(st, srcs, enricher, engine, cfg.BackfillDays)
}

// pipelineRunner wraps a full run with the post-run chores: database
// backup and the summary notification. Both are best effort.
type pipelineRunner struct {
	service  *ingest.Service
	notifier notifications.Notifier
	uploader backup.Uploader
	dbPath   string
}

func (p *pipelineRunner) Run(ctx context.Context) error {
	report, err := p.service.Run(ctx)
	if err != nil {
		return err
	}

	if p.uploader != nil {
		if _, err := p.uploader.BackupDatabase(ctx, p.dbPath); err != nil {
			logrus.Errorf("Database backup failed: %v", err)
		}
	}

	if err := p.notifier.SendRunReport(report); err != nil {
		logrus.Errorf("Run report notification failed: %v", err)
	}

	return nil
}
