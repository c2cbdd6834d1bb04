package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ummatics/impact-monitor/internal/aggregate"
	"github.com/ummatics/impact-monitor/internal/config"
	"github.com/ummatics/impact-monitor/internal/models"
	"github.com/ummatics/impact-monitor/internal/store"
)

// backfill recomputes daily buckets and weekly snapshots over a
// historical range. Rollups are derived state, so this is safe to run at
// any time, including after changing engagement weights or sentiment
// thresholds.
func main() {
	var (
		fromFlag = flag.String("from", "", "start date (YYYY-MM-DD), default 30 days ago")
		toFlag   = flag.String("to", "", "end date (YYYY-MM-DD), default today")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetFormatter(&logrus.JSONFormatter{})

	today := time.Now().UTC().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -30)
	to := today

	if *fromFlag != "" {
		from, err = time.Parse("2006-01-02", *fromFlag)
		if err != nil {
			log.Fatalf("Invalid -from date: %v", err)
		}
	}
	if *toFlag != "" {
		to, err = time.Parse("2006-01-02", *toFlag)
		if err != nil {
			log.Fatalf("Invalid -to date: %v", err)
		}
	}
	if to.Before(from) {
		log.Fatalf("-to must not be before -from")
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logrus.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	platforms := []string{models.PlatformTwitter, models.PlatformReddit, models.PlatformNews}
	engine := aggregate.New(st, platforms, cfg.WeightsFor)

	ctx := context.Background()

	days, err := engine.RecomputeDailyRange(ctx, from, to)
	if err != nil {
		logrus.Fatalf("Daily backfill failed: %v", err)
	}
	logrus.Infof("Recomputed %d daily buckets", days)

	weeks, err := engine.RecomputeWeeksIn(ctx, from, to)
	if err != nil {
		logrus.Fatalf("Weekly backfill failed: %v", err)
	}
	logrus.Infof("Recomputed %d weekly snapshots", weeks)
}
