package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ummatics/impact-monitor/internal/backup"
	"github.com/ummatics/impact-monitor/internal/config"
)

// restore downloads a database snapshot from blob storage, either a named
// one or the newest. Run it with the service stopped so the restored file
// is not overwritten by a live connection.
func main() {
	var (
		nameFlag = flag.String("name", "", "snapshot name, default newest")
		listFlag = flag.Bool("list", false, "list stored snapshots and exit")
		toFlag   = flag.String("to", "", "destination path, default the configured database path")
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

	if cfg.BackupAccount == "" {
		logrus.Fatal("BACKUP_STORAGE_ACCOUNT is not configured")
	}

	uploader, err := backup.NewAzureBackup(cfg.BackupAccount, cfg.BackupContainer, cfg.BackupRetention)
	if err != nil {
		logrus.Fatalf("Failed to initialize backup storage: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if *listFlag {
		names, err := uploader.ListBackups(ctx)
		if err != nil {
			logrus.Fatalf("Failed to list backups: %v", err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	dest := *toFlag
	if dest == "" {
		dest = cfg.DatabasePath
	}

	name, err := backup.Restore(ctx, uploader, *nameFlag, dest)
	if err != nil {
		logrus.Fatalf("Restore failed: %v", err)
	}
	logrus.Infof("Restored %s to %s", name, dest)
}
