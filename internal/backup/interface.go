package backup

import "context"

// Uploader stores and retrieves database snapshots.
type Uploader interface {
	BackupDatabase(ctx context.Context, dbPath string) (string, error)
	ListBackups(ctx context.Context) ([]string, error)
	RestoreDatabase(ctx context.Context, name, destPath string) error
}
