package backup

import (
	"context"
	"fmt"
)

// Restore downloads the named snapshot to destPath. With an empty name it
// restores the newest snapshot. Returns the name that was restored.
func Restore(ctx context.Context, u Uploader, name, destPath string) (string, error) {
	if name == "" {
		names, err := u.ListBackups(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list backups: %w", err)
		}
		if len(names) == 0 {
			return "", fmt.Errorf("no backups found")
		}
		name = names[0]
	}

	if err := u.RestoreDatabase(ctx, name, destPath); err != nil {
		return "", err
	}
	return name, nil
}
