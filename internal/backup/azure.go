package backup

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/sirupsen/logrus"
)

const backupPrefix = "backups/"

// AzureBackup uploads SQLite database snapshots to Azure Blob Storage and
// prunes old ones past the retention count.
type AzureBackup struct {
	client        *azblob.Client
	containerName string
	retention     int
}

// Ensure AzureBackup implements Uploader
var _ Uploader = (*AzureBackup)(nil)

// NewAzureBackup creates a backup client using managed identity. The
// retention count is how many snapshots to keep; older ones are pruned
// after each upload.
func NewAzureBackup(accountName, containerName string, retention int) (*AzureBackup, error) {
	if accountName == "" {
		return nil, fmt.Errorf("storage account name is required")
	}
	if retention < 1 {
		retention = 1
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)
	client, err := azblob.NewClient(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	backup := &AzureBackup{
		client:        client,
		containerName: containerName,
		retention:     retention,
	}

	if err := backup.ensureContainer(); err != nil {
		return nil, fmt.Errorf("failed to ensure container exists: %w", err)
	}

	return backup, nil
}

func (b *AzureBackup) ensureContainer() error {
	ctx := context.Background()

	_, err := b.client.CreateContainer(ctx, b.containerName, nil)
	if err != nil {
		if !strings.Contains(err.Error(), "ContainerAlreadyExists") {
			return fmt.Errorf("failed to create container: %w", err)
		}
		logrus.Debugf("Container %s already exists", b.containerName)
	} else {
		logrus.Infof("Created container %s", b.containerName)
	}

	return nil
}

// BackupDatabase uploads a timestamped copy of the database file and
// prunes snapshots beyond the retention count.
func (b *AzureBackup) BackupDatabase(ctx context.Context, dbPath string) (string, error) {
	data, err := os.ReadFile(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to read database file: %w", err)
	}

	name := fmt.Sprintf("%s%s-%s.db",
		backupPrefix,
		strings.TrimSuffix(path.Base(dbPath), ".db"),
		time.Now().UTC().Format("20060102-150405"))

	_, err = b.client.UploadBuffer(ctx, b.containerName, name, data, &azblob.UploadBufferOptions{
		BlockSize:   int64(1024 * 1024),
		Concurrency: 3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload backup %s: %w", name, err)
	}

	logrus.Infof("Uploaded database backup %s (%d bytes)", name, len(data))

	if err := b.prune(ctx); err != nil {
		logrus.Warnf("Failed to prune old backups: %v", err)
	}

	return name, nil
}

// ListBackups returns the names of stored snapshots, newest first.
func (b *AzureBackup) ListBackups(ctx context.Context) ([]string, error) {
	prefix := backupPrefix
	var names []string
	pager := b.client.NewListBlobsFlatPager(b.containerName, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list backups: %w", err)
		}
		for _, blob := range page.Segment.BlobItems {
			if blob.Name != nil {
				names = append(names, *blob.Name)
			}
		}
	}

	// Snapshot names embed the timestamp, so lexical order is time order.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// RestoreDatabase downloads a snapshot to the given path.
func (b *AzureBackup) RestoreDatabase(ctx context.Context, name, destPath string) error {
	response, err := b.client.DownloadStream(ctx, b.containerName, name, nil)
	if err != nil {
		return fmt.Errorf("failed to download backup %s: %w", name, err)
	}
	defer response.Body.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create restore target: %w", err)
	}
	defer f.Close()

	if _, err := f.ReadFrom(response.Body); err != nil {
		return fmt.Errorf("failed to write restore target: %w", err)
	}

	logrus.Infof("Restored backup %s to %s", name, destPath)
	return nil
}

func (b *AzureBackup) prune(ctx context.Context) error {
	names, err := b.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(names) <= b.retention {
		return nil
	}

	for _, name := range names[b.retention:] {
		if _, err := b.client.DeleteBlob(ctx, b.containerName, name, nil); err != nil {
			return fmt.Errorf("failed to delete backup %s: %w", name, err)
		}
		logrus.Infof("Pruned old backup %s", name)
	}
	return nil
}
