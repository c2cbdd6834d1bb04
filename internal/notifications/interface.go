package notifications

import "github.com/ummatics/impact-monitor/internal/models"

// Notifier delivers run summaries to the configured channels.
type Notifier interface {
	SendRunReport(report *models.RunReport) error
}
