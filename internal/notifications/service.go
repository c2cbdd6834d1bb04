package notifications

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/ummatics/impact-monitor/internal/config"
	"github.com/ummatics/impact-monitor/internal/models"
)

// Service sends run summaries via Teams webhook and email, whichever are
// configured. It never blocks the pipeline; callers treat its errors as
// advisory.
type Service struct {
	config *config.Config
	client *resty.Client
}

// Ensure Service implements Notifier
var _ Notifier = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams MessageCard payload
type TeamsMessage struct {
	Type     string         `json:"@type"`
	Context  string         `json:"@context"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	Sections []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle string      `json:"activityTitle,omitempty"`
	ActivityText  string      `json:"activityText,omitempty"`
	Facts         []TeamsFact `json:"facts,omitempty"`
	Markdown      bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// SendRunReport sends the run summary via the configured channels.
func (s *Service) SendRunReport(report *models.RunReport) error {
	var errors []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(report); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.Info("Successfully sent run report to Teams")
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(report); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.Info("Successfully sent run report via email")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) sendToTeams(report *models.RunReport) error {
	message := s.buildTeamsMessage(report)

	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func (s *Service) buildTeamsMessage(report *models.RunReport) *TeamsMessage {
	inserted := 0
	for _, cr := range report.Connectors {
		inserted += cr.Inserted
	}

	message := &TeamsMessage{
		Type:    "MessageCard",
		Context: "https://schema.org/extensions",
		Title:   "Impact Monitor Run Report",
		Text:    fmt.Sprintf("Ingested %d new mentions across %d sources", inserted, len(report.Connectors)),
	}

	facts := []TeamsFact{
		{Name: "Started", Value: report.StartedAt.Format("2006-01-02 15:04:05 UTC")},
		{Name: "Duration", Value: report.Duration},
		{Name: "Mentions Scored", Value: fmt.Sprintf("%d", report.MentionsScored)},
		{Name: "Days Aggregated", Value: fmt.Sprintf("%d", report.DaysAggregated)},
		{Name: "Errors", Value: fmt.Sprintf("%d", report.ErrorCount)},
	}
	message.Sections = append(message.Sections, TeamsSection{
		ActivityTitle: "Summary",
		Facts:         facts,
		Markdown:      true,
	})

	var lines []string
	for _, name := range sortedConnectorNames(report) {
		cr := report.Connectors[name]
		line := fmt.Sprintf("**%s**: fetched %d, inserted %d, skipped %d", name, cr.Fetched, cr.Inserted, cr.Skipped)
		if cr.Error != "" {
			line += fmt.Sprintf(" (error: %s)", cr.Error)
		}
		lines = append(lines, line)
	}
	if len(lines) > 0 {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityTitle: "Sources",
			ActivityText:  strings.Join(lines, "\n\n"),
			Markdown:      true,
		})
	}

	return message
}

func (s *Service) sendEmail(report *models.RunReport) error {
	subject := fmt.Sprintf("Impact Monitor Run Report - %s (%d errors)",
		report.StartedAt.Format("2006-01-02"), report.ErrorCount)

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", s.buildEmailText(report))

	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func (s *Service) buildEmailText(report *models.RunReport) string {
	var text strings.Builder

	text.WriteString("Impact Monitor Run Report\n")
	text.WriteString(fmt.Sprintf("Started: %s\n", report.StartedAt.Format("2006-01-02 15:04:05 UTC")))
	text.WriteString(fmt.Sprintf("Duration: %s\n\n", report.Duration))

	text.WriteString("SUMMARY\n")
	text.WriteString("=======\n")
	text.WriteString(fmt.Sprintf("Mentions Scored: %d\n", report.MentionsScored))
	text.WriteString(fmt.Sprintf("Days Aggregated: %d\n", report.DaysAggregated))
	text.WriteString(fmt.Sprintf("Weeks Aggregated: %d\n", report.WeeksAggregated))
	text.WriteString(fmt.Sprintf("Errors: %d\n", report.ErrorCount))

	if len(report.Connectors) > 0 {
		text.WriteString("\nSOURCES\n")
		text.WriteString("=======\n")
		for _, name := range sortedConnectorNames(report) {
			cr := report.Connectors[name]
			text.WriteString(fmt.Sprintf("\n%s\n", name))
			text.WriteString(fmt.Sprintf("   Fetched: %d | Inserted: %d | Skipped: %d\n", cr.Fetched, cr.Inserted, cr.Skipped))
			if cr.Error != "" {
				text.WriteString(fmt.Sprintf("   Error: %s\n", cr.Error))
			}
		}
	}

	text.WriteString("\n---\nThis report was generated automatically by the impact monitor.\n")

	return text.String()
}

func sortedConnectorNames(report *models.RunReport) []string {
	names := make([]string, 0, len(report.Connectors))
	for name := range report.Connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
