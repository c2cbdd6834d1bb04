package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the application. It is parsed once at
// process start and threaded through constructors; nothing reads the
// environment after Load returns.
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration
	Schedule string // "daily" or "weekly"
	TimeZone string

	// Database
	DatabasePath string

	// Keywords to monitor (case-insensitive match against title/body/comments)
	Keywords []string

	// Twitter connector
	TwitterEnabled     bool
	TwitterBearerToken string
	TwitterUsername    string // org account tracked for audience size

	// Reddit connector
	RedditEnabled   bool
	RedditUserAgent string
	Communities     []string // seed communities, merged with the discovered registry

	// News alerts connector
	NewsEnabled   bool
	NewsAlertsURL string // RSS feed of news alerts for the org

	// Citation index connector
	CitationsEnabled bool
	CitationsRORID   string // Research Organization Registry ID
	ContactEmail     string // sent as the polite-pool User-Agent

	// Web analytics connector
	AnalyticsEnabled    bool
	AnalyticsBaseURL    string
	AnalyticsPropertyID string
	AnalyticsAPISecret  string

	// Sentiment enrichment
	SentimentEndpoint string // remote classifier function URL; empty disables it
	EnrichmentBatch   int
	PositiveThreshold float64
	NegativeThreshold float64

	// Engagement weighting: primary, secondary, replies per platform.
	// Falls back to DefaultEngagementWeights for unlisted platforms.
	EngagementWeights map[string][3]float64

	// Aggregation
	BackfillDays int

	// Dashboard API
	DashboardPassword string

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Backup of the database file
	BackupAccount   string
	BackupContainer string
	BackupRetention int
}

// DefaultEngagementWeights is the weight vector applied when no
// per-platform override is configured.
var DefaultEngagementWeights = [3]float64{1, 1, 1}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Debug:    getBoolEnv("DEBUG", false),
		Schedule: getEnv("INGEST_SCHEDULE", "weekly"),
		TimeZone: getEnv("TIMEZONE", "UTC"),

		DatabasePath: getEnv("DATABASE_PATH", "impact-monitor.db"),

		Keywords: getSliceEnv("KEYWORDS", []string{"ummatics"}),

		TwitterEnabled:     getBoolEnv("TWITTER_ENABLED", true),
		TwitterBearerToken: getEnv("TWITTER_BEARER_TOKEN", ""),
		TwitterUsername:    getEnv("TWITTER_USERNAME", "ummatics"),

		RedditEnabled:   getBoolEnv("REDDIT_ENABLED", true),
		RedditUserAgent: getEnv("REDDIT_USER_AGENT", "impact-monitor/1.0"),
		Communities:     getSliceEnv("REDDIT_COMMUNITIES", []string{"islam", "MuslimLounge"}),

		NewsEnabled:   getBoolEnv("NEWS_ENABLED", true),
		NewsAlertsURL: getEnv("NEWS_ALERTS_RSS_URL", ""),

		CitationsEnabled: getBoolEnv("CITATIONS_ENABLED", true),
		CitationsRORID:   getEnv("OPENALEX_ROR_ID", ""),
		ContactEmail:     getEnv("CONTACT_EMAIL", "contact@ummatics.org"),

		AnalyticsEnabled:    getBoolEnv("ANALYTICS_ENABLED", false),
		AnalyticsBaseURL:    getEnv("ANALYTICS_BASE_URL", ""),
		AnalyticsPropertyID: getEnv("ANALYTICS_PROPERTY_ID", ""),
		AnalyticsAPISecret:  getEnv("ANALYTICS_API_SECRET", ""),

		SentimentEndpoint: getEnv("SENTIMENT_ENDPOINT", ""),
		EnrichmentBatch:   getIntEnv("ENRICHMENT_BATCH_SIZE", 50),
		PositiveThreshold: getFloatEnv("SENTIMENT_POSITIVE_THRESHOLD", 0.1),
		NegativeThreshold: getFloatEnv("SENTIMENT_NEGATIVE_THRESHOLD", -0.1),

		EngagementWeights: getWeightsEnv("ENGAGEMENT_WEIGHTS"),

		BackfillDays: getIntEnv("BACKFILL_DAYS", 7),

		DashboardPassword: getEnv("DASHBOARD_PASSWORD", "changeme"),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		BackupAccount:   getEnv("BACKUP_STORAGE_ACCOUNT", ""),
		BackupContainer: getEnv("BACKUP_STORAGE_CONTAINER", "db-backups"),
		BackupRetention: getIntEnv("BACKUP_RETENTION", 14),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Schedule != "daily" && c.Schedule != "weekly" {
		return fmt.Errorf("INGEST_SCHEDULE must be 'daily' or 'weekly'")
	}

	if len(c.Keywords) == 0 {
		return fmt.Errorf("KEYWORDS must contain at least one term")
	}

	if c.EnrichmentBatch < 1 || c.EnrichmentBatch > 50 {
		return fmt.Errorf("ENRICHMENT_BATCH_SIZE must be between 1 and 50")
	}

	if c.PositiveThreshold <= c.NegativeThreshold {
		return fmt.Errorf("SENTIMENT_POSITIVE_THRESHOLD must be greater than SENTIMENT_NEGATIVE_THRESHOLD")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// WeightsFor returns the engagement weight vector for a platform.
func (c *Config) WeightsFor(platform string) [3]float64 {
	if w, ok := c.EngagementWeights[platform]; ok {
		return w
	}
	return DefaultEngagementWeights
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var out []string
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

// getWeightsEnv parses "platform:primary:secondary:replies" entries, e.g.
// "twitter:1:2:1,reddit:1:0:1.5".
func getWeightsEnv(key string) map[string][3]float64 {
	weights := make(map[string][3]float64)
	value := os.Getenv(key)
	if value == "" {
		return weights
	}

	for _, entry := range strings.Split(value, ",") {
		fields := strings.Split(strings.TrimSpace(entry), ":")
		if len(fields) != 4 {
			continue
		}
		var w [3]float64
		ok := true
		for i := 0; i < 3; i++ {
			parsed, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				ok = false
				break
			}
			w[i] = parsed
		}
		if ok {
			weights[fields[0]] = w
		}
	}

	return weights
}
