package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/ummatics/impact-monitor/internal/models"
)

const citationAuthorLimit = 5

// CitationSource fetches scholarly works affiliated with the organization
// from the OpenAlex API. Works matched by the institution's ROR ID are
// institutional citations; when no ROR ID is configured the connector
// falls back to an affiliation name filter and marks works conceptual.
type CitationSource struct {
	rorID   string
	orgName string
	mailto  string
	baseURL string
	client  *resty.Client
}

type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
	Meta    struct {
		Count int `json:"count"`
	} `json:"meta"`
}

type openAlexWork struct {
	ID              string `json:"id"`
	DOI             string `json:"doi"`
	Title           string `json:"title"`
	PublicationDate string `json:"publication_date"`
	CitedByCount    int    `json:"cited_by_count"`
	Authorships     []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	PrimaryLocation struct {
		LandingPageURL string `json:"landing_page_url"`
	} `json:"primary_location"`
}

// NewCitationSource creates the citations connector. The contact email is
// sent in the User-Agent per OpenAlex's polite-pool convention.
func NewCitationSource(rorID, orgName, mailto string) *CitationSource {
	return &CitationSource{
		rorID:   rorID,
		orgName: orgName,
		mailto:  mailto,
		baseURL: "https://api.openalex.org",
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", fmt.Sprintf("impact-monitor/1.0 (mailto:%s)", mailto)),
	}
}

// SetBaseURL overrides the API host; used by tests.
func (c *CitationSource) SetBaseURL(base string) {
	c.baseURL = base
}

func (c *CitationSource) Name() string {
	return "citations"
}

func (c *CitationSource) Enabled() bool {
	return c.rorID != "" || c.orgName != ""
}

func (c *CitationSource) Fetch(ctx context.Context) (Batch, error) {
	var batch Batch

	if c.rorID != "" {
		works, err := c.fetchWorks(ctx, "institutions.ror:"+c.rorID)
		if err != nil {
			return batch, err
		}
		if len(works) > 0 {
			batch.Citations = c.normalizeAll(works, models.CitationInstitutional)
			return batch, nil
		}
		logrus.Infof("No works found for ROR %s, falling back to affiliation name filter", c.rorID)
	}

	if c.orgName == "" {
		return batch, nil
	}

	works, err := c.fetchWorks(ctx, fmt.Sprintf("raw_affiliation_strings.search:%s", c.orgName))
	if err != nil {
		return batch, err
	}
	batch.Citations = c.normalizeAll(works, models.CitationConceptual)
	return batch, nil
}

func (c *CitationSource) fetchWorks(ctx context.Context, filter string) ([]openAlexWork, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"filter":   filter,
			"per_page": "200",
			"sort":     "cited_by_count:desc",
			"mailto":   c.mailto,
		}).
		Get(c.baseURL + "/works")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() == 403 {
		return nil, Permanent("openalex rejected the request: status 403")
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("openalex returned status %d", resp.StatusCode())
	}

	var parsed openAlexResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, Permanent("failed to parse openalex response: %v", err)
	}
	return parsed.Results, nil
}

func (c *CitationSource) normalizeAll(works []openAlexWork, citationType string) []models.Citation {
	var citations []models.Citation
	for _, work := range works {
		citation, err := normalizeWork(work, citationType)
		if err != nil {
			logrus.Warnf("Skipping malformed work %s: %v", work.ID, err)
			continue
		}
		citations = append(citations, citation)
	}
	logrus.Infof("OpenAlex returned %d works, %d normalized (%s)", len(works), len(citations), citationType)
	return citations
}

func normalizeWork(work openAlexWork, citationType string) (models.Citation, error) {
	workID := strings.TrimPrefix(work.ID, "https://openalex.org/")
	if workID == "" {
		return models.Citation{}, fmt.Errorf("work missing id")
	}

	authors := make([]string, 0, citationAuthorLimit)
	for i, authorship := range work.Authorships {
		if i >= citationAuthorLimit {
			break
		}
		if name := authorship.Author.DisplayName; name != "" {
			authors = append(authors, name)
		}
	}

	var pubDate *time.Time
	if work.PublicationDate != "" {
		parsed, err := time.Parse("2006-01-02", work.PublicationDate)
		if err == nil {
			pubDate = &parsed
		}
	}

	sourceURL := work.PrimaryLocation.LandingPageURL
	if sourceURL == "" {
		sourceURL = work.ID
	}

	return models.Citation{
		WorkID:          workID,
		DOI:             strings.TrimPrefix(work.DOI, "https://doi.org/"),
		Title:           work.Title,
		Authors:         strings.Join(authors, ", "),
		PublicationDate: pubDate,
		CitedByCount:    work.CitedByCount,
		CitationType:    citationType,
		SourceURL:       sourceURL,
		UpdatedAt:       time.Now().UTC(),
	}, nil
}
