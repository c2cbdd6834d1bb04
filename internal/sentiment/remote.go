package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ummatics/impact-monitor/internal/models"
)

// MaxBatchSize bounds one remote call; the serverless side has payload
// and latency limits.
const MaxBatchSize = 50

// Remote calls a serverless transformer-backed classifier over HTTP. The
// function is a black box behind a stable contract: a batch of strings in,
// a parallel array of {sentiment, score} out.
type Remote struct {
	endpoint   string
	client     *resty.Client
	thresholds Thresholds
}

type remoteRequest struct {
	Texts []string `json:"texts"`
}

type remoteResponse struct {
	Results []struct {
		Sentiment string  `json:"sentiment"`
		Score     float64 `json:"score"`
	} `json:"results"`
	Count int `json:"count"`
}

// NewRemote creates a remote classifier for the given function endpoint.
func NewRemote(endpoint string, thresholds Thresholds) *Remote {
	return &Remote{
		endpoint:   endpoint,
		thresholds: thresholds,
		client: resty.New().
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "impact-monitor/1.0"),
	}
}

func (r *Remote) Name() string {
	return "remote"
}

// Classify sends the batch to the remote function. Any transport error,
// non-200 status, or length mismatch fails the whole batch so the chain
// can fall back.
func (r *Remote) Classify(ctx context.Context, texts []string) ([]Result, error) {
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds maximum of %d", len(texts), MaxBatchSize)
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(remoteRequest{Texts: texts}).
		Post(r.endpoint)
	if err != nil {
		return nil, fmt.Errorf("sentiment function request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("sentiment function returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var parsed remoteResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse sentiment function response: %w", err)
	}

	if len(parsed.Results) != len(texts) {
		return nil, fmt.Errorf("sentiment function returned %d results for %d texts", len(parsed.Results), len(texts))
	}

	results := make([]Result, len(parsed.Results))
	for i, res := range parsed.Results {
		// The function reports a label plus an unsigned confidence; fold
		// them into one signed score so labels stay a pure function of it.
		score := res.Score
		switch res.Sentiment {
		case models.SentimentNegative:
			score = -score
		case models.SentimentNeutral:
			score = 0
		}
		results[i] = Result{Label: r.thresholds.Label(score), Score: score}
	}

	return results, nil
}
