package sentiment

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ummatics/impact-monitor/internal/models"
)

func TestThresholds_Label(t *testing.T) {
	tests := []struct {
		name     string
		score    float64
		expected string
	}{
		{name: "Clearly positive", score: 0.8, expected: models.SentimentPositive},
		{name: "Just above positive threshold", score: 0.11, expected: models.SentimentPositive},
		{name: "At positive threshold is neutral", score: 0.1, expected: models.SentimentNeutral},
		{name: "Zero is neutral", score: 0, expected: models.SentimentNeutral},
		{name: "At negative threshold is neutral", score: -0.1, expected: models.SentimentNeutral},
		{name: "Just below negative threshold", score: -0.11, expected: models.SentimentNegative},
		{name: "Clearly negative", score: -0.9, expected: models.SentimentNegative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DefaultThresholds.Label(tt.score))
		})
	}
}

func TestThresholds_CustomBoundaries(t *testing.T) {
	thresholds := Thresholds{Positive: 0.5, Negative: -0.5}

	assert.Equal(t, models.SentimentNeutral, thresholds.Label(0.4))
	assert.Equal(t, models.SentimentPositive, thresholds.Label(0.6))
	assert.Equal(t, models.SentimentNeutral, thresholds.Label(-0.4))
	assert.Equal(t, models.SentimentNegative, thresholds.Label(-0.6))
}

func TestLexical_Classify(t *testing.T) {
	lexical := NewLexical(DefaultThresholds)

	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{name: "Positive text", text: "This is great and helpful work, thank you", expected: models.SentimentPositive},
		{name: "Negative text", text: "terrible and misleading, a waste of time", expected: models.SentimentNegative},
		{name: "No polarity words", text: "the meeting is on Tuesday", expected: models.SentimentNeutral},
		{name: "Mixed balances out", text: "great effort but a disappointing result", expected: models.SentimentNeutral},
		{name: "Empty text", text: "", expected: models.SentimentNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := lexical.Classify(context.Background(), []string{tt.text})
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, tt.expected, results[0].Label)
			assert.Equal(t, tt.expected, DefaultThresholds.Label(results[0].Score))
		})
	}
}

func TestLexical_ScoreBounds(t *testing.T) {
	lexical := NewLexical(DefaultThresholds)

	results, err := lexical.Classify(context.Background(),
		[]string{"great excellent awesome fantastic helpful"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, results[0].Score)

	results, err = lexical.Classify(context.Background(),
		[]string{"terrible awful worst harmful"})
	require.NoError(t, err)
	assert.Equal(t, -1.0, results[0].Score)
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Strips repost prefix",
			input:    "RT @someone: interesting take on unity",
			expected: "interesting take on unity",
		},
		{
			name:     "Strips URLs",
			input:    "read this https://example.org/post and tell me",
			expected: "read this and tell me",
		},
		{
			name:     "Unescapes entities and collapses whitespace",
			input:    "policy &amp; economics    matter",
			expected: "policy & economics matter",
		},
		{
			name:     "Plain text untouched",
			input:    "nothing to clean here",
			expected: "nothing to clean here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanText(tt.input))
		})
	}
}

func TestRemote_Classify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results":[
			{"sentiment":"positive","score":0.93},
			{"sentiment":"negative","score":0.71},
			{"sentiment":"neutral","score":0.55}
		],"count":3}`)
	}))
	defer server.Close()

	remote := NewRemote(server.URL, DefaultThresholds)
	results, err := remote.Classify(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, models.SentimentPositive, results[0].Label)
	assert.InDelta(t, 0.93, results[0].Score, 1e-9)

	// Negative confidence folds into a signed score.
	assert.Equal(t, models.SentimentNegative, results[1].Label)
	assert.InDelta(t, -0.71, results[1].Score, 1e-9)

	// Neutral is pinned to zero regardless of confidence.
	assert.Equal(t, models.SentimentNeutral, results[2].Label)
	assert.Equal(t, 0.0, results[2].Score)
}

func TestRemote_Classify_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "Non-200 status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "Malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `not json`)
			},
		},
		{
			name: "Length mismatch",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"results":[{"sentiment":"neutral","score":0}],"count":1}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			remote := NewRemote(server.URL, DefaultThresholds)
			_, err := remote.Classify(context.Background(), []string{"a", "b"})
			assert.Error(t, err)
		})
	}
}

func TestRemote_Classify_BatchTooLarge(t *testing.T) {
	remote := NewRemote("http://unused", DefaultThresholds)
	texts := make([]string, MaxBatchSize+1)
	_, err := remote.Classify(context.Background(), texts)
	assert.Error(t, err)
}

type stubClassifier struct {
	name    string
	results []Result
	err     error
	calls   int
}

func (s *stubClassifier) Name() string { return s.name }

func (s *stubClassifier) Classify(ctx context.Context, texts []string) ([]Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func TestChain_FirstSuccessWins(t *testing.T) {
	first := &stubClassifier{name: "first", results: []Result{{Label: models.SentimentPositive, Score: 0.5}}}
	second := &stubClassifier{name: "second", results: []Result{{Label: models.SentimentNeutral, Score: 0}}}
	chain := NewChain(first, second)

	results, err := chain.Classify(context.Background(), []string{"text"})
	require.NoError(t, err)
	assert.Equal(t, models.SentimentPositive, results[0].Label)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
}

func TestChain_FallsBackOnFailure(t *testing.T) {
	first := &stubClassifier{name: "first", err: fmt.Errorf("boom")}
	second := &stubClassifier{name: "second", results: []Result{{Label: models.SentimentNeutral, Score: 0}}}
	chain := NewChain(first, second)

	results, err := chain.Classify(context.Background(), []string{"text"})
	require.NoError(t, err)
	assert.Equal(t, models.SentimentNeutral, results[0].Label)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestChain_AllFail(t *testing.T) {
	first := &stubClassifier{name: "first", err: fmt.Errorf("boom")}
	second := &stubClassifier{name: "second", err: fmt.Errorf("also boom")}
	chain := NewChain(first, second)

	_, err := chain.Classify(context.Background(), []string{"text"})
	assert.Error(t, err)
}

func TestChain_Name(t *testing.T) {
	chain := NewChain(&stubClassifier{name: "remote"}, &stubClassifier{name: "lexical"})
	assert.Equal(t, "chain(remote,lexical)", chain.Name())
}
