package sentiment

import (
	"context"
	"regexp"
	"strings"
)

// Lexical is the in-process fallback classifier: a word-list polarity
// count normalized to [-1, 1]. Far less accurate than the remote model,
// but it has no network dependency and can never strand a batch.
type Lexical struct {
	thresholds Thresholds
}

var positiveWords = []string{
	"good", "great", "excellent", "love", "awesome", "fantastic",
	"helpful", "inspiring", "important", "valuable", "insightful",
	"success", "beneficial", "thank", "appreciate", "recommend",
}

var negativeWords = []string{
	"bad", "terrible", "awful", "hate", "wrong", "misleading",
	"problem", "useless", "disappointing", "fail", "poor",
	"dishonest", "harmful", "waste", "worst",
}

var (
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	repostPattern     = regexp.MustCompile(`^RT\s+@\w+:\s*`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// NewLexical creates the lexical classifier.
func NewLexical(thresholds Thresholds) *Lexical {
	return &Lexical{thresholds: thresholds}
}

func (l *Lexical) Name() string {
	return "lexical"
}

// Classify never fails; empty or unmatched texts score zero.
func (l *Lexical) Classify(ctx context.Context, texts []string) ([]Result, error) {
	results := make([]Result, len(texts))
	for i, text := range texts {
		score := l.scoreText(CleanText(text))
		results[i] = Result{Label: l.thresholds.Label(score), Score: score}
	}
	return results, nil
}

func (l *Lexical) scoreText(text string) float64 {
	content := strings.ToLower(text)

	positive := 0
	negative := 0
	for _, word := range positiveWords {
		if strings.Contains(content, word) {
			positive++
		}
	}
	for _, word := range negativeWords {
		if strings.Contains(content, word) {
			negative++
		}
	}

	if positive+negative == 0 {
		return 0
	}
	return float64(positive-negative) / float64(positive+negative)
}

// CleanText strips repost prefixes, URLs, and entity noise before
// classification, mirroring the preprocessing the remote model applies.
func CleanText(text string) string {
	s := repostPattern.ReplaceAllString(text, "")
	s = urlPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}
