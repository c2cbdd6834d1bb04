// Package enrich drains the queue of mentions that have no sentiment yet,
// scoring them in bounded batches through the classifier chain.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ummatics/impact-monitor/internal/models"
	"github.com/ummatics/impact-monitor/internal/sentiment"
	"github.com/ummatics/impact-monitor/internal/store"
)

// Enricher scores stored mentions asynchronously from ingestion. It is the
// only writer of the sentiment columns.
type Enricher struct {
	store      *store.Store
	classifier sentiment.Classifier
	batchSize  int
}

// New creates an Enricher. batchSize is clamped to the remote payload cap.
func New(st *store.Store, classifier sentiment.Classifier, batchSize int) *Enricher {
	if batchSize < 1 || batchSize > sentiment.MaxBatchSize {
		batchSize = sentiment.MaxBatchSize
	}
	return &Enricher{store: st, classifier: classifier, batchSize: batchSize}
}

// EnrichUnscored scores every mention currently missing a sentiment,
// batch by batch, and returns how many it scored. The queue has
// at-least-once semantics: interrupting mid-drain leaves unscored rows to
// be picked up by the next run.
//
// A batch whose classification fails entirely is left unscored for the
// next run (the chain has already exhausted its fallbacks at that point).
// Within a successful batch, an item whose text is empty is marked
// neutral with score zero so it never blocks the queue.
func (e *Enricher) EnrichUnscored(ctx context.Context) (int, error) {
	scored := 0

	for {
		mentions, err := e.store.UnscoredMentions(ctx, e.batchSize)
		if err != nil {
			return scored, fmt.Errorf("select unscored mentions: %w", err)
		}
		if len(mentions) == 0 {
			return scored, nil
		}

		n, err := e.scoreBatch(ctx, mentions)
		scored += n
		if err != nil {
			return scored, err
		}
		if n == 0 {
			// Classification failed for the whole batch; retrying now
			// would loop on the same rows.
			return scored, nil
		}
	}
}

func (e *Enricher) scoreBatch(ctx context.Context, mentions []models.Mention) (int, error) {
	texts := make([]string, len(mentions))
	for i, m := range mentions {
		texts[i] = sentiment.CleanText(m.Title + " " + m.Body)
	}

	results, err := e.classifier.Classify(ctx, texts)
	if err != nil {
		logrus.Errorf("Sentiment classification failed for batch of %d: %v", len(mentions), err)
		return 0, nil
	}

	now := time.Now().UTC()
	scored := 0
	for i, m := range mentions {
		label, score := results[i].Label, results[i].Score
		if texts[i] == "" {
			// Nothing to classify; degrade to neutral rather than
			// leaving the row in the queue forever.
			label, score = models.SentimentNeutral, 0
		}
		if err := e.store.MarkScored(ctx, m.ID, label, score, now); err != nil {
			return scored, fmt.Errorf("persist sentiment for mention %d: %w", m.ID, err)
		}
		scored++
	}

	logrus.Debugf("Scored %d mentions", scored)
	return scored, nil
}
