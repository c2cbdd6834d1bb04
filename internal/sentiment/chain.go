package sentiment

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Chain tries an ordered list of classifiers and returns the first
// success for the whole batch. Callers never learn which member served a
// given batch except through logs.
type Chain struct {
	classifiers []Classifier
}

// NewChain builds a fallback chain; order is priority order.
func NewChain(classifiers ...Classifier) *Chain {
	return &Chain{classifiers: classifiers}
}

func (c *Chain) Name() string {
	names := make([]string, len(c.classifiers))
	for i, cl := range c.classifiers {
		names[i] = cl.Name()
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Classify attempts each classifier in order. A member's failure fails
// only that attempt, not the batch; the error is returned only when every
// member has failed.
func (c *Chain) Classify(ctx context.Context, texts []string) ([]Result, error) {
	if len(c.classifiers) == 0 {
		return nil, fmt.Errorf("sentiment chain has no classifiers")
	}

	var lastErr error
	for i, classifier := range c.classifiers {
		results, err := classifier.Classify(ctx, texts)
		if err != nil {
			logrus.Warnf("Sentiment classifier %s failed for batch of %d: %v", classifier.Name(), len(texts), err)
			lastErr = err
			continue
		}
		if i > 0 {
			logrus.Infof("Sentiment batch of %d served by fallback classifier %s", len(texts), classifier.Name())
		} else {
			logrus.Debugf("Sentiment batch of %d served by %s", len(texts), classifier.Name())
		}
		return results, nil
	}

	return nil, fmt.Errorf("all sentiment classifiers failed: %w", lastErr)
}
