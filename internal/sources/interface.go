package sources

import (
	"context"
	"errors"
	"fmt"

	"github.com/ummatics/impact-monitor/internal/models"
)

// Batch is the normalized output of one connector fetch. Everything
// downstream of a connector works only with these shapes; no code outside
// a connector ever sees a platform-specific field name.
type Batch struct {
	Mentions  []models.Mention
	Metrics   []models.MetricPoint
	Citations []models.Citation
}

// Size returns the total number of normalized records in the batch.
func (b Batch) Size() int {
	return len(b.Mentions) + len(b.Metrics) + len(b.Citations)
}

// Source is the contract every connector implements. Fetch must not fail
// on a single malformed item (skip and log, continue the batch); a total
// fetch failure returns an empty batch plus the error, which the
// orchestrator records without aborting the run.
type Source interface {
	Name() string
	Enabled() bool
	Fetch(ctx context.Context) (Batch, error)
}

// PermanentError marks misconfiguration-class failures: invalid
// credentials, a response that no longer matches the expected schema.
// The orchestrator reports these distinctly so an operator can tell a
// persistent problem from a one-off blip.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps an error as permanent.
func Permanent(format string, args ...interface{}) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

// IsPermanent reports whether err is misconfiguration-class.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
