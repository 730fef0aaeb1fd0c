// Package checks holds operational checks over the reduction database.
package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/autoreduction/autosubmit/internal/reductiondb"
	"go.uber.org/zap"
)

// DefaultMaxAge is how long an active instrument may go without a finished run.
const DefaultMaxAge = 24 * time.Hour

// ActivitySource lists the most recent finished run of every instrument.
type ActivitySource interface {
	InstrumentActivity(ctx context.Context) ([]reductiondb.InstrumentActivity, error)
}

// Status is the last-run check result of one instrument.
type Status struct {
	Instrument   string    `json:"instrument"`
	Active       bool      `json:"active"`
	LastFinished time.Time `json:"last_finished,omitempty"`
	Stale        bool      `json:"stale"`
}

// LastRun flags active instruments whose last finished run is older than
// maxAge. Paused instruments are reported but never stale. An active
// instrument that has never finished a run is stale.
func LastRun(ctx context.Context, src ActivitySource, maxAge time.Duration, now time.Time, logger *zap.Logger) ([]Status, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("max age must be positive, got %s", maxAge)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	activity, err := src.InstrumentActivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load instrument activity: %w", err)
	}

	statuses := make([]Status, 0, len(activity))
	for _, a := range activity {
		s := Status{Instrument: a.Instrument, Active: a.Active, LastFinished: a.LastFinished}
		if a.Active && (a.LastFinished.IsZero() || now.Sub(a.LastFinished) > maxAge) {
			s.Stale = true
			logger.Warn("Instrument has not had runs within the allowed age",
				zap.String("instrument", a.Instrument),
				zap.Duration("max_age", maxAge),
				zap.Time("last_finished", a.LastFinished))
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

// CountStale returns how many statuses are stale.
func CountStale(statuses []Status) int {
	n := 0
	for _, s := range statuses {
		if s.Stale {
			n++
		}
	}
	return n
}
