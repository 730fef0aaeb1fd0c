package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/autoreduction/autosubmit/internal/printer"
	"github.com/autoreduction/autosubmit/internal/queue"
	"github.com/autoreduction/autosubmit/internal/rundata"
	"github.com/autoreduction/autosubmit/internal/runrange"
	"github.com/autoreduction/autosubmit/internal/submission"
)

// fatalError prints err as a formatted CLI error and returns the error Cobra
// should exit with.
func fatalError(err error, instrument string) error {
	details := map[string]string{"Instrument": instrument}

	switch {
	case errors.Is(err, runrange.ErrInvalidRange), errors.Is(err, runrange.ErrInvalidRunNumber):
		return printer.ErrorWithContext(
			"invalid run numbers",
			err.Error(),
			details,
			[]string{
				"Run numbers must be positive integers and FIRST must not be greater than LAST",
				fmt.Sprintf("A range may cover at most %d runs", runrange.MaxRangeSize),
			},
		)

	case errors.Is(err, queue.ErrConnect), errors.Is(err, submission.ErrTransportNotConnected):
		return printer.ErrorWithContext(
			"cannot connect to message broker",
			err.Error(),
			details,
			[]string{
				"Check queue.address in autoreduce.yml",
				"Check the broker is running and reachable from this host",
			},
		)

	case errors.Is(err, rundata.ErrCatalogueUnavailable):
		return printer.ErrorWithContext(
			"cannot reach ICAT",
			err.Error(),
			details,
			[]string{"Check icat.url and the ICAT credentials in autoreduce.yml"},
		)

	case errors.Is(err, context.Canceled):
		return printer.Error("interrupted", "Submission stopped before all runs were processed.", nil)

	default:
		return printer.ErrorWithContext(
			"submission failed",
			fmt.Sprintf("%v", err),
			details,
			nil,
		)
	}
}
