// Package batch drives runs through resolution, classification and
// submission, collecting what was submitted and what was skipped.
//
// Problems with a single run never stop the batch. The batch stops only when
// no further run could succeed: the transport is not connected, the run range
// or a run number is invalid, the catalogue cannot be reached, or the context
// ends.
package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/autoreduction/autosubmit/internal/rbcategory"
	"github.com/autoreduction/autosubmit/internal/rundata"
	"github.com/autoreduction/autosubmit/internal/runrange"
	"github.com/autoreduction/autosubmit/internal/submission"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Resolver resolves the metadata of one run.
type Resolver interface {
	Resolve(ctx context.Context, instrument string, runNumber int, fileExt string) (rundata.RunMetadata, error)
}

// Submitter publishes reduction requests.
type Submitter interface {
	Connected() bool
	Submit(ctx context.Context, req submission.Request) (*submission.Receipt, error)
}

// Options apply to every message of a batch.
type Options struct {
	FileExtension      string
	ReductionArguments map[string]any
	StartedBy          *int
	Description        string
}

// Submission records a run that was published.
type Submission struct {
	RunNumber    int                 `json:"run_number"`
	ExperimentID string              `json:"rb_number"`
	Category     rbcategory.Category `json:"category"`
	DataLocation string              `json:"data"`
	Source       rundata.Source      `json:"source"`

	Receipt *submission.Receipt `json:"-"`
}

// Skip records a run that was not published.
type Skip struct {
	RunNumber int      `json:"run_number"`
	Stage     RunState `json:"stage"`
	Reason    string   `json:"reason"`

	Err error `json:"-"`
}

// Result is the outcome of a batch. Callers decide what counts as success.
type Result struct {
	BatchID    string       `json:"batch_id"`
	Instrument string       `json:"instrument"`
	Submitted  []Submission `json:"submitted"`
	Skipped    []Skip       `json:"skipped"`
}

// Orchestrator runs batches. It holds no state between batches.
type Orchestrator struct {
	resolver  Resolver
	submitter Submitter
	opts      Options
	logger    *zap.Logger
}

// New creates an orchestrator.
func New(resolver Resolver, submitter Submitter, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FileExtension == "" {
		opts.FileExtension = rundata.DefaultFileExtension
	}
	return &Orchestrator{
		resolver:  resolver,
		submitter: submitter,
		opts:      opts,
		logger:    logger.Named("batch"),
	}
}

// IsFatal reports whether err ends the whole batch rather than one run.
func IsFatal(err error) bool {
	return errors.Is(err, submission.ErrTransportNotConnected) ||
		errors.Is(err, runrange.ErrInvalidRange) ||
		errors.Is(err, runrange.ErrInvalidRunNumber) ||
		errors.Is(err, rundata.ErrCatalogueUnavailable) ||
		errors.Is(err, context.Canceled)
}

// run tracks one run through the batch.
type run struct {
	number int
	state  RunState
	meta   rundata.RunMetadata
	cat    rbcategory.Category
	log    *zap.Logger
}

func (r *run) transition(to RunState) {
	if !r.state.CanTransition(to) {
		panic(fmt.Sprintf("invalid run state transition %s -> %s", r.state, to))
	}
	r.log.Debug("Run state changed", zap.String("from", string(r.state)), zap.String("to", string(to)))
	r.state = to
}

// SubmitRange submits every run from first to last inclusive, one message per
// run. A nil last submits only first.
//
// On a fatal error the partial result is returned together with the error.
func (o *Orchestrator) SubmitRange(ctx context.Context, instrument string, first int, last *int) (*Result, error) {
	result, log := o.newResult(instrument)

	if !o.submitter.Connected() {
		return result, submission.ErrTransportNotConnected
	}
	if err := runrange.ValidateRunNumber(first); err != nil {
		return result, err
	}
	runs, err := runrange.Expand(first, last)
	if err != nil {
		return result, err
	}

	log.Info("Submitting runs", zap.Int("first", runs[0]), zap.Int("last", runs[len(runs)-1]), zap.Int("count", len(runs)))

	for _, number := range runs {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("batch interrupted before run %d: %w", number, err)
		}

		r := o.newRun(log, number)
		if err := o.prepare(ctx, instrument, r); err != nil {
			if IsFatal(err) {
				return result, err
			}
			result.skip(r, err)
			continue
		}

		r.transition(StateSubmitting)
		receipt, err := o.submitter.Submit(ctx, o.request(instrument, []*run{r}))
		if err != nil {
			if IsFatal(err) {
				return result, err
			}
			result.skip(r, err)
			continue
		}
		r.transition(StateSubmitted)
		result.submitted(r, receipt)
		r.log.Info("Run submitted", zap.String("rb_number", r.meta.ExperimentID), zap.String("category", r.cat.String()))
	}

	o.logSummary(log, result)
	return result, nil
}

// SubmitBatch resolves every run and publishes one message carrying all of
// them. If any run cannot be resolved nothing is published and every run is
// reported as skipped.
func (o *Orchestrator) SubmitBatch(ctx context.Context, instrument string, runNumbers ...int) (*Result, error) {
	result, log := o.newResult(instrument)

	if !o.submitter.Connected() {
		return result, submission.ErrTransportNotConnected
	}
	if len(runNumbers) == 0 {
		return result, fmt.Errorf("%w: no runs given", runrange.ErrInvalidRunNumber)
	}
	for _, n := range runNumbers {
		if err := runrange.ValidateRunNumber(n); err != nil {
			return result, err
		}
	}

	log.Info("Submitting batch", zap.Ints("runs", runNumbers))

	var (
		prepared []*run
		failed   []int
	)
	for _, number := range runNumbers {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("batch interrupted before run %d: %w", number, err)
		}

		r := o.newRun(log, number)
		if err := o.prepare(ctx, instrument, r); err != nil {
			if IsFatal(err) {
				return result, err
			}
			result.skip(r, err)
			failed = append(failed, number)
			continue
		}
		prepared = append(prepared, r)
	}

	if len(failed) > 0 {
		abort := fmt.Errorf("batch message not sent: runs %v could not be prepared", failed)
		for _, r := range prepared {
			result.skip(r, abort)
		}
		o.logSummary(log, result)
		return result, nil
	}

	for _, r := range prepared {
		r.transition(StateSubmitting)
	}
	receipt, err := o.submitter.Submit(ctx, o.request(instrument, prepared))
	if err != nil {
		if IsFatal(err) {
			return result, err
		}
		for _, r := range prepared {
			result.skip(r, err)
		}
		o.logSummary(log, result)
		return result, nil
	}

	for _, r := range prepared {
		r.transition(StateSubmitted)
		result.submitted(r, receipt)
	}
	o.logSummary(log, result)
	return result, nil
}

func (o *Orchestrator) newResult(instrument string) (*Result, *zap.Logger) {
	id := uuid.New().String()
	return &Result{BatchID: id, Instrument: instrument},
		o.logger.With(zap.String("batch_id", id), zap.String("instrument", instrument))
}

func (o *Orchestrator) newRun(log *zap.Logger, number int) *run {
	return &run{
		number: number,
		state:  StatePending,
		log:    log.With(zap.Int("run", number)),
	}
}

// prepare resolves and classifies one run, leaving it in StateClassifying.
func (o *Orchestrator) prepare(ctx context.Context, instrument string, r *run) error {
	r.transition(StateResolving)
	meta, err := o.resolver.Resolve(ctx, instrument, r.number, o.opts.FileExtension)
	if err != nil {
		return err
	}
	if meta.DataLocation == "" {
		return fmt.Errorf("no data location found for %s%d", instrument, r.number)
	}
	if meta.ExperimentID == "" {
		return fmt.Errorf("no RB number found for %s%d", instrument, r.number)
	}
	r.meta = meta

	r.transition(StateClassifying)
	r.cat = rbcategory.Classify(meta.ExperimentID)
	if r.cat == rbcategory.Uncategorized {
		r.log.Warn("RB number could not be categorised", zap.String("rb_number", meta.ExperimentID))
	} else {
		r.log.Debug("RB number categorised", zap.String("rb_number", meta.ExperimentID), zap.String("category", r.cat.String()))
	}
	return nil
}

func (o *Orchestrator) request(instrument string, runs []*run) submission.Request {
	req := submission.Request{
		Instrument:         instrument,
		ReductionArguments: o.opts.ReductionArguments,
		StartedBy:          o.opts.StartedBy,
		Description:        o.opts.Description,
	}
	for _, r := range runs {
		req.RBNumbers = append(req.RBNumbers, r.meta.ExperimentID)
		req.Locations = append(req.Locations, r.meta.DataLocation)
		req.RunNumbers = append(req.RunNumbers, r.number)
	}
	if len(runs) > 0 {
		req.RunTitle = runs[0].meta.Title
	}
	return req
}

func (o *Orchestrator) logSummary(log *zap.Logger, result *Result) {
	log.Info("Batch finished", zap.Int("submitted", len(result.Submitted)), zap.Int("skipped", len(result.Skipped)))
}

func (res *Result) skip(r *run, err error) {
	stage := r.state
	r.transition(StateSkipped)
	r.log.Error("Run skipped", zap.String("stage", string(stage)), zap.Error(err))
	res.Skipped = append(res.Skipped, Skip{
		RunNumber: r.number,
		Stage:     stage,
		Reason:    err.Error(),
		Err:       err,
	})
}

func (res *Result) submitted(r *run, receipt *submission.Receipt) {
	res.Submitted = append(res.Submitted, Submission{
		RunNumber:    r.number,
		ExperimentID: r.meta.ExperimentID,
		Category:     r.cat,
		DataLocation: r.meta.DataLocation,
		Source:       r.meta.Source,
		Receipt:      receipt,
	})
}
