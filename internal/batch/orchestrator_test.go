package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/autoreduction/autosubmit/internal/rbcategory"
	"github.com/autoreduction/autosubmit/internal/rundata"
	"github.com/autoreduction/autosubmit/internal/runrange"
	"github.com/autoreduction/autosubmit/internal/submission"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeResolver struct {
	meta  map[int]rundata.RunMetadata
	errs  map[int]error
	calls []int
}

func (f *fakeResolver) Resolve(ctx context.Context, instrument string, runNumber int, fileExt string) (rundata.RunMetadata, error) {
	f.calls = append(f.calls, runNumber)
	if err := f.errs[runNumber]; err != nil {
		return rundata.RunMetadata{}, err
	}
	return f.meta[runNumber], nil
}

type fakeSubmitter struct {
	disconnected bool
	err          error
	requests     []submission.Request
}

func (f *fakeSubmitter) Connected() bool { return !f.disconnected }

func (f *fakeSubmitter) Submit(ctx context.Context, req submission.Request) (*submission.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &submission.Receipt{Message: submission.Build(req)}, nil
}

func meta(rb string) rundata.RunMetadata {
	return rundata.RunMetadata{DataLocation: "/isis/data.nxs", ExperimentID: rb, Title: "title", Source: rundata.SourceDatabase}
}

func intPtr(n int) *int { return &n }

func TestSubmitRange_SingleRun(t *testing.T) {
	res := &fakeResolver{meta: map[int]rundata.RunMetadata{25581: meta("1820497")}}
	sub := &fakeSubmitter{}
	o := New(res, sub, Options{}, zap.NewNop())

	result, err := o.SubmitRange(context.Background(), "MARI", 25581, nil)
	require.NoError(t, err)

	_, err = uuid.Parse(result.BatchID)
	assert.NoError(t, err)
	assert.Equal(t, "MARI", result.Instrument)
	require.Len(t, result.Submitted, 1)
	assert.Empty(t, result.Skipped)

	s := result.Submitted[0]
	assert.Equal(t, 25581, s.RunNumber)
	assert.Equal(t, rbcategory.RapidAccess, s.Category)
	assert.NotNil(t, s.Receipt)

	require.Len(t, sub.requests, 1)
	assert.Equal(t, []int{25581}, sub.requests[0].RunNumbers)
	assert.Equal(t, "title", sub.requests[0].RunTitle)
}

func TestSubmitRange_ContinuesPastFailedRun(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	res := &fakeResolver{
		meta: map[int]rundata.RunMetadata{101: meta("1910001")},
		errs: map[int]error{100: &rundata.DatafileNotFoundError{Instrument: "WISH", RunNumber: 100, Tried: []string{"WISH00100.nxs"}}},
	}
	sub := &fakeSubmitter{}
	o := New(res, sub, Options{}, zap.New(core))

	result, err := o.SubmitRange(context.Background(), "WISH", 100, intPtr(101))
	require.NoError(t, err)

	assert.Equal(t, []int{100, 101}, res.calls)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, 100, result.Skipped[0].RunNumber)
	assert.Equal(t, StateResolving, result.Skipped[0].Stage)
	assert.ErrorIs(t, result.Skipped[0].Err, rundata.ErrDatafileNotFound)

	require.Len(t, result.Submitted, 1)
	assert.Equal(t, 101, result.Submitted[0].RunNumber)
	require.Len(t, sub.requests, 1)

	skipped := logs.FilterMessage("Run skipped").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, int64(100), skipped[0].ContextMap()["run"])
	assert.Equal(t, result.BatchID, skipped[0].ContextMap()["batch_id"])
}

func TestSubmitRange_SkipsIncompleteMetadata(t *testing.T) {
	res := &fakeResolver{meta: map[int]rundata.RunMetadata{
		1: {ExperimentID: "1910001"},
		2: {DataLocation: "/isis/x.nxs"},
		3: meta("1910001"),
	}}
	sub := &fakeSubmitter{}
	o := New(res, sub, Options{}, nil)

	result, err := o.SubmitRange(context.Background(), "WISH", 1, intPtr(3))
	require.NoError(t, err)
	require.Len(t, result.Skipped, 2)
	assert.Contains(t, result.Skipped[0].Reason, "no data location")
	assert.Contains(t, result.Skipped[1].Reason, "no RB number")
	assert.Len(t, result.Submitted, 1)
	assert.Len(t, sub.requests, 1)
}

func TestSubmitRange_UncategorisedStillSubmitted(t *testing.T) {
	res := &fakeResolver{meta: map[int]rundata.RunMetadata{5: meta("12345")}}
	o := New(res, &fakeSubmitter{}, Options{}, nil)

	result, err := o.SubmitRange(context.Background(), "GEM", 5, nil)
	require.NoError(t, err)
	require.Len(t, result.Submitted, 1)
	assert.Equal(t, rbcategory.Uncategorized, result.Submitted[0].Category)
}

func TestSubmitRange_FatalErrors(t *testing.T) {
	tests := []struct {
		name      string
		first     int
		last      *int
		resolver  *fakeResolver
		submitter *fakeSubmitter
		wantErr   error
		wantCalls int
	}{
		{
			name:      "transport not connected",
			first:     1,
			resolver:  &fakeResolver{},
			submitter: &fakeSubmitter{disconnected: true},
			wantErr:   submission.ErrTransportNotConnected,
		},
		{
			name:      "invalid range",
			first:     10,
			last:      intPtr(5),
			resolver:  &fakeResolver{},
			submitter: &fakeSubmitter{},
			wantErr:   runrange.ErrInvalidRange,
		},
		{
			name:      "invalid run number",
			first:     0,
			resolver:  &fakeResolver{},
			submitter: &fakeSubmitter{},
			wantErr:   runrange.ErrInvalidRunNumber,
		},
		{
			name:  "catalogue unavailable",
			first: 1,
			last:  intPtr(3),
			resolver: &fakeResolver{errs: map[int]error{
				1: rundata.ErrCatalogueUnavailable,
			}},
			submitter: &fakeSubmitter{},
			wantErr:   rundata.ErrCatalogueUnavailable,
			wantCalls: 1,
		},
		{
			name:      "transport lost mid batch",
			first:     1,
			last:      intPtr(3),
			resolver:  &fakeResolver{meta: map[int]rundata.RunMetadata{1: meta("1910001")}},
			submitter: &fakeSubmitter{err: submission.ErrTransportNotConnected},
			wantErr:   submission.ErrTransportNotConnected,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(tt.resolver, tt.submitter, Options{}, zap.NewNop())
			result, err := o.SubmitRange(context.Background(), "WISH", tt.first, tt.last)
			assert.ErrorIs(t, err, tt.wantErr)
			require.NotNil(t, result)
			assert.Empty(t, result.Submitted)
			assert.Len(t, tt.resolver.calls, tt.wantCalls)
		})
	}
}

func TestSubmitRange_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := &fakeResolver{}
	o := New(res, &fakeSubmitter{}, Options{}, nil)
	_, err := o.SubmitRange(ctx, "WISH", 1, intPtr(2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.calls)
}

func TestSubmitRange_PublishFailureSkipsRun(t *testing.T) {
	res := &fakeResolver{meta: map[int]rundata.RunMetadata{1: meta("1910001")}}
	o := New(res, &fakeSubmitter{err: errors.New("receipt timeout")}, Options{}, nil)

	result, err := o.SubmitRange(context.Background(), "WISH", 1, nil)
	require.NoError(t, err)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, StateSubmitting, result.Skipped[0].Stage)
}

func TestSubmitRange_PassesOptions(t *testing.T) {
	res := &fakeResolver{meta: map[int]rundata.RunMetadata{1: meta("1910001")}}
	sub := &fakeSubmitter{}
	o := New(res, sub, Options{
		ReductionArguments: map[string]any{"ei": 12.5},
		StartedBy:          intPtr(7),
		Description:        "rerun",
	}, nil)

	_, err := o.SubmitRange(context.Background(), "WISH", 1, nil)
	require.NoError(t, err)
	require.Len(t, sub.requests, 1)
	assert.Equal(t, map[string]any{"ei": 12.5}, sub.requests[0].ReductionArguments)
	assert.Equal(t, 7, *sub.requests[0].StartedBy)
	assert.Equal(t, "rerun", sub.requests[0].Description)
}

func TestSubmitBatch_OneMessage(t *testing.T) {
	res := &fakeResolver{meta: map[int]rundata.RunMetadata{
		10: meta("1910001"),
		11: meta("1910002"),
	}}
	sub := &fakeSubmitter{}
	o := New(res, sub, Options{}, nil)

	result, err := o.SubmitBatch(context.Background(), "WISH", 10, 11)
	require.NoError(t, err)
	require.Len(t, sub.requests, 1)
	assert.Equal(t, []int{10, 11}, sub.requests[0].RunNumbers)
	assert.Equal(t, []string{"1910001", "1910002"}, sub.requests[0].RBNumbers)
	require.Len(t, result.Submitted, 2)
	assert.Same(t, result.Submitted[0].Receipt, result.Submitted[1].Receipt)
}

func TestSubmitBatch_AbortsOnFailedRun(t *testing.T) {
	res := &fakeResolver{
		meta: map[int]rundata.RunMetadata{10: meta("1910001")},
		errs: map[int]error{11: errors.New("store timeout")},
	}
	sub := &fakeSubmitter{}
	o := New(res, sub, Options{}, nil)

	result, err := o.SubmitBatch(context.Background(), "WISH", 10, 11)
	require.NoError(t, err)
	assert.Empty(t, sub.requests)
	assert.Empty(t, result.Submitted)
	require.Len(t, result.Skipped, 2)
	assert.Contains(t, result.Skipped[1].Reason, "batch message not sent")
}

func TestSubmitBatch_Validation(t *testing.T) {
	o := New(&fakeResolver{}, &fakeSubmitter{}, Options{}, nil)

	_, err := o.SubmitBatch(context.Background(), "WISH")
	assert.ErrorIs(t, err, runrange.ErrInvalidRunNumber)

	_, err = o.SubmitBatch(context.Background(), "WISH", 3, -1)
	assert.ErrorIs(t, err, runrange.ErrInvalidRunNumber)

	o = New(&fakeResolver{}, &fakeSubmitter{disconnected: true}, Options{}, nil)
	_, err = o.SubmitBatch(context.Background(), "WISH", 3)
	assert.ErrorIs(t, err, submission.ErrTransportNotConnected)
}

func TestRunState_Transitions(t *testing.T) {
	assert.True(t, StatePending.CanTransition(StateResolving))
	assert.True(t, StateResolving.CanTransition(StateSkipped))
	assert.True(t, StateSubmitting.CanTransition(StateSubmitted))
	assert.False(t, StatePending.CanTransition(StateSubmitting))
	assert.False(t, StateSubmitted.CanTransition(StateSkipped))
	assert.False(t, StateSkipped.CanTransition(StateResolving))
}
