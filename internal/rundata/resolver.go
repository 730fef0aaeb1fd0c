// Package rundata resolves the metadata needed to submit a run for reduction.
//
// The reduction database is asked first. Runs it has never seen are looked up
// in the ICAT catalogue under the file names the instrument may have used, and
// calibration experiments are corrected from the data file itself.
package rundata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/autoreduction/autosubmit/internal/icat"
	"github.com/autoreduction/autosubmit/internal/reductiondb"
	"github.com/autoreduction/autosubmit/internal/runrange"
	"go.uber.org/zap"
)

// DefaultFileExtension is the raw data file extension used by ISIS instruments.
const DefaultFileExtension = "nxs"

// calibrationMarker appears in the catalogue's investigation name for calibration runs.
const calibrationMarker = "CAL"

var (
	// ErrDatafileNotFound is returned when no catalogue file name matches the run.
	ErrDatafileNotFound = errors.New("datafile not found in catalogue")

	// ErrCatalogueUnavailable is returned when the catalogue session cannot be established.
	ErrCatalogueUnavailable = errors.New("catalogue unavailable")
)

// DatafileNotFoundError lists the file names that were tried.
type DatafileNotFoundError struct {
	Instrument string
	RunNumber  int
	Tried      []string
}

func (e *DatafileNotFoundError) Error() string {
	return fmt.Sprintf("cannot find datafile for %s%d in ICAT (tried %s)",
		e.Instrument, e.RunNumber, strings.Join(e.Tried, ", "))
}

func (e *DatafileNotFoundError) Is(target error) bool { return target == ErrDatafileNotFound }

// Source records which system supplied a run's metadata.
type Source string

const (
	SourceDatabase  Source = "database"
	SourceCatalogue Source = "catalogue"
)

// RunMetadata is everything needed to compose a submission for one run.
type RunMetadata struct {
	DataLocation string
	ExperimentID string
	Title        string
	Source       Source
}

// RunStore looks up previously reduced runs. A nil record with a nil error is a miss.
type RunStore interface {
	FindRunRecord(ctx context.Context, instrument string, runNumber int) (*reductiondb.RunRecord, error)
}

// Catalogue looks up data files by name. A nil datafile with a nil error is a miss.
type Catalogue interface {
	Login(ctx context.Context) error
	FindDatafile(ctx context.Context, name string) (*icat.Datafile, error)
	Logout(ctx context.Context) error
}

// IdentifierReader reads the experiment identifier stored in a data file.
type IdentifierReader interface {
	ReadExperimentIdentifier(location string) (string, error)
}

// Options tune catalogue lookups.
type Options struct {
	// Prefixes overrides the built-in instrument file prefix table.
	Prefixes map[string]string

	// QueryTimeout bounds each catalogue call. Zero means no extra bound.
	QueryTimeout time.Duration
}

// Resolver resolves run metadata. One Resolver serves one batch: the catalogue
// session it opens is reused by later runs and closed by Close.
// Not safe for concurrent use.
type Resolver struct {
	store     RunStore
	catalogue Catalogue
	files     IdentifierReader
	opts      Options
	logger    *zap.Logger

	loggedIn bool
}

// NewResolver creates a resolver. store may be nil when no database is configured.
func NewResolver(store RunStore, catalogue Catalogue, files IdentifierReader, opts Options, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:     store,
		catalogue: catalogue,
		files:     files,
		opts:      opts,
		logger:    logger.Named("resolver"),
	}
}

// Resolve returns the metadata of one run.
//
// Errors matching runrange.ErrInvalidRunNumber or ErrCatalogueUnavailable
// concern the whole batch; any other error concerns only this run.
func (r *Resolver) Resolve(ctx context.Context, instrument string, runNumber int, fileExt string) (RunMetadata, error) {
	if err := runrange.ValidateRunNumber(runNumber); err != nil {
		return RunMetadata{}, err
	}
	if fileExt == "" {
		fileExt = DefaultFileExtension
	}
	log := r.logger.With(zap.String("instrument", instrument), zap.Int("run", runNumber))

	if r.store != nil {
		record, err := r.store.FindRunRecord(ctx, instrument, runNumber)
		if err != nil {
			return RunMetadata{}, err
		}
		if record != nil {
			log.Debug("Run found in reduction database", zap.Int("run_version", record.RunVersion))
			return RunMetadata{
				DataLocation: record.DataLocation,
				ExperimentID: record.Experiment,
				Title:        record.Title,
				Source:       SourceDatabase,
			}, nil
		}
	}

	log.Info("Run not in reduction database, querying ICAT")
	if err := r.ensureSession(ctx); err != nil {
		return RunMetadata{}, err
	}

	df, err := r.findInCatalogue(ctx, instrument, runNumber, fileExt)
	if err != nil {
		return RunMetadata{}, err
	}

	meta := RunMetadata{
		DataLocation: df.Location,
		ExperimentID: df.InvestigationName,
		Title:        df.InvestigationTitle,
		Source:       SourceCatalogue,
	}

	if strings.Contains(meta.ExperimentID, calibrationMarker) {
		if r.files == nil {
			return RunMetadata{}, fmt.Errorf("calibration run %s%d needs a datafile reader", instrument, runNumber)
		}
		rb, err := r.files.ReadExperimentIdentifier(meta.DataLocation)
		if err != nil {
			return RunMetadata{}, err
		}
		log.Info("Replaced calibration experiment id from datafile",
			zap.String("catalogue_id", meta.ExperimentID), zap.String("datafile_id", rb))
		meta.ExperimentID = rb
	}

	return meta, nil
}

// Close ends the catalogue session if one was opened.
func (r *Resolver) Close(ctx context.Context) error {
	if !r.loggedIn {
		return nil
	}
	r.loggedIn = false

	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	return r.catalogue.Logout(callCtx)
}

func (r *Resolver) ensureSession(ctx context.Context) error {
	if r.loggedIn {
		return nil
	}
	if r.catalogue == nil {
		return fmt.Errorf("%w: no catalogue configured", ErrCatalogueUnavailable)
	}

	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	if err := r.catalogue.Login(callCtx); err != nil {
		return fmt.Errorf("%w: %w", ErrCatalogueUnavailable, err)
	}
	r.loggedIn = true
	return nil
}

func (r *Resolver) findInCatalogue(ctx context.Context, instrument string, runNumber int, fileExt string) (*icat.Datafile, error) {
	prefix := icat.InstrumentPrefix(instrument, r.opts.Prefixes)
	names := CandidateNames(prefix, instrument, runNumber, fileExt)

	for _, name := range names {
		df, err := r.queryDatafile(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to query ICAT for %s: %w", name, err)
		}
		if df != nil {
			r.logger.Debug("Datafile found in ICAT", zap.String("name", name), zap.String("location", df.Location))
			return df, nil
		}
	}

	return nil, &DatafileNotFoundError{Instrument: instrument, RunNumber: runNumber, Tried: names}
}

func (r *Resolver) queryDatafile(ctx context.Context, name string) (*icat.Datafile, error) {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()
	return r.catalogue.FindDatafile(callCtx, name)
}

func (r *Resolver) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.QueryTimeout > 0 {
		return context.WithTimeout(ctx, r.opts.QueryTimeout)
	}
	return context.WithCancel(ctx)
}

// CandidateNames returns the catalogue file names a run may be stored under,
// in lookup order: the short prefix with 5 and 8 digit run numbers, then the
// full instrument name with 5 and 8 digits. Duplicates are kept.
func CandidateNames(prefix, instrument string, runNumber int, fileExt string) []string {
	return []string{
		fmt.Sprintf("%s%05d.%s", prefix, runNumber, fileExt),
		fmt.Sprintf("%s%08d.%s", prefix, runNumber, fileExt),
		fmt.Sprintf("%s%05d.%s", instrument, runNumber, fileExt),
		fmt.Sprintf("%s%08d.%s", instrument, runNumber, fileExt),
	}
}
