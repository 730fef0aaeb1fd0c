// Package reductiondb reads run records from the autoreduction database.
//
// The schema is owned by the autoreduce web app (Django); this package only
// issues read queries against its reduction_viewer tables.
package reductiondb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunRecord is the part of a reduction run needed to resubmit it.
type RunRecord struct {
	ID           int64
	RunVersion   int
	DataLocation string
	Experiment   string
	Title        string
}

// InstrumentActivity is the most recent finished reduction of an instrument.
type InstrumentActivity struct {
	Instrument   string
	Active       bool
	LastFinished time.Time // zero if the instrument has never finished a run
}

// Store queries the autoreduction database.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const findRunRecordQuery = `
SELECT rr.id, rr.run_version, COALESCE(rr.run_title, ''), e.reference_number, dl.file_path
FROM reduction_viewer_reductionrun rr
JOIN reduction_viewer_instrument i ON i.id = rr.instrument_id
JOIN reduction_viewer_runnumber rn ON rn.reduction_run_id = rr.id
JOIN reduction_viewer_experiment e ON e.id = rr.experiment_id
LEFT JOIN reduction_viewer_datalocation dl ON dl.reduction_run_id = rr.id
WHERE i.name = $1 AND rn.run_number = $2
ORDER BY rr.run_version ASC, dl.id ASC
LIMIT 1`

// FindRunRecord returns the original (lowest run_version) reduction of a run.
// It returns (nil, nil) when the run has never been reduced.
func (s *Store) FindRunRecord(ctx context.Context, instrument string, runNumber int) (*RunRecord, error) {
	var (
		rec      RunRecord
		location sql.NullString
		rb       sql.NullString
	)

	err := s.db.QueryRowContext(ctx, findRunRecordQuery, instrument, runNumber).
		Scan(&rec.ID, &rec.RunVersion, &rec.Title, &rb, &location)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query reduction run %s%d: %w", instrument, runNumber, err)
	}

	rec.DataLocation = location.String
	rec.Experiment = rb.String
	return &rec, nil
}

const listInstrumentsQuery = `
SELECT id, name, is_active
FROM reduction_viewer_instrument
ORDER BY name`

const lastFinishedQuery = `
SELECT finished
FROM reduction_viewer_reductionrun
WHERE instrument_id = $1 AND finished IS NOT NULL
ORDER BY finished DESC
LIMIT 1`

// InstrumentActivity lists every instrument with the time its last reduction finished.
func (s *Store) InstrumentActivity(ctx context.Context) ([]InstrumentActivity, error) {
	rows, err := s.db.QueryContext(ctx, listInstrumentsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}

	type instrumentRow struct {
		id     int64
		name   string
		active bool
	}
	var instruments []instrumentRow
	for rows.Next() {
		var r instrumentRow
		if err := rows.Scan(&r.id, &r.name, &r.active); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		instruments = append(instruments, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate instruments: %w", err)
	}
	rows.Close()

	activity := make([]InstrumentActivity, 0, len(instruments))
	for _, inst := range instruments {
		a := InstrumentActivity{Instrument: inst.name, Active: inst.active}

		var finished sql.NullTime
		err := s.db.QueryRowContext(ctx, lastFinishedQuery, inst.id).Scan(&finished)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return nil, fmt.Errorf("failed to query last run of %s: %w", inst.name, err)
		default:
			a.LastFinished = finished.Time
		}
		activity = append(activity, a)
	}
	return activity, nil
}
