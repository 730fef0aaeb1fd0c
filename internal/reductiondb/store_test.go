package reductiondb

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB opens an in-memory SQLite database carrying the reduction_viewer schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	cfg := Config{Driver: DriverSQLite, URL: ":memory:"}
	cfg.ApplyDefaults()
	db, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("testdata/schema.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	return db
}

type fixture struct {
	t  *testing.T
	db *sql.DB
}

func (f fixture) exec(query string, args ...any) {
	f.t.Helper()
	_, err := f.db.Exec(query, args...)
	require.NoError(f.t, err)
}

func (f fixture) instrument(id int, name string, active bool) {
	f.exec(`INSERT INTO reduction_viewer_instrument (id, name, is_active) VALUES ($1, $2, $3)`, id, name, active)
}

func (f fixture) experiment(id, rb int) {
	f.exec(`INSERT INTO reduction_viewer_experiment (id, reference_number) VALUES ($1, $2)`, id, rb)
}

func (f fixture) run(id, version, instrumentID, experimentID, runNumber int, title string, finished *time.Time) {
	var fin any
	if finished != nil {
		fin = *finished
	}
	f.exec(`INSERT INTO reduction_viewer_reductionrun (id, run_version, run_title, experiment_id, instrument_id, finished)
		VALUES ($1, $2, $3, $4, $5, $6)`, id, version, title, experimentID, instrumentID, fin)
	f.exec(`INSERT INTO reduction_viewer_runnumber (run_number, reduction_run_id) VALUES ($1, $2)`, runNumber, id)
}

func (f fixture) location(runID int, path string) {
	f.exec(`INSERT INTO reduction_viewer_datalocation (file_path, reduction_run_id) VALUES ($1, $2)`, path, runID)
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{URL: "postgres://localhost/autoreduction"}
	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, DriverPostgres, cfg.Driver)

	bad := cfg
	bad.Driver = "mysql"
	assert.ErrorContains(t, bad.Validate(), "unsupported database driver")

	bad = cfg
	bad.URL = ""
	assert.ErrorContains(t, bad.Validate(), "url is required")

	bad = cfg
	bad.PingTimeout = -time.Second
	assert.ErrorContains(t, bad.Validate(), "ping_timeout")
}

func TestFindRunRecord(t *testing.T) {
	db := setupTestDB(t)
	f := fixture{t: t, db: db}
	store := NewStore(db)
	ctx := context.Background()

	f.instrument(1, "MARI", true)
	f.instrument(2, "WISH", true)
	f.experiment(1, 1910001)
	f.experiment(2, 1920002)

	f.run(10, 0, 1, 1, 25581, "Vanadium", nil)
	f.location(10, "/isis/NDXMARI/MAR25581.nxs")
	f.run(11, 1, 1, 2, 25581, "Vanadium rerun", nil)
	f.location(11, "/isis/NDXMARI/MAR25581_v1.nxs")

	f.run(20, 0, 2, 2, 25581, "WISH run", nil)
	f.location(20, "/isis/NDXWISH/WISH25581.nxs")

	t.Run("returns the lowest run version", func(t *testing.T) {
		rec, err := store.FindRunRecord(ctx, "MARI", 25581)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, int64(10), rec.ID)
		assert.Equal(t, 0, rec.RunVersion)
		assert.Equal(t, "/isis/NDXMARI/MAR25581.nxs", rec.DataLocation)
		assert.Equal(t, "1910001", rec.Experiment)
		assert.Equal(t, "Vanadium", rec.Title)
	})

	t.Run("scopes by instrument", func(t *testing.T) {
		rec, err := store.FindRunRecord(ctx, "WISH", 25581)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "1920002", rec.Experiment)
		assert.Equal(t, "/isis/NDXWISH/WISH25581.nxs", rec.DataLocation)
	})

	t.Run("miss is not an error", func(t *testing.T) {
		rec, err := store.FindRunRecord(ctx, "MARI", 99999)
		assert.NoError(t, err)
		assert.Nil(t, rec)

		rec, err = store.FindRunRecord(ctx, "LET", 25581)
		assert.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("run without data location", func(t *testing.T) {
		f.run(30, 0, 2, 1, 4242, "", nil)
		rec, err := store.FindRunRecord(ctx, "WISH", 4242)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Empty(t, rec.DataLocation)
		assert.Equal(t, "1910001", rec.Experiment)
	})

	t.Run("first data location wins", func(t *testing.T) {
		f.run(40, 0, 2, 1, 5000, "multi", nil)
		f.location(40, "/first.nxs")
		f.location(40, "/second.nxs")
		rec, err := store.FindRunRecord(ctx, "WISH", 5000)
		require.NoError(t, err)
		assert.Equal(t, "/first.nxs", rec.DataLocation)
	})
}

func TestFindRunRecord_QueryError(t *testing.T) {
	cfg := Config{Driver: DriverSQLite, URL: ":memory:"}
	cfg.ApplyDefaults()
	db, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer db.Close()

	_, err = NewStore(db).FindRunRecord(context.Background(), "MARI", 1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query reduction run MARI1")
}

func TestInstrumentActivity(t *testing.T) {
	db := setupTestDB(t)
	f := fixture{t: t, db: db}
	ctx := context.Background()

	older := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 10, 18, 12, 30, 0, 0, time.UTC)

	f.instrument(1, "MARI", true)
	f.instrument(2, "WISH", false)
	f.instrument(3, "LET", true)
	f.experiment(1, 1910001)
	f.run(1, 0, 1, 1, 100, "", &older)
	f.run(2, 0, 1, 1, 101, "", &newer)
	f.run(3, 0, 1, 1, 102, "", nil)
	f.run(4, 0, 2, 1, 200, "", &older)

	activity, err := NewStore(db).InstrumentActivity(ctx)
	require.NoError(t, err)
	require.Len(t, activity, 3)

	assert.Equal(t, "LET", activity[0].Instrument)
	assert.True(t, activity[0].LastFinished.IsZero())

	assert.Equal(t, "MARI", activity[1].Instrument)
	assert.True(t, activity[1].Active)
	assert.True(t, newer.Equal(activity[1].LastFinished), "got %v", activity[1].LastFinished)

	assert.Equal(t, "WISH", activity[2].Instrument)
	assert.False(t, activity[2].Active)
	assert.True(t, older.Equal(activity[2].LastFinished))
}
