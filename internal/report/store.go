// Package report persists finalized vehicle records in SQLite and renders
// them as CSV tables and speed distribution charts.
package report

import (
	"database/sql"
	"embed"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/roadscan/speedcam/internal/detect"
	"github.com/roadscan/speedcam/internal/pipeline"
)

//go:embed migrations
var migrationsFS embed.FS

// Store persists runs and their vehicle records.
type Store struct {
	*sql.DB
}

// Open opens or creates the database at path and applies the pragmas the
// store relies on. Call Migrate before first use.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "can't open report database")
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "can't apply %q", pragma)
		}
	}
	return &Store{db}, nil
}

// Migrate brings the schema to the latest version using the embedded
// migration files. Running it against an up-to-date database is a no-op.
func (s *Store) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "can't load embedded migrations")
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return errors.Wrap(err, "can't create sqlite migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return errors.Wrap(err, "can't create migrate instance")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migration failed")
	}
	return nil
}

// SaveRun stores a result and all its records atomically. source names
// the input the run was produced from, typically the frames directory.
func (s *Store) SaveRun(source string, speedLimitKmh float64, res *pipeline.Result) error {
	tx, err := s.Begin()
	if err != nil {
		return errors.Wrap(err, "can't begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO runs (
			id, source, fps, speed_limit_kmh, frames_total, frames_corrupt,
			detector_failures, recognizer_failures, tracks_opened,
			tracks_finalized, cancelled, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID.String(), source, res.VideoFPS, speedLimitKmh,
		res.Stats.FramesTotal, res.Stats.FramesCorrupt,
		res.Stats.DetectorFailures, res.Stats.RecognizerFailures,
		res.Stats.TracksOpened, res.Stats.TracksFinalized,
		res.Stats.Cancelled, time.Now().Unix())
	if err != nil {
		return errors.Wrap(err, "can't insert run")
	}

	stmt, err := tx.Prepare(`INSERT INTO vehicle_records (
			run_id, track_id, class, speed_kmh, overspeed, plate,
			plate_confidence, entry_frame, exit_frame, observations
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "can't prepare record insert")
	}
	defer stmt.Close()
	for _, rec := range res.Records {
		if _, err := stmt.Exec(res.RunID.String(), rec.TrackID, rec.Class.String(),
			rec.SpeedKmh, rec.Overspeed, rec.Plate, rec.PlateConfidence,
			rec.EntryFrame, rec.ExitFrame, rec.Observations); err != nil {
			return errors.Wrapf(err, "can't insert record for track %d", rec.TrackID)
		}
	}
	return errors.Wrap(tx.Commit(), "can't commit run")
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID           string
	Source       string
	FPS          float64
	Vehicles     int
	Overspeed    int
	MeanSpeedKmh float64
	Cancelled    bool
	CreatedAt    time.Time
}

// Runs lists stored runs, newest first. The mean speed ignores records
// without a speed estimate.
func (s *Store) Runs() ([]RunSummary, error) {
	rows, err := s.Query(`SELECT r.id, r.source, r.fps, r.cancelled, r.created_at,
			COUNT(v.track_id),
			COALESCE(SUM(v.overspeed), 0),
			COALESCE(AVG(CASE WHEN v.speed_kmh > 0 THEN v.speed_kmh END), 0)
		FROM runs r
		LEFT JOIN vehicle_records v ON v.run_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at DESC, r.id`)
	if err != nil {
		return nil, errors.Wrap(err, "can't query runs")
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var sum RunSummary
		var createdAt int64
		if err := rows.Scan(&sum.ID, &sum.Source, &sum.FPS, &sum.Cancelled, &createdAt,
			&sum.Vehicles, &sum.Overspeed, &sum.MeanSpeedKmh); err != nil {
			return nil, errors.Wrap(err, "can't scan run summary")
		}
		sum.CreatedAt = time.Unix(createdAt, 0)
		summaries = append(summaries, sum)
	}
	return summaries, errors.Wrap(rows.Err(), "run listing failed")
}

// LatestRunID returns the id of the most recently stored run.
func (s *Store) LatestRunID() (string, error) {
	var id string
	err := s.QueryRow(`SELECT id FROM runs ORDER BY created_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", errors.New("no runs recorded yet")
	}
	if err != nil {
		return "", errors.Wrap(err, "can't query latest run")
	}
	return id, nil
}

// Records returns the vehicle records of a run ordered by track ID.
func (s *Store) Records(runID string) ([]pipeline.VehicleRecord, error) {
	rows, err := s.Query(`SELECT track_id, class, speed_kmh, overspeed, plate,
			plate_confidence, entry_frame, exit_frame, observations
		FROM vehicle_records WHERE run_id = ? ORDER BY track_id`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "can't query vehicle records")
	}
	defer rows.Close()

	var records []pipeline.VehicleRecord
	for rows.Next() {
		var rec pipeline.VehicleRecord
		var class string
		if err := rows.Scan(&rec.TrackID, &class, &rec.SpeedKmh, &rec.Overspeed,
			&rec.Plate, &rec.PlateConfidence, &rec.EntryFrame, &rec.ExitFrame,
			&rec.Observations); err != nil {
			return nil, errors.Wrap(err, "can't scan vehicle record")
		}
		rec.Class, err = detect.ParseClass(class)
		if err != nil {
			return nil, errors.Wrapf(err, "stored record for track %d", rec.TrackID)
		}
		records = append(records, rec)
	}
	return records, errors.Wrap(rows.Err(), "record listing failed")
}

// SpeedsByClass returns the positive speed estimates of a run grouped by
// class name, for the distribution chart.
func (s *Store) SpeedsByClass(runID string) (map[string][]float64, error) {
	rows, err := s.Query(`SELECT class, speed_kmh FROM vehicle_records
		WHERE run_id = ? AND speed_kmh > 0 ORDER BY class, track_id`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "can't query speeds")
	}
	defer rows.Close()

	speeds := make(map[string][]float64)
	for rows.Next() {
		var class string
		var v float64
		if err := rows.Scan(&class, &v); err != nil {
			return nil, errors.Wrap(err, "can't scan speed")
		}
		speeds[class] = append(speeds[class], v)
	}
	return speeds, errors.Wrap(rows.Err(), "speed listing failed")
}
