package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/roadscan/speedcam/internal/detect"
	"github.com/roadscan/speedcam/internal/pipeline"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "report.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())
	return store
}

func sampleResult(records ...pipeline.VehicleRecord) *pipeline.Result {
	return &pipeline.Result{
		RunID:    uuid.New(),
		VideoFPS: 25,
		Records:  records,
		Stats: pipeline.Stats{
			FramesTotal:     100,
			TracksOpened:    len(records),
			TracksFinalized: len(records),
		},
	}
}

func TestStoreMigrateIdempotent(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.Migrate())
}

func TestStoreSaveAndLoad(t *testing.T) {
	store := openTestStore(t)
	res := sampleResult(
		pipeline.VehicleRecord{TrackID: 1, Class: detect.ClassCar, SpeedKmh: 54.3, Overspeed: true, Plate: "AB123CD", PlateConfidence: 0.83, EntryFrame: 3, ExitFrame: 40, Observations: 35},
		pipeline.VehicleRecord{TrackID: 2, Class: detect.ClassTruck, SpeedKmh: 0, Overspeed: false, Plate: "", EntryFrame: 5, ExitFrame: 9, Observations: 4},
	)
	require.NoError(t, store.SaveRun("clips/morning", 50, res))

	loaded, err := store.Records(res.RunID.String())
	require.NoError(t, err)
	require.Equal(t, res.Records, loaded)
}

func TestStoreDuplicateRunFails(t *testing.T) {
	store := openTestStore(t)
	res := sampleResult()
	require.NoError(t, store.SaveRun("clips/a", 50, res))
	require.Error(t, store.SaveRun("clips/a", 50, res))
}

func TestStoreRunsSummary(t *testing.T) {
	store := openTestStore(t)
	first := sampleResult(
		pipeline.VehicleRecord{TrackID: 1, Class: detect.ClassCar, SpeedKmh: 54.3, Overspeed: true, EntryFrame: 0, ExitFrame: 20, Observations: 21},
		pipeline.VehicleRecord{TrackID: 2, Class: detect.ClassTruck, SpeedKmh: 0, EntryFrame: 4, ExitFrame: 8, Observations: 5},
	)
	second := sampleResult()
	require.NoError(t, store.SaveRun("clips/morning", 50, first))
	require.NoError(t, store.SaveRun("clips/evening", 50, second))

	summaries, err := store.Runs()
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	byID := make(map[string]RunSummary)
	for _, sum := range summaries {
		byID[sum.ID] = sum
	}

	morning := byID[first.RunID.String()]
	require.Equal(t, "clips/morning", morning.Source)
	require.Equal(t, 2, morning.Vehicles)
	require.Equal(t, 1, morning.Overspeed)
	require.InDelta(t, 54.3, morning.MeanSpeedKmh, 1e-9)
	require.WithinDuration(t, time.Now(), morning.CreatedAt, time.Minute)

	evening := byID[second.RunID.String()]
	require.Equal(t, 0, evening.Vehicles)
	require.Zero(t, evening.MeanSpeedKmh)
}

func TestStoreLatestRunID(t *testing.T) {
	store := openTestStore(t)
	_, err := store.LatestRunID()
	require.Error(t, err)

	first := sampleResult()
	second := sampleResult()
	require.NoError(t, store.SaveRun("clips/a", 50, first))
	require.NoError(t, store.SaveRun("clips/b", 50, second))

	id, err := store.LatestRunID()
	require.NoError(t, err)
	require.Equal(t, second.RunID.String(), id)
}

func TestStoreSpeedsByClass(t *testing.T) {
	store := openTestStore(t)
	res := sampleResult(
		pipeline.VehicleRecord{TrackID: 1, Class: detect.ClassCar, SpeedKmh: 54.3, EntryFrame: 0, ExitFrame: 5, Observations: 6},
		pipeline.VehicleRecord{TrackID: 2, Class: detect.ClassCar, SpeedKmh: 61, EntryFrame: 1, ExitFrame: 6, Observations: 6},
		pipeline.VehicleRecord{TrackID: 3, Class: detect.ClassTruck, SpeedKmh: 0, EntryFrame: 2, ExitFrame: 3, Observations: 2},
		pipeline.VehicleRecord{TrackID: 4, Class: detect.ClassBus, SpeedKmh: 88, Overspeed: true, EntryFrame: 2, ExitFrame: 9, Observations: 8},
	)
	require.NoError(t, store.SaveRun("clips/a", 50, res))

	speeds, err := store.SpeedsByClass(res.RunID.String())
	require.NoError(t, err)
	require.Equal(t, map[string][]float64{
		"car": {54.3, 61},
		"bus": {88},
	}, speeds)
}

func TestStoreRecordsUnknownRun(t *testing.T) {
	store := openTestStore(t)
	records, err := store.Records("not-a-run")
	require.NoError(t, err)
	require.Empty(t, records)
}
