package report

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roadscan/speedcam/internal/detect"
	"github.com/roadscan/speedcam/internal/pipeline"
)

func TestSummarize(t *testing.T) {
	records := []pipeline.VehicleRecord{
		{TrackID: 1, Class: detect.ClassCar, SpeedKmh: 60},
		{TrackID: 2, Class: detect.ClassTruck, SpeedKmh: 0}, // never measured
		{TrackID: 3, Class: detect.ClassCar, SpeedKmh: 50},
		{TrackID: 4, Class: detect.ClassBus, SpeedKmh: 80},
		{TrackID: 5, Class: detect.ClassCar, SpeedKmh: 70},
	}

	stats := Summarize(records)
	require.Equal(t, 4, stats.Measured)
	require.InDelta(t, 65.0, stats.MeanKmh, 1e-9)
	require.InDelta(t, 60.0, stats.MedianKmh, 1e-9)
	require.InDelta(t, 80.0, stats.P85Kmh, 1e-9)
	require.InDelta(t, 80.0, stats.MaxKmh, 1e-9)
}

func TestSummarizeNoMeasurements(t *testing.T) {
	require.Zero(t, Summarize(nil))
	require.Zero(t, Summarize([]pipeline.VehicleRecord{
		{TrackID: 1, Class: detect.ClassCar, SpeedKmh: 0},
	}))
}
