package report

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/roadscan/speedcam/internal/pipeline"
)

// SpeedStats summarizes the measured speeds of one run. Vehicles without
// a speed estimate do not count as measured.
type SpeedStats struct {
	Measured  int
	MeanKmh   float64
	MedianKmh float64
	// P85Kmh is the 85th percentile speed, the usual basis for posted
	// speed limit reviews.
	P85Kmh float64
	MaxKmh float64
}

// Summarize computes run-level speed statistics over finalized records.
func Summarize(records []pipeline.VehicleRecord) SpeedStats {
	speeds := make([]float64, 0, len(records))
	for _, rec := range records {
		if rec.SpeedKmh > 0 {
			speeds = append(speeds, rec.SpeedKmh)
		}
	}
	if len(speeds) == 0 {
		return SpeedStats{}
	}
	sort.Float64s(speeds)
	return SpeedStats{
		Measured:  len(speeds),
		MeanKmh:   stat.Mean(speeds, nil),
		MedianKmh: stat.Quantile(0.5, stat.Empirical, speeds, nil),
		P85Kmh:    stat.Quantile(0.85, stat.Empirical, speeds, nil),
		MaxKmh:    speeds[len(speeds)-1],
	}
}
