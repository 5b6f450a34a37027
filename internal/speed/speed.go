// Package speed turns pixel displacements into calibrated speeds. The
// scene scale (pixels per meter) and the frame rate are the only inputs;
// everything else is unit conversion and smoothing.
package speed

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/roadscan/speedcam/internal/geom"
)

const (
	// emaAlpha weights the newest sample in the running estimate.
	emaAlpha = 0.3
	// noiseFloorPx treats sub-pixel displacement as standstill.
	noiseFloorPx = 1.0
	// mpsToKmh converts meters per second to kilometers per hour.
	mpsToKmh = 3.6
)

// Estimator holds the calibration of one scene.
type Estimator struct {
	pixelsPerMeter float64
	fps            float64
	multiplier     float64
	maxPlausible   float64
}

// NewEstimator validates the calibration. multiplier is a scene fudge
// factor applied to every sample; maxPlausible discards samples above it.
func NewEstimator(pixelsPerMeter, fps, multiplier, maxPlausible float64) (*Estimator, error) {
	if pixelsPerMeter <= 0 {
		return nil, errors.Errorf("pixels per meter must be positive, got %v", pixelsPerMeter)
	}
	if fps <= 0 {
		return nil, errors.Errorf("frame rate must be positive, got %v", fps)
	}
	if multiplier <= 0 {
		return nil, errors.Errorf("speed multiplier must be positive, got %v", multiplier)
	}
	if maxPlausible <= 0 {
		return nil, errors.Errorf("max plausible speed must be positive, got %v", maxPlausible)
	}
	return &Estimator{
		pixelsPerMeter: pixelsPerMeter,
		fps:            fps,
		multiplier:     multiplier,
		maxPlausible:   maxPlausible,
	}, nil
}

// Sample converts the displacement between two observations frameGap
// frames apart into km/h. Displacement below the noise floor reads as 0.
func (e *Estimator) Sample(from, to geom.Point, frameGap int) float64 {
	if frameGap <= 0 {
		return 0
	}
	distPx := from.DistanceTo(to)
	if distPx < noiseFloorPx {
		return 0
	}
	meters := distPx / e.pixelsPerMeter
	seconds := float64(frameGap) / e.fps
	return meters / seconds * mpsToKmh * e.multiplier
}

// NewSeries starts an empty per-vehicle sample series.
func (e *Estimator) NewSeries() *Series {
	return &Series{est: e}
}

// Series accumulates the speed samples of a single vehicle. The running
// estimate is an exponential moving average for stable on-screen labels;
// the finalized speed is the median over the whole lifetime.
type Series struct {
	est      *Estimator
	samples  []float64
	smoothed float64
	seeded   bool
}

// Add records the displacement between two consecutive observations and
// returns the smoothed running estimate. Samples of zero (standstill) or
// above the plausibility bound are discarded and the previous estimate
// carries over.
func (s *Series) Add(from, to geom.Point, frameGap int) float64 {
	v := s.est.Sample(from, to, frameGap)
	if v <= 0 || v > s.est.maxPlausible {
		return s.smoothed
	}
	s.samples = append(s.samples, v)
	if !s.seeded {
		s.smoothed = v
		s.seeded = true
	} else {
		s.smoothed = emaAlpha*v + (1-emaAlpha)*s.smoothed
	}
	return s.smoothed
}

// Current returns the smoothed running estimate, 0 before the first
// accepted sample.
func (s *Series) Current() float64 {
	return s.smoothed
}

// Count returns the number of accepted samples.
func (s *Series) Count() int {
	return len(s.samples)
}

// Final returns the lifetime median, which shrugs off single-frame
// outliers from detector jitter. Without accepted samples it returns 0,
// so stationary vehicles and single-observation tracks both read as 0.
func (s *Series) Final() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), s.samples...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}
