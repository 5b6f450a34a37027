// Package config defines the pipeline configuration. A Config is plain
// data: the pipeline copies it at construction and never mutates it, so a
// loaded value can be shared between runs.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// ErrCalibrationMissing is returned when the scene scale (pixels per meter)
// is absent. Speed cannot be computed without it.
var ErrCalibrationMissing = errors.New("calibration missing: pixels per meter is not set")

// Matching algorithm names accepted by Config.MatchAlgorithm.
const (
	MatchHungarian = "hungarian"
	MatchGreedy    = "greedy"
)

// Config carries every tunable of a processing run.
type Config struct {
	// FPS overrides the source frame rate when positive.
	FPS float64 `json:"fps,omitempty"`

	// PixelsPerMeter is the scene scale. Required, no usable default.
	PixelsPerMeter float64 `json:"pixels_per_meter"`

	// SpeedLimitKmh marks records above it as overspeed.
	SpeedLimitKmh float64 `json:"speed_limit_kmh"`

	// SpeedMultiplier is a calibration fudge factor applied to every
	// speed sample.
	SpeedMultiplier float64 `json:"speed_multiplier"`

	// VehicleClasses lists the class names to track. Empty means all
	// supported classes.
	VehicleClasses []string `json:"vehicle_classes,omitempty"`

	// MinDetectionConfidence drops detector output below this score.
	MinDetectionConfidence float64 `json:"min_detection_confidence"`

	// IoUMatchThreshold is the minimum overlap for a track/detection match.
	IoUMatchThreshold float64 `json:"iou_match_threshold"`

	// MaxCentroidDistancePx recovers matches whose boxes no longer overlap,
	// typically at low frame rates.
	MaxCentroidDistancePx float64 `json:"max_centroid_distance_px"`

	// LostGraceFrames is how many consecutive unmatched frames a track
	// survives before finalization.
	LostGraceFrames int `json:"lost_grace_frames"`

	// MatchAlgorithm selects the assignment solver, "hungarian" or "greedy".
	MatchAlgorithm string `json:"match_algorithm"`

	// MinPlateConfidence drops OCR reads below this score.
	MinPlateConfidence float64 `json:"min_plate_confidence"`

	// PlateSampleStride is the OCR sampling period in frames for vehicles
	// at or above SlowSpeedKmh; PlateSampleStrideSlow applies below it.
	PlateSampleStride     int     `json:"plate_sample_stride"`
	PlateSampleStrideSlow int     `json:"plate_sample_stride_slow"`
	SlowSpeedKmh          float64 `json:"slow_speed_kmh"`

	// MaxPlausibleSpeedKmh discards speed samples above it as noise.
	MaxPlausibleSpeedKmh float64 `json:"max_plausible_speed_kmh"`

	// ZoneTop and ZoneBottom bound the measurement zone as fractions of
	// the frame height. Speed labels are rendered only inside the zone.
	ZoneTop    float64 `json:"zone_top"`
	ZoneBottom float64 `json:"zone_bottom"`
}

// Default returns a Config with every field but the calibration filled in.
func Default() Config {
	return Config{
		SpeedLimitKmh:          80.0,
		SpeedMultiplier:        1.2,
		MinDetectionConfidence: 0.5,
		IoUMatchThreshold:      0.3,
		MaxCentroidDistancePx:  50.0,
		LostGraceFrames:        10,
		MatchAlgorithm:         MatchHungarian,
		MinPlateConfidence:     0.4,
		PlateSampleStride:      10,
		PlateSampleStrideSlow:  5,
		SlowSpeedKmh:           40.0,
		MaxPlausibleSpeedKmh:   200.0,
		ZoneTop:                0.4,
		ZoneBottom:             0.7,
	}
}

// Load reads a JSON config file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "can't read config file")
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "can't parse config file %s", path)
	}
	return cfg, nil
}

// Validate checks the configuration for a run. The zero calibration is the
// only error callers are expected to branch on.
func (c Config) Validate() error {
	if c.PixelsPerMeter <= 0 {
		return errors.Wrap(ErrCalibrationMissing, "config")
	}
	if c.FPS < 0 {
		return errors.Errorf("fps must not be negative, got %v", c.FPS)
	}
	if c.SpeedLimitKmh <= 0 {
		return errors.Errorf("speed limit must be positive, got %v", c.SpeedLimitKmh)
	}
	if c.SpeedMultiplier <= 0 {
		return errors.Errorf("speed multiplier must be positive, got %v", c.SpeedMultiplier)
	}
	if c.MinDetectionConfidence < 0 || c.MinDetectionConfidence > 1 {
		return errors.Errorf("min detection confidence must be in [0, 1], got %v", c.MinDetectionConfidence)
	}
	if c.IoUMatchThreshold < 0 || c.IoUMatchThreshold > 1 {
		return errors.Errorf("IoU match threshold must be in [0, 1], got %v", c.IoUMatchThreshold)
	}
	if c.MaxCentroidDistancePx < 0 {
		return errors.Errorf("max centroid distance must be non-negative, got %v", c.MaxCentroidDistancePx)
	}
	if c.LostGraceFrames < 0 {
		return errors.Errorf("lost grace frames must be non-negative, got %d", c.LostGraceFrames)
	}
	switch c.MatchAlgorithm {
	case MatchHungarian, MatchGreedy:
	default:
		return errors.Errorf("unknown match algorithm %q", c.MatchAlgorithm)
	}
	if c.MinPlateConfidence < 0 || c.MinPlateConfidence > 1 {
		return errors.Errorf("min plate confidence must be in [0, 1], got %v", c.MinPlateConfidence)
	}
	if c.PlateSampleStride < 1 || c.PlateSampleStrideSlow < 1 {
		return errors.Errorf("plate sample strides must be at least 1, got %d/%d", c.PlateSampleStride, c.PlateSampleStrideSlow)
	}
	if c.MaxPlausibleSpeedKmh <= 0 {
		return errors.Errorf("max plausible speed must be positive, got %v", c.MaxPlausibleSpeedKmh)
	}
	if c.ZoneTop < 0 || c.ZoneBottom > 1 || c.ZoneTop >= c.ZoneBottom {
		return errors.Errorf("zone bounds must satisfy 0 <= top < bottom <= 1, got %v/%v", c.ZoneTop, c.ZoneBottom)
	}
	return nil
}
