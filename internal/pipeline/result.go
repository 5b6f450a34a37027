package pipeline

import (
	"iter"

	"github.com/google/uuid"

	"github.com/roadscan/speedcam/internal/detect"
	"github.com/roadscan/speedcam/internal/geom"
)

// VehicleRecord is the finalized outcome for one tracked vehicle.
type VehicleRecord struct {
	TrackID   int64
	Class     detect.Class
	SpeedKmh  float64
	Overspeed bool
	// Plate is empty when no plate was resolved; PlateConfidence is then 0.
	Plate           string
	PlateConfidence float64
	EntryFrame      int
	ExitFrame       int
	// Observations is the number of frames the vehicle was actually
	// detected on. Records with fewer than two observations always carry
	// speed 0.
	Observations int
}

// BoxAnnotation is the overlay state of one vehicle on one frame.
type BoxAnnotation struct {
	TrackID int64
	Class   detect.Class
	Box     geom.Rect
	// SpeedKmh is the smoothed running estimate at this frame, not the
	// finalized speed.
	SpeedKmh  float64
	Overspeed bool
	// Plate is the best plate resolved so far, possibly revised later.
	Plate string
	// InZone is true when the vehicle centroid lies inside the
	// measurement zone band.
	InZone bool
}

// FrameAnnotations is everything a renderer needs for one frame. Boxes
// are ordered by ascending track ID.
type FrameAnnotations struct {
	FrameIndex int
	Boxes      []BoxAnnotation
}

// Stats summarizes a run for logs and reports.
type Stats struct {
	FramesTotal        int
	FramesCorrupt      int
	DetectorFailures   int
	RecognizerFailures int
	// Detections counts filtered detections fed to the tracker.
	Detections int
	// PlateReads counts non-empty recognizer responses, before the
	// plausibility vote.
	PlateReads      int
	TracksOpened    int
	TracksFinalized int
	// Cancelled is true when the run stopped at a frame boundary due to
	// context cancellation. The result is still complete for the frames
	// that were processed.
	Cancelled bool
}

// Result is the complete outcome of a run. Records are ordered by
// ascending track ID, so identical inputs produce identical results.
type Result struct {
	RunID    uuid.UUID
	VideoFPS float64
	Records  []VehicleRecord
	Stats    Stats

	frames []FrameAnnotations
}

// Frames returns the per-frame annotations in frame order. The sequence
// is finite and can be ranged over any number of times.
func (r *Result) Frames() iter.Seq[FrameAnnotations] {
	return func(yield func(FrameAnnotations) bool) {
		for _, f := range r.frames {
			if !yield(f) {
				return
			}
		}
	}
}

// FrameCount returns the number of annotated frames.
func (r *Result) FrameCount() int {
	return len(r.frames)
}
