// Package track implements multi-object tracking over per-frame vehicle
// detections: frame-to-frame association, track lifecycle and position
// history. It knows nothing about speed or plates; it only decides which
// detection belongs to which vehicle.
package track

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"

	"github.com/roadscan/speedcam/internal/detect"
	"github.com/roadscan/speedcam/internal/geom"
)

// State is the lifecycle stage of a track.
type State uint8

const (
	// StateActive means the track was matched on the most recent frame.
	StateActive State = iota
	// StateLost means the track is inside its grace window and still
	// eligible for re-matching.
	StateLost
	// StateFinalized means the track left the live set for good.
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateLost:
		return "lost"
	case StateFinalized:
		return "finalized"
	}
	return "invalid"
}

// Position is one observed centroid with the frame it was seen on.
// Predictions are never recorded here, only real detections.
type Position struct {
	Frame  int
	Center geom.Point
}

// Track is a single vehicle through time. Identifiers are monotonically
// increasing per tracker and never reused.
type Track struct {
	id         int64
	class      detect.Class
	box        geom.Rect
	confidence float64
	state      State
	firstFrame int
	lastSeen   int
	missed     int
	positions  []Position

	predicted geom.Point
	kf        *kalman_filter.Kalman2D
}

func newTrack(id int64, frameIndex int, det detect.Detection, dt float64) *Track {
	center := det.Box.Center()

	/* Kalman filter props */
	ux := 1.0
	uy := 1.0
	stdDevA := 2.0
	stdDevMx := 0.1
	stdDevMy := 0.1
	kf := kalman_filter.NewKalman2D(dt, ux, uy, stdDevA, stdDevMx, stdDevMy, kalman_filter.WithState2D(center.X, center.Y))

	trk := &Track{
		id:         id,
		class:      det.Class,
		box:        det.Box,
		confidence: det.Confidence,
		state:      StateActive,
		firstFrame: frameIndex,
		lastSeen:   frameIndex,
		positions:  make([]Position, 0, 64),
		predicted:  center,
		kf:         kf,
	}
	trk.positions = append(trk.positions, Position{Frame: frameIndex, Center: center})
	return trk
}

// ID returns the track identifier.
func (t *Track) ID() int64 {
	return t.id
}

// Class returns the vehicle class. It never changes after creation.
func (t *Track) Class() detect.Class {
	return t.class
}

// Box returns the most recently observed bounding box.
func (t *Track) Box() geom.Rect {
	return t.box
}

// Confidence returns the detector confidence of the latest observation.
func (t *Track) Confidence() float64 {
	return t.confidence
}

// State returns the current lifecycle state.
func (t *Track) State() State {
	return t.state
}

// FirstFrame returns the frame the track was created on.
func (t *Track) FirstFrame() int {
	return t.firstFrame
}

// LastSeen returns the last frame with an actual observation.
func (t *Track) LastSeen() int {
	return t.lastSeen
}

// Missed returns the number of consecutive unmatched frames.
func (t *Track) Missed() int {
	return t.missed
}

// Positions returns the observed centroid history. Be careful: this is not
// a copy, but a reference to the internal slice.
func (t *Track) Positions() []Position {
	return t.positions
}

// PredictedBox returns the current box re-centered on the Kalman
// prediction, used for matching against the next frame.
func (t *Track) PredictedBox() geom.Rect {
	return geom.Rect{
		X:      t.predicted.X - t.box.Width/2.0,
		Y:      t.predicted.Y - t.box.Height/2.0,
		Width:  t.box.Width,
		Height: t.box.Height,
	}
}

// predictNext runs the Kalman time step without a measurement update.
func (t *Track) predictNext() {
	t.kf.Predict()
	stateX, stateY := t.kf.GetState()
	t.predicted.X = stateX
	t.predicted.Y = stateY
}

// update feeds a matched detection into the track. The raw centroid goes
// into the position history; the filter only smooths the prediction used
// for matching, so recorded positions stay measurement-true.
func (t *Track) update(frameIndex int, det detect.Detection) error {
	center := det.Box.Center()
	if err := t.kf.Update(center.X, center.Y); err != nil {
		return errors.Wrapf(err, "can't update track %d", t.id)
	}
	t.box = det.Box
	t.confidence = det.Confidence
	t.state = StateActive
	t.lastSeen = frameIndex
	t.missed = 0
	t.positions = append(t.positions, Position{Frame: frameIndex, Center: center})
	return nil
}

// miss marks one more frame without a match.
func (t *Track) miss() {
	t.missed++
	t.state = StateLost
}

func (t *Track) finalize() {
	t.state = StateFinalized
}
