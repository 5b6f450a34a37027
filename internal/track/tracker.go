package track

import (
	"sort"

	hungarian "github.com/arthurkushman/go-hungarian"
	"github.com/pkg/errors"

	"github.com/roadscan/speedcam/internal/detect"
)

// Algorithm selects the assignment solver for frame-to-frame matching.
type Algorithm uint16

const (
	// AlgorithmHungarian uses the Hungarian algorithm (Kuhn-Munkres) for
	// optimal assignment.
	AlgorithmHungarian Algorithm = iota
	// AlgorithmGreedy picks pairs by descending score, faster but
	// potentially suboptimal.
	AlgorithmGreedy
)

// ParseAlgorithm maps a config name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "hungarian":
		return AlgorithmHungarian, nil
	case "greedy":
		return AlgorithmGreedy, nil
	}
	return AlgorithmHungarian, errors.Errorf("unknown matching algorithm %q", name)
}

// Params tunes a Tracker.
type Params struct {
	// IoUThreshold is the minimum overlap for an IoU-based match.
	IoUThreshold float64
	// MaxCentroidDistancePx accepts non-overlapping pairs whose centroids
	// are close enough, which recovers matches at low frame rates.
	MaxCentroidDistancePx float64
	// GraceFrames is how many consecutive unmatched frames a track
	// survives before finalization.
	GraceFrames int
	// Algorithm is the assignment solver.
	Algorithm Algorithm
	// DT is the Kalman filter time step in seconds, typically 1/fps.
	DT float64
}

// Tracker associates per-frame detections with live tracks. Tracks are
// kept in ascending ID order and IDs are never reused, so iteration and
// output are deterministic for a given detection stream.
type Tracker struct {
	params Params
	nextID int64
	live   []*Track
}

// NewTracker creates a tracker. A non-positive DT falls back to one
// second per frame.
func NewTracker(params Params) *Tracker {
	if params.DT <= 0 {
		params.DT = 1.0
	}
	return &Tracker{
		params: params,
		nextID: 1,
	}
}

// Live returns the live tracks ordered by ascending ID. Be careful: this
// is the internal slice, valid only until the next Observe call.
func (tr *Tracker) Live() []*Track {
	return tr.live
}

// pairScore carries the raw geometry of one track/detection pair next to
// the combined assignment score.
type pairScore struct {
	iou   float64
	dist  float64
	score float64
}

// Observe advances the tracker by one frame. Every frame must be reported
// exactly once, including empty ones: grace counters advance on the frame
// index, not on wall time. It returns the tracks finalized during this
// step in ascending ID order.
func (tr *Tracker) Observe(frameIndex int, detections []detect.Detection) ([]*Track, error) {
	// Kalman time step for every live track
	for _, trk := range tr.live {
		trk.predictNext()
	}

	numTracks := len(tr.live)
	numDets := len(detections)
	matchedTracks := make([]bool, numTracks)
	matchedDets := make([]bool, numDets)

	if numTracks > 0 && numDets > 0 {
		scores := tr.buildScores(detections)
		matches := tr.assign(scores, detections)
		for _, m := range matches {
			i, j := m[0], m[1]
			if !tr.accepts(tr.live[i], detections[j], scores[i][j]) {
				continue
			}
			if err := tr.live[i].update(frameIndex, detections[j]); err != nil {
				return nil, err
			}
			matchedTracks[i] = true
			matchedDets[j] = true
		}
	}

	// Unmatched tracks age; the ones past their grace window leave the
	// live set for good.
	var finalized []*Track
	survivors := make([]*Track, 0, numTracks)
	for i, trk := range tr.live {
		if !matchedTracks[i] {
			trk.miss()
			if trk.missed > tr.params.GraceFrames {
				trk.finalize()
				finalized = append(finalized, trk)
				continue
			}
		}
		survivors = append(survivors, trk)
	}
	tr.live = survivors

	// Every unmatched detection opens a new track
	for j, det := range detections {
		if matchedDets[j] {
			continue
		}
		trk := newTrack(tr.nextID, frameIndex, det, tr.params.DT)
		tr.nextID++
		tr.live = append(tr.live, trk)
	}

	return finalized, nil
}

// FlushAll finalizes every live track, as happens at the end of the video
// or on cancellation. The returned tracks are in ascending ID order.
func (tr *Tracker) FlushAll() []*Track {
	finalized := tr.live
	for _, trk := range finalized {
		trk.finalize()
	}
	tr.live = nil
	return finalized
}

// buildScores computes the pair matrix between live tracks (rows) and
// detections (columns). Class-mismatched pairs keep the zero score and
// can never be accepted.
func (tr *Tracker) buildScores(detections []detect.Detection) [][]pairScore {
	scores := make([][]pairScore, len(tr.live))
	for i, trk := range tr.live {
		row := make([]pairScore, len(detections))
		predBox := trk.PredictedBox()
		predCenter := predBox.Center()
		for j, det := range detections {
			if det.Class != trk.class {
				continue
			}
			iou := predBox.IoU(det.Box)
			dist := predCenter.DistanceTo(det.Box.Center())
			distScore := 1.0 / (1.0 + dist*0.01)
			// Favor IoU when there is overlap, fall back to distance
			var combined float64
			if iou > 0.05 {
				combined = iou*0.8 + distScore*0.2
			} else {
				combined = distScore * 0.5
			}
			row[j] = pairScore{iou: iou, dist: dist, score: combined}
		}
		scores[i] = row
	}
	return scores
}

// accepts decides whether an assigned pair becomes a real match. The class
// gate comes first: a class mismatch forbids the match no matter how well
// the boxes align.
func (tr *Tracker) accepts(trk *Track, det detect.Detection, s pairScore) bool {
	if det.Class != trk.class {
		return false
	}
	if s.iou > 0 && s.iou >= tr.params.IoUThreshold {
		return true
	}
	if s.iou == 0 && s.dist <= tr.params.MaxCentroidDistancePx {
		return true
	}
	return false
}

func (tr *Tracker) assign(scores [][]pairScore, detections []detect.Detection) [][2]int {
	switch tr.params.Algorithm {
	case AlgorithmGreedy:
		return tr.assignGreedy(scores, detections)
	default:
		return tr.assignHungarian(scores)
	}
}

// assignHungarian solves the assignment over a square-padded score matrix.
// Padding cells keep the zero score, so phantom assignments are filtered
// out by the acceptance check.
func (tr *Tracker) assignHungarian(scores [][]pairScore) [][2]int {
	numTracks := len(scores)
	numDets := len(scores[0])
	size := max(numTracks, numDets)
	matrix := make([][]float64, size)
	for i := range matrix {
		matrix[i] = make([]float64, size)
	}
	for i := 0; i < numTracks; i++ {
		for j := 0; j < numDets; j++ {
			matrix[i][j] = scores[i][j].score
		}
	}
	assignments := hungarian.SolveMax(matrix)
	matches := make([][2]int, 0, min(numTracks, numDets))
	for i := 0; i < numTracks; i++ {
		rowMap, ok := assignments[i]
		if !ok {
			continue
		}
		// The inner map holds the single assigned column
		for j := range rowMap {
			if j < numDets {
				matches = append(matches, [2]int{i, j})
			}
			break
		}
	}
	return matches
}

// assignGreedy sweeps candidate pairs from best to worst. Ties break on
// detector confidence, then lower track ID, then detection order, which
// keeps the result deterministic.
func (tr *Tracker) assignGreedy(scores [][]pairScore, detections []detect.Detection) [][2]int {
	type candidate struct {
		trackIdx   int
		detIdx     int
		score      float64
		confidence float64
		trackID    int64
	}
	candidates := make([]candidate, 0, len(scores)*len(detections))
	for i, row := range scores {
		for j, s := range row {
			if s.score <= 0 {
				continue
			}
			candidates = append(candidates, candidate{
				trackIdx:   i,
				detIdx:     j,
				score:      s.score,
				confidence: detections[j].Confidence,
				trackID:    tr.live[i].id,
			})
		}
	}
	sort.Slice(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.score != cb.score {
			return ca.score > cb.score
		}
		if ca.confidence != cb.confidence {
			return ca.confidence > cb.confidence
		}
		if ca.trackID != cb.trackID {
			return ca.trackID < cb.trackID
		}
		return ca.detIdx < cb.detIdx
	})

	usedTracks := make([]bool, len(scores))
	usedDets := make([]bool, len(detections))
	matches := make([][2]int, 0, min(len(scores), len(detections)))
	for _, c := range candidates {
		if usedTracks[c.trackIdx] || usedDets[c.detIdx] {
			continue
		}
		usedTracks[c.trackIdx] = true
		usedDets[c.detIdx] = true
		matches = append(matches, [2]int{c.trackIdx, c.detIdx})
	}
	return matches
}
