// Package pipeline composes the frame source, detector, tracker, speed
// estimation and plate voting into a single run. Given the same frames,
// detections and configuration, a run always produces the same result.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/roadscan/speedcam/internal/config"
	"github.com/roadscan/speedcam/internal/detect"
	"github.com/roadscan/speedcam/internal/plate"
	"github.com/roadscan/speedcam/internal/speed"
	"github.com/roadscan/speedcam/internal/track"
	"github.com/roadscan/speedcam/internal/video"
)

// prefetchDepth bounds how many frames run detection ahead of the tracker.
const prefetchDepth = 4

// Progress is called after every frame. total is 0 when the source does
// not know its length.
type Progress func(done, total int)

// FrameObserver receives each frame together with its annotations, in
// frame order, before the next frame is processed. A non-nil error
// aborts the run.
type FrameObserver func(frame video.Frame, ann FrameAnnotations) error

// Options configures a Driver. Source and Detector are required.
type Options struct {
	Config   config.Config
	Source   video.FrameSource
	Detector detect.Detector
	// Recognizer is optional. Without it no plates are read.
	Recognizer detect.Recognizer
	// Logger defaults to slog.Default.
	Logger   *slog.Logger
	Observer FrameObserver
	Progress Progress
}

// Driver owns one processing run. It consumes its frame source, so a
// Driver runs once.
type Driver struct {
	cfg        config.Config
	source     video.FrameSource
	adapter    *detect.Adapter
	recognizer detect.Recognizer
	log        *slog.Logger
	observer   FrameObserver
	progress   Progress
}

// vehicleState is the per-track measurement state the tracker itself
// does not carry.
type vehicleState struct {
	series         *speed.Series
	ballot         *plate.Ballot
	lastPlateFrame int
}

// NewDriver validates the configuration and wires the detection stage.
func NewDriver(opts Options) (*Driver, error) {
	if opts.Source == nil {
		return nil, errors.New("pipeline: frame source is required")
	}
	if opts.Detector == nil {
		return nil, errors.New("pipeline: detector is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	classes, err := detect.ParseClasses(opts.Config.VehicleClasses)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Driver{
		cfg:        opts.Config,
		source:     opts.Source,
		adapter:    detect.NewAdapter(opts.Detector, opts.Config.MinDetectionConfidence, classes),
		recognizer: opts.Recognizer,
		log:        log,
		observer:   opts.Observer,
		progress:   opts.Progress,
	}, nil
}

// Run processes the whole stream. Cancellation stops at the next frame
// boundary and still returns a complete result for the frames seen, with
// Stats.Cancelled set and all live tracks finalized as if the video
// ended there.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	fps := d.cfg.FPS
	if fps <= 0 {
		fps = d.source.FPS()
	}
	if fps <= 0 {
		return nil, errors.New("pipeline: frame rate unknown, set fps in the config")
	}

	est, err := speed.NewEstimator(d.cfg.PixelsPerMeter, fps, d.cfg.SpeedMultiplier, d.cfg.MaxPlausibleSpeedKmh)
	if err != nil {
		return nil, err
	}
	alg, err := track.ParseAlgorithm(d.cfg.MatchAlgorithm)
	if err != nil {
		return nil, err
	}
	tracker := track.NewTracker(track.Params{
		IoUThreshold:          d.cfg.IoUMatchThreshold,
		MaxCentroidDistancePx: d.cfg.MaxCentroidDistancePx,
		GraceFrames:           d.cfg.LostGraceFrames,
		Algorithm:             alg,
		DT:                    1.0 / fps,
	})

	res := &Result{RunID: uuid.New(), VideoFPS: fps}
	states := make(map[int64]*vehicleState)
	lastIndex := 0

	bounds := d.source.Bounds()
	zoneTop := float64(bounds.Min.Y) + float64(bounds.Dy())*d.cfg.ZoneTop
	zoneBottom := float64(bounds.Min.Y) + float64(bounds.Dy())*d.cfg.ZoneBottom
	total := d.source.Frames()

	d.log.Info("run started",
		"run", res.RunID,
		"fps", fps,
		"frames", total,
		"algorithm", d.cfg.MatchAlgorithm)
	start := time.Now()

	// The run owns a derived context so every return path, including
	// mid-stream failures, releases the prefetcher.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefetch := detect.NewPrefetcher(ctx, d.source, d.adapter, prefetchDepth)
	for {
		if ctx.Err() != nil {
			res.Stats.Cancelled = true
			break
		}
		item, ok := prefetch.Next()
		if !ok {
			break
		}
		frame := item.Frame
		res.Stats.FramesTotal++
		lastIndex = frame.Index

		var detections []detect.Detection
		switch {
		case item.Corrupt:
			res.Stats.FramesCorrupt++
			d.log.Warn("corrupt frame, tracking continues without it", "frame", frame.Index)
		case item.DetectErr != nil:
			res.Stats.DetectorFailures++
			d.log.Warn("detector failed, frame treated as empty", "frame", frame.Index, "error", item.DetectErr)
		default:
			detections = item.Detections
			res.Stats.Detections += len(detections)
		}

		finalized, err := tracker.Observe(frame.Index, detections)
		if err != nil {
			return nil, err
		}

		ann := FrameAnnotations{FrameIndex: frame.Index}
		for _, trk := range tracker.Live() {
			st := states[trk.ID()]
			if st == nil {
				st = &vehicleState{
					series:         est.NewSeries(),
					ballot:         plate.NewBallot(d.cfg.MinPlateConfidence),
					lastPlateFrame: -1,
				}
				states[trk.ID()] = st
				res.Stats.TracksOpened++
			}
			if trk.LastSeen() != frame.Index {
				// Lost this frame; nothing was measured.
				continue
			}

			positions := trk.Positions()
			if len(positions) >= 2 {
				prev := positions[len(positions)-2]
				cur := positions[len(positions)-1]
				st.series.Add(prev.Center, cur.Center, cur.Frame-prev.Frame)
			}

			d.samplePlate(ctx, res, frame, trk, st)

			running := st.series.Current()
			text, _, _ := st.ballot.Resolve()
			center := trk.Box().Center()
			ann.Boxes = append(ann.Boxes, BoxAnnotation{
				TrackID:   trk.ID(),
				Class:     trk.Class(),
				Box:       trk.Box(),
				SpeedKmh:  running,
				Overspeed: running > d.cfg.SpeedLimitKmh,
				Plate:     text,
				InZone:    center.Y >= zoneTop && center.Y <= zoneBottom,
			})
		}
		res.frames = append(res.frames, ann)

		for _, trk := range finalized {
			res.Records = append(res.Records, d.finalizeRecord(trk, states, trk.LastSeen()))
		}

		if d.observer != nil {
			if err := d.observer(frame, ann); err != nil {
				return nil, errors.Wrap(err, "frame observer failed")
			}
		}
		if d.progress != nil {
			d.progress(res.Stats.FramesTotal, total)
		}
	}

	if err := prefetch.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		res.Stats.Cancelled = true
	}

	// Tracks still alive here were cut off by the end of the stream, not
	// by leaving the scene, so their exit frame is the last one processed.
	for _, trk := range tracker.FlushAll() {
		res.Records = append(res.Records, d.finalizeRecord(trk, states, lastIndex))
	}
	res.Stats.TracksFinalized = len(res.Records)
	sort.Slice(res.Records, func(i, j int) bool {
		return res.Records[i].TrackID < res.Records[j].TrackID
	})

	overspeed := 0
	for _, rec := range res.Records {
		if rec.Overspeed {
			overspeed++
		}
	}
	d.log.Info("run finished",
		"run", res.RunID,
		"frames", res.Stats.FramesTotal,
		"vehicles", len(res.Records),
		"overspeed", overspeed,
		"cancelled", res.Stats.Cancelled,
		"elapsed", time.Since(start))
	return res, nil
}

// samplePlate asks the recognizer for a plate read when the track is due
// for one. Slow vehicles stay in view longer and get the denser stride,
// so more ballots accumulate while the plate is large in the frame.
func (d *Driver) samplePlate(ctx context.Context, res *Result, frame video.Frame, trk *track.Track, st *vehicleState) {
	if d.recognizer == nil {
		return
	}
	stride := d.cfg.PlateSampleStride
	if st.series.Current() < d.cfg.SlowSpeedKmh {
		stride = d.cfg.PlateSampleStrideSlow
	}
	if st.lastPlateFrame >= 0 && frame.Index-st.lastPlateFrame < stride {
		return
	}
	st.lastPlateFrame = frame.Index

	read, err := d.recognizer.ReadPlate(ctx, frame, trk.Box())
	if err != nil {
		res.Stats.RecognizerFailures++
		d.log.Warn("plate recognizer failed", "frame", frame.Index, "track", trk.ID(), "error", err)
		return
	}
	if read.Text == "" {
		return
	}
	res.Stats.PlateReads++
	st.ballot.Add(frame.Index, read.Text, read.Confidence)
}

// finalizeRecord turns a finalized track into its vehicle record and
// releases the measurement state. exitFrame is the track's last seen
// frame for tracks that left the scene, or the last processed frame for
// tracks flushed at end of stream.
func (d *Driver) finalizeRecord(trk *track.Track, states map[int64]*vehicleState, exitFrame int) VehicleRecord {
	st := states[trk.ID()]
	delete(states, trk.ID())

	final := st.series.Final()
	text, conf, _ := st.ballot.Resolve()
	return VehicleRecord{
		TrackID:         trk.ID(),
		Class:           trk.Class(),
		SpeedKmh:        final,
		Overspeed:       final > d.cfg.SpeedLimitKmh,
		Plate:           text,
		PlateConfidence: conf,
		EntryFrame:      trk.FirstFrame(),
		ExitFrame:       exitFrame,
		Observations:    len(trk.Positions()),
	}
}
