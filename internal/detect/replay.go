package detect

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/roadscan/speedcam/internal/geom"
	"github.com/roadscan/speedcam/internal/video"
)

// Detection logs are JSON Lines, one record per frame. Frames without
// detections or plate reads may be omitted entirely.
type frameRecord struct {
	Frame      int           `json:"frame"`
	Detections []boxRecord   `json:"detections,omitempty"`
	Plates     []plateRecord `json:"plates,omitempty"`
}

type boxRecord struct {
	// Box is x, y, width, height in pixels.
	Box        [4]float64 `json:"box"`
	ClassID    int        `json:"class_id"`
	Confidence float64    `json:"confidence"`
}

type plateRecord struct {
	// Region is the queried vehicle box snapped to the pixel grid,
	// as x0, y0, x1, y1. It keys the read on replay.
	Region     [4]int  `json:"region"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type plateKey struct {
	frame          int
	x0, y0, x1, y1 int
}

func regionKey(frame int, region geom.Rect) plateKey {
	r := region.ToImageRect()
	return plateKey{frame: frame, x0: r.Min.X, y0: r.Min.Y, x1: r.Max.X, y1: r.Max.Y}
}

// ReplaySource serves detections and plate reads from a previously
// recorded log, which makes a whole run reproducible without the models.
// It implements both Detector and Recognizer; frames absent from the log
// yield empty results.
type ReplaySource struct {
	detections map[int][]RawDetection
	plates     map[plateKey]PlateRead
}

// OpenReplay loads a JSONL detection log.
func OpenReplay(path string) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "can't open detection log")
	}
	defer f.Close()
	return LoadReplay(f)
}

// LoadReplay parses a JSONL detection log from r.
func LoadReplay(r io.Reader) (*ReplaySource, error) {
	src := &ReplaySource{
		detections: make(map[int][]RawDetection),
		plates:     make(map[plateKey]PlateRead),
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var rec frameRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, errors.Wrapf(err, "detection log line %d", line)
		}
		dets := make([]RawDetection, 0, len(rec.Detections))
		for _, b := range rec.Detections {
			dets = append(dets, RawDetection{
				Box:        geom.NewRect(b.Box[0], b.Box[1], b.Box[2], b.Box[3]),
				ClassID:    b.ClassID,
				Confidence: b.Confidence,
			})
		}
		src.detections[rec.Frame] = dets
		for _, p := range rec.Plates {
			key := plateKey{frame: rec.Frame, x0: p.Region[0], y0: p.Region[1], x1: p.Region[2], y1: p.Region[3]}
			src.plates[key] = PlateRead{Text: p.Text, Confidence: p.Confidence}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "can't read detection log")
	}
	return src, nil
}

func (s *ReplaySource) Detect(_ context.Context, frame video.Frame) ([]RawDetection, error) {
	return s.detections[frame.Index], nil
}

func (s *ReplaySource) ReadPlate(_ context.Context, frame video.Frame, region geom.Rect) (PlateRead, error) {
	return s.plates[regionKey(frame.Index, region)], nil
}

// Recorder tees detector and recognizer output into a JSONL log while
// passing results through unchanged. Record once with the real models,
// then replay forever.
//
// Records are buffered per frame and flushed when the next frame starts,
// so Close must be called to emit the last frame.
type Recorder struct {
	detector   Detector
	recognizer Recognizer
	w          *bufio.Writer
	pending    *frameRecord
}

// NewRecorder wraps detector and recognizer. recognizer may be nil when
// plate recognition is disabled.
func NewRecorder(detector Detector, recognizer Recognizer, w io.Writer) *Recorder {
	return &Recorder{
		detector:   detector,
		recognizer: recognizer,
		w:          bufio.NewWriter(w),
	}
}

func (r *Recorder) Detect(ctx context.Context, frame video.Frame) ([]RawDetection, error) {
	raw, err := r.detector.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	if err := r.startFrame(frame.Index); err != nil {
		return nil, err
	}
	for _, d := range raw {
		r.pending.Detections = append(r.pending.Detections, boxRecord{
			Box:        [4]float64{d.Box.X, d.Box.Y, d.Box.Width, d.Box.Height},
			ClassID:    d.ClassID,
			Confidence: d.Confidence,
		})
	}
	return raw, nil
}

func (r *Recorder) ReadPlate(ctx context.Context, frame video.Frame, region geom.Rect) (PlateRead, error) {
	if r.recognizer == nil {
		return PlateRead{}, nil
	}
	read, err := r.recognizer.ReadPlate(ctx, frame, region)
	if err != nil {
		return PlateRead{}, err
	}
	if read.Text == "" {
		return read, nil
	}
	if err := r.startFrame(frame.Index); err != nil {
		return PlateRead{}, err
	}
	key := regionKey(frame.Index, region)
	r.pending.Plates = append(r.pending.Plates, plateRecord{
		Region:     [4]int{key.x0, key.y0, key.x1, key.y1},
		Text:       read.Text,
		Confidence: read.Confidence,
	})
	return read, nil
}

// startFrame flushes the pending record when the frame index moves on.
func (r *Recorder) startFrame(index int) error {
	if r.pending != nil && r.pending.Frame == index {
		return nil
	}
	if err := r.flush(); err != nil {
		return err
	}
	r.pending = &frameRecord{Frame: index}
	return nil
}

func (r *Recorder) flush() error {
	if r.pending == nil {
		return nil
	}
	rec := r.pending
	r.pending = nil
	if len(rec.Detections) == 0 && len(rec.Plates) == 0 {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "can't encode detection log record")
	}
	if _, err := r.w.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "can't write detection log")
	}
	return nil
}

// Close flushes the final frame record and the underlying buffer.
func (r *Recorder) Close() error {
	if err := r.flush(); err != nil {
		return err
	}
	return errors.Wrap(r.w.Flush(), "can't flush detection log")
}
