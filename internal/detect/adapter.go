package detect

import (
	"context"

	"github.com/pkg/errors"

	"github.com/roadscan/speedcam/internal/video"
)

// Adapter converts raw detector output into tracker input: COCO indices
// become typed classes, non-vehicle and low-confidence boxes are dropped.
// Input order is preserved so a deterministic detector yields a
// deterministic detection stream.
type Adapter struct {
	detector      Detector
	minConfidence float64
	allowed       map[Class]struct{}
}

// NewAdapter wraps detector. classes limits the output to the given set;
// an empty set allows every supported class.
func NewAdapter(detector Detector, minConfidence float64, classes []Class) *Adapter {
	if len(classes) == 0 {
		classes = AllClasses()
	}
	allowed := make(map[Class]struct{}, len(classes))
	for _, c := range classes {
		allowed[c] = struct{}{}
	}
	return &Adapter{
		detector:      detector,
		minConfidence: minConfidence,
		allowed:       allowed,
	}
}

// Detect runs the wrapped detector and filters its output. Detector errors
// are wrapped as ErrDetectorFailure so callers can degrade instead of
// aborting.
func (a *Adapter) Detect(ctx context.Context, frame video.Frame) ([]Detection, error) {
	raw, err := a.detector.Detect(ctx, frame)
	if err != nil {
		return nil, errors.Wrapf(ErrDetectorFailure, "frame %d: %v", frame.Index, err)
	}
	detections := make([]Detection, 0, len(raw))
	for _, r := range raw {
		if r.Confidence < a.minConfidence {
			continue
		}
		class, ok := ClassFromCOCO(r.ClassID)
		if !ok {
			continue
		}
		if _, ok := a.allowed[class]; !ok {
			continue
		}
		detections = append(detections, Detection{
			Box:        r.Box,
			Class:      class,
			Confidence: r.Confidence,
		})
	}
	return detections, nil
}
