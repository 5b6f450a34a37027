package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/roadscan/speedcam/internal/geom"
	"github.com/roadscan/speedcam/internal/video"
)

// stubDetector returns a scripted detection set per frame index.
type stubDetector struct {
	byFrame map[int][]RawDetection
	err     error
}

func (d *stubDetector) Detect(_ context.Context, frame video.Frame) ([]RawDetection, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.byFrame[frame.Index], nil
}

func TestAdapterFiltering(t *testing.T) {
	det := &stubDetector{byFrame: map[int][]RawDetection{
		0: {
			{Box: geom.NewRect(0, 0, 10, 10), ClassID: 2, Confidence: 0.9},  // car, kept
			{Box: geom.NewRect(20, 0, 10, 10), ClassID: 2, Confidence: 0.3}, // below threshold
			{Box: geom.NewRect(40, 0, 10, 10), ClassID: 0, Confidence: 0.9}, // person, dropped
			{Box: geom.NewRect(60, 0, 10, 10), ClassID: 7, Confidence: 0.8}, // truck, kept
		},
	}}
	adapter := NewAdapter(det, 0.5, nil)

	got, err := adapter.Detect(context.Background(), video.Frame{Index: 0})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("incorrect number of detections: %d, expected: 2", len(got))
	}
	if got[0].Class != ClassCar || got[1].Class != ClassTruck {
		t.Errorf("incorrect classes: %v, %v", got[0].Class, got[1].Class)
	}
	// Input order is preserved
	if got[0].Box.X != 0 || got[1].Box.X != 60 {
		t.Errorf("detection order not preserved: %v", got)
	}
}

func TestAdapterClassAllowList(t *testing.T) {
	det := &stubDetector{byFrame: map[int][]RawDetection{
		0: {
			{Box: geom.NewRect(0, 0, 10, 10), ClassID: 2, Confidence: 0.9},
			{Box: geom.NewRect(20, 0, 10, 10), ClassID: 5, Confidence: 0.9},
		},
	}}
	adapter := NewAdapter(det, 0.5, []Class{ClassBus})

	got, err := adapter.Detect(context.Background(), video.Frame{Index: 0})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(got) != 1 || got[0].Class != ClassBus {
		t.Errorf("expected only the bus detection, got %v", got)
	}
}

func TestAdapterWrapsDetectorFailure(t *testing.T) {
	det := &stubDetector{err: errors.New("model crashed")}
	adapter := NewAdapter(det, 0.5, nil)

	_, err := adapter.Detect(context.Background(), video.Frame{Index: 3})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrDetectorFailure) {
		t.Errorf("expected ErrDetectorFailure, got %v", err)
	}
}
