package detect

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/roadscan/speedcam/internal/geom"
	"github.com/roadscan/speedcam/internal/video"
)

type stubRecognizer struct {
	read PlateRead
}

func (r *stubRecognizer) ReadPlate(_ context.Context, _ video.Frame, _ geom.Rect) (PlateRead, error) {
	return r.read, nil
}

func TestRecordThenReplay(t *testing.T) {
	ctx := context.Background()
	det := &stubDetector{byFrame: map[int][]RawDetection{
		0: {{Box: geom.NewRect(10, 20, 80, 60), ClassID: 2, Confidence: 0.91}},
		2: {
			{Box: geom.NewRect(12, 22, 80, 60), ClassID: 2, Confidence: 0.88},
			{Box: geom.NewRect(200, 40, 90, 70), ClassID: 7, Confidence: 0.76},
		},
	}}
	rec := &stubRecognizer{read: PlateRead{Text: "AB123CD", Confidence: 0.7}}

	var buf bytes.Buffer
	recorder := NewRecorder(det, rec, &buf)

	for frame := 0; frame < 3; frame++ {
		if _, err := recorder.Detect(ctx, video.Frame{Index: frame}); err != nil {
			t.Fatalf("frame %d failed: %v", frame, err)
		}
		if frame == 2 {
			region := geom.NewRect(12, 22, 80, 60)
			if _, err := recorder.ReadPlate(ctx, video.Frame{Index: frame}, region); err != nil {
				t.Fatalf("plate read failed: %v", err)
			}
		}
	}
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Frame 1 had nothing, so the log holds two lines
	lines := strings.Count(strings.TrimSpace(buf.String()), "\n") + 1
	if lines != 2 {
		t.Errorf("incorrect number of log lines: %d, expected: 2\n%s", lines, buf.String())
	}

	replay, err := LoadReplay(&buf)
	if err != nil {
		t.Fatalf("LoadReplay failed: %v", err)
	}

	dets, err := replay.Detect(ctx, video.Frame{Index: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(dets) != 2 {
		t.Fatalf("incorrect number of detections: %d, expected: 2", len(dets))
	}
	if dets[1].ClassID != 7 || dets[1].Confidence != 0.76 {
		t.Errorf("incorrect detection round trip: %+v", dets[1])
	}

	// Absent frames replay as empty, not as errors
	dets, err = replay.Detect(ctx, video.Frame{Index: 1})
	if err != nil || len(dets) != 0 {
		t.Errorf("expected empty detections for absent frame, got %v, %v", dets, err)
	}

	// The plate read comes back for the same frame and region
	read, err := replay.ReadPlate(ctx, video.Frame{Index: 2}, geom.NewRect(12, 22, 80, 60))
	if err != nil {
		t.Fatal(err)
	}
	if read.Text != "AB123CD" || read.Confidence != 0.7 {
		t.Errorf("incorrect plate round trip: %+v", read)
	}

	// A different region yields nothing
	read, err = replay.ReadPlate(ctx, video.Frame{Index: 2}, geom.NewRect(200, 40, 90, 70))
	if err != nil || read.Text != "" {
		t.Errorf("expected empty read for unqueried region, got %+v, %v", read, err)
	}
}

func TestLoadReplayRejectsGarbage(t *testing.T) {
	if _, err := LoadReplay(strings.NewReader("{\"frame\":0}\nnot json\n")); err == nil {
		t.Error("expected error for malformed log line")
	}
}
