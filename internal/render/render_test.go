package render

import (
	"image"
	"image/color"
	"testing"

	"github.com/roadscan/speedcam/internal/detect"
	"github.com/roadscan/speedcam/internal/geom"
	"github.com/roadscan/speedcam/internal/pipeline"
	"github.com/roadscan/speedcam/internal/video"
)

func flatFrame(index, w, h int) video.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 12, G: 12, B: 12, A: 255})
		}
	}
	return video.Frame{Index: index, Image: img}
}

func channels(img image.Image, x, y int) (uint32, uint32, uint32) {
	r, g, b, _ := img.At(x, y).RGBA()
	return r, g, b
}

func TestAnnotateDrawsBoxes(t *testing.T) {
	frame := flatFrame(0, 160, 120)
	ann := pipeline.FrameAnnotations{
		FrameIndex: 0,
		Boxes: []pipeline.BoxAnnotation{
			{TrackID: 1, Class: detect.ClassCar, Box: geom.NewRect(20, 40, 60, 30), SpeedKmh: 42, InZone: true},
		},
	}

	out, err := New(Options{}).Annotate(frame, ann)
	if err != nil {
		t.Fatalf("annotate failed: %v", err)
	}
	if out.Bounds() != frame.Image.Bounds() {
		t.Errorf("annotated bounds changed: %v, expected: %v", out.Bounds(), frame.Image.Bounds())
	}

	// The stroke on the box's top edge has to differ from the flat
	// background, and a compliant vehicle is drawn mostly green.
	r, g, b := channels(out, 50, 40)
	br, bg, bb := channels(frame.Image, 50, 40)
	if r == br && g == bg && b == bb {
		t.Error("expected the box stroke to change pixels on the top edge")
	}
	if g <= r || g <= b {
		t.Errorf("expected a green stroke, got r=%d g=%d b=%d", r, g, b)
	}
}

func TestAnnotateOverspeedIsRed(t *testing.T) {
	frame := flatFrame(0, 160, 120)
	ann := pipeline.FrameAnnotations{
		Boxes: []pipeline.BoxAnnotation{
			{TrackID: 2, Class: detect.ClassTruck, Box: geom.NewRect(30, 50, 50, 30), SpeedKmh: 97, Overspeed: true, InZone: true},
		},
	}

	out, err := New(Options{}).Annotate(frame, ann)
	if err != nil {
		t.Fatalf("annotate failed: %v", err)
	}
	r, g, b := channels(out, 55, 50)
	if r <= g || r <= b {
		t.Errorf("expected a red stroke, got r=%d g=%d b=%d", r, g, b)
	}
}

func TestAnnotateDoesNotMutateInput(t *testing.T) {
	frame := flatFrame(0, 80, 60)
	ann := pipeline.FrameAnnotations{
		Boxes: []pipeline.BoxAnnotation{
			{TrackID: 1, Class: detect.ClassCar, Box: geom.NewRect(10, 10, 30, 20)},
		},
	}

	if _, err := New(Options{}).Annotate(frame, ann); err != nil {
		t.Fatalf("annotate failed: %v", err)
	}
	r, g, b := channels(frame.Image, 25, 10)
	if r != 12<<8|12 || g != 12<<8|12 || b != 12<<8|12 {
		t.Errorf("input frame was mutated: r=%d g=%d b=%d", r, g, b)
	}
}

func TestAnnotateNoImage(t *testing.T) {
	_, err := New(Options{}).Annotate(video.Frame{Index: 3}, pipeline.FrameAnnotations{})
	if err == nil {
		t.Error("expected an error for a frame without an image")
	}
}

type captureSink struct {
	indices []int
}

func (s *captureSink) Write(f video.Frame) error {
	s.indices = append(s.indices, f.Index)
	return nil
}

func (s *captureSink) Close() error { return nil }

func TestObserverSkipsImagelessFrames(t *testing.T) {
	sink := &captureSink{}
	obs := Observer(New(Options{}), sink)

	if err := obs(flatFrame(0, 40, 30), pipeline.FrameAnnotations{FrameIndex: 0}); err != nil {
		t.Fatalf("observer failed: %v", err)
	}
	if err := obs(video.Frame{Index: 1}, pipeline.FrameAnnotations{FrameIndex: 1}); err != nil {
		t.Fatalf("observer failed on imageless frame: %v", err)
	}
	if err := obs(flatFrame(2, 40, 30), pipeline.FrameAnnotations{FrameIndex: 2}); err != nil {
		t.Fatalf("observer failed: %v", err)
	}

	if len(sink.indices) != 2 || sink.indices[0] != 0 || sink.indices[1] != 2 {
		t.Errorf("incorrect sink writes: %v, expected: [0 2]", sink.indices)
	}
}
