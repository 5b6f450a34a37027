// Package video abstracts frame input and output. The pipeline consumes
// decoded frames one by one and never seeks, so a source is just a forward
// iterator with a known frame rate.
package video

import (
	"image"

	"github.com/pkg/errors"
)

// ErrCorruptFrame marks a frame that could not be decoded. The frame index
// still advances; callers are expected to treat the frame as empty.
var ErrCorruptFrame = errors.New("corrupt frame")

// Frame is a single decoded frame. Image is nil when the frame is corrupt.
type Frame struct {
	Index int
	Image image.Image
}

// FrameSource yields frames in presentation order.
type FrameSource interface {
	// Next returns the next frame. It returns io.EOF after the last frame
	// and ErrCorruptFrame (with a valid Index) for undecodable frames.
	Next() (Frame, error)
	// FPS returns the source frame rate.
	FPS() float64
	// Bounds returns the pixel bounds of the frames.
	Bounds() image.Rectangle
	// Frames returns the total frame count, or 0 when unknown.
	Frames() int
	Close() error
}

// FrameSink consumes frames, typically annotated copies of the input.
type FrameSink interface {
	Write(Frame) error
	Close() error
}
