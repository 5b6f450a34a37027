// Package render draws tracking annotations onto frames: bounding boxes,
// identity and speed labels, resolved plates and the measurement zone
// band. It never mutates the input frame.
package render

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"

	"github.com/roadscan/speedcam/internal/pipeline"
	"github.com/roadscan/speedcam/internal/video"
)

// Options tunes the overlay.
type Options struct {
	// ZoneTop and ZoneBottom are fractions of the frame height. When both
	// are zero the zone band is not drawn.
	ZoneTop    float64
	ZoneBottom float64
	// LineWidth defaults to 2.
	LineWidth float64
}

// Renderer draws annotations. It is stateless and safe to reuse across
// frames.
type Renderer struct {
	opts Options
}

// New creates a Renderer.
func New(opts Options) *Renderer {
	if opts.LineWidth <= 0 {
		opts.LineWidth = 2
	}
	return &Renderer{opts: opts}
}

// Annotate returns a copy of the frame with the overlay drawn on top.
func (r *Renderer) Annotate(frame video.Frame, ann pipeline.FrameAnnotations) (image.Image, error) {
	if frame.Image == nil {
		return nil, errors.Errorf("frame %d has no image to draw on", frame.Index)
	}
	dc := gg.NewContextForImage(frame.Image)
	w := float64(dc.Width())
	h := float64(dc.Height())

	if r.opts.ZoneBottom > r.opts.ZoneTop {
		dc.SetRGBA(0.25, 0.55, 1.0, 0.9)
		dc.SetLineWidth(1)
		dc.SetDash(6, 4)
		dc.DrawLine(0, h*r.opts.ZoneTop, w, h*r.opts.ZoneTop)
		dc.DrawLine(0, h*r.opts.ZoneBottom, w, h*r.opts.ZoneBottom)
		dc.Stroke()
		dc.SetDash()
	}

	for _, box := range ann.Boxes {
		if box.Overspeed {
			dc.SetRGB(0.9, 0.15, 0.1)
		} else {
			dc.SetRGB(0.1, 0.8, 0.2)
		}
		dc.SetLineWidth(r.opts.LineWidth)
		dc.DrawRectangle(box.Box.X, box.Box.Y, box.Box.Width, box.Box.Height)
		dc.Stroke()

		label := fmt.Sprintf("%d %s", box.TrackID, box.Class)
		if box.InZone && box.SpeedKmh > 0 {
			label = fmt.Sprintf("%s %.0f km/h", label, box.SpeedKmh)
		}
		r.drawLabel(dc, label, box.Box.X, box.Box.Y-4)

		if box.Plate != "" {
			r.drawLabel(dc, box.Plate, box.Box.X, box.Box.Y+box.Box.Height+12)
		}
	}
	return dc.Image(), nil
}

// drawLabel renders text over a filled backdrop so it stays readable on
// busy footage. x, y is the text baseline.
func (r *Renderer) drawLabel(dc *gg.Context, text string, x, y float64) {
	tw, th := dc.MeasureString(text)
	dc.SetRGBA(0, 0, 0, 0.6)
	dc.DrawRectangle(x-1, y-th, tw+2, th+3)
	dc.Fill()
	dc.SetRGB(1, 1, 1)
	dc.DrawString(text, x, y)
}

// Observer adapts a Renderer and a sink into a pipeline frame observer.
// Frames without an image, such as corrupt ones, are skipped.
func Observer(r *Renderer, sink video.FrameSink) pipeline.FrameObserver {
	return func(frame video.Frame, ann pipeline.FrameAnnotations) error {
		if frame.Image == nil {
			return nil
		}
		img, err := r.Annotate(frame, ann)
		if err != nil {
			return err
		}
		return sink.Write(video.Frame{Index: frame.Index, Image: img})
	}
}
