package detect

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/roadscan/speedcam/internal/video"
)

// Prefetched couples a frame with its filtered detections.
type Prefetched struct {
	Frame      video.Frame
	Detections []Detection
	// Corrupt marks an undecodable frame; Detections is empty.
	Corrupt bool
	// DetectErr is a detector failure for this frame. The frame itself is
	// valid and processing continues.
	DetectErr error
}

// Prefetcher reads frames and runs detection ahead of the consumer.
// Results are delivered strictly in frame order no matter how long an
// individual detector call takes, so the output stream stays
// deterministic.
type Prefetcher struct {
	slots chan chan Prefetched
	g     *errgroup.Group
}

// NewPrefetcher starts reading from src immediately. depth bounds how many
// frames may be in flight beyond the one the consumer holds.
func NewPrefetcher(ctx context.Context, src video.FrameSource, adapter *Adapter, depth int) *Prefetcher {
	if depth < 1 {
		depth = 1
	}
	p := &Prefetcher{
		slots: make(chan chan Prefetched, depth),
	}
	g, gctx := errgroup.WithContext(ctx)
	p.g = g

	// The reader owns the source: frames are pulled sequentially and each
	// gets a single-use slot queued in arrival order. Detection runs in a
	// worker per frame and deposits into the frame's slot, so slow frames
	// never reorder the stream.
	g.Go(func() error {
		defer close(p.slots)
		for {
			if gctx.Err() != nil {
				return nil
			}
			frame, err := src.Next()
			if err == io.EOF {
				return nil
			}
			slot := make(chan Prefetched, 1)
			switch {
			case errors.Is(err, video.ErrCorruptFrame):
				slot <- Prefetched{Frame: frame, Corrupt: true}
			case err != nil:
				return errors.Wrap(err, "frame source failed")
			default:
				f := frame
				g.Go(func() error {
					dets, derr := adapter.Detect(gctx, f)
					slot <- Prefetched{Frame: f, Detections: dets, DetectErr: derr}
					return nil
				})
			}
			select {
			case p.slots <- slot:
			case <-gctx.Done():
				return nil
			}
		}
	})
	return p
}

// Next blocks for the next frame in order. ok is false once the stream is
// exhausted, cancelled or failed; call Wait to distinguish.
func (p *Prefetcher) Next() (Prefetched, bool) {
	slot, ok := <-p.slots
	if !ok {
		return Prefetched{}, false
	}
	return <-slot, true
}

// Wait blocks until all workers finished and returns the first fatal
// source error, if any. Call it after Next reported ok=false.
func (p *Prefetcher) Wait() error {
	return p.g.Wait()
}
