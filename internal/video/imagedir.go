package video

import (
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ImageDirSource reads a directory of still images as a frame sequence.
// Files are ordered lexically by name, so zero-padded frame numbers decode
// in the right order. Only JPEG and PNG files are considered.
type ImageDirSource struct {
	dir    string
	files  []string
	fps    float64
	bounds image.Rectangle
	next   int
	first  image.Image
}

// NewImageDirSource opens dir and probes the first image for frame bounds.
func NewImageDirSource(dir string, fps float64) (*ImageDirSource, error) {
	if fps <= 0 {
		return nil, errors.Errorf("invalid frame rate %v", fps)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "can't read frames directory")
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isImageFile(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no frames found in %s", dir)
	}
	sort.Strings(files)

	src := &ImageDirSource{
		dir:   dir,
		files: files,
		fps:   fps,
	}
	// Probe the first decodable frame for bounds.
	for _, f := range files {
		img, err := decodeImage(f)
		if err != nil {
			continue
		}
		src.bounds = img.Bounds()
		if f == files[0] {
			src.first = img
		}
		break
	}
	if src.bounds.Empty() {
		return nil, errors.Errorf("no decodable frames in %s", dir)
	}
	return src, nil
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func (s *ImageDirSource) Next() (Frame, error) {
	if s.next >= len(s.files) {
		return Frame{}, io.EOF
	}
	idx := s.next
	path := s.files[idx]
	s.next++

	if idx == 0 && s.first != nil {
		img := s.first
		s.first = nil
		return Frame{Index: idx, Image: img}, nil
	}
	img, err := decodeImage(path)
	if err != nil {
		if os.IsNotExist(err) || errors.Is(err, fs.ErrPermission) {
			return Frame{}, errors.Wrapf(err, "can't open frame %s", path)
		}
		// Undecodable content still consumes a frame slot.
		return Frame{Index: idx}, ErrCorruptFrame
	}
	return Frame{Index: idx, Image: img}, nil
}

func (s *ImageDirSource) FPS() float64 {
	return s.fps
}

func (s *ImageDirSource) Bounds() image.Rectangle {
	return s.bounds
}

func (s *ImageDirSource) Frames() int {
	return len(s.files)
}

func (s *ImageDirSource) Close() error {
	return nil
}

// ImageDirSink writes frames as JPEG files into a directory.
type ImageDirSink struct {
	dir     string
	quality int
}

// NewImageDirSink creates dir if needed. Quality follows jpeg.Options,
// values outside [1, 100] fall back to 90.
func NewImageDirSink(dir string, quality int) (*ImageDirSink, error) {
	if quality < 1 || quality > 100 {
		quality = 90
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "can't create output directory")
	}
	return &ImageDirSink{dir: dir, quality: quality}, nil
}

func (s *ImageDirSink) Write(frame Frame) error {
	if frame.Image == nil {
		return nil
	}
	path := filepath.Join(s.dir, fmt.Sprintf("frame_%06d.jpg", frame.Index))
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "can't create %s", path)
	}
	defer f.Close()
	if err := jpeg.Encode(f, frame.Image, &jpeg.Options{Quality: s.quality}); err != nil {
		return errors.Wrapf(err, "can't encode %s", path)
	}
	return nil
}

func (s *ImageDirSink) Close() error {
	return nil
}
