// Package detect defines the detector-facing types: vehicle classes, raw
// and filtered detections, and the collaborator interfaces for object
// detection and plate recognition. The actual models live behind those
// interfaces; this package only shapes their output for the tracker.
package detect

import (
	"context"

	"github.com/pkg/errors"

	"github.com/roadscan/speedcam/internal/geom"
	"github.com/roadscan/speedcam/internal/video"
)

// Failure kinds the pipeline degrades on instead of aborting.
var (
	ErrDetectorFailure   = errors.New("detector failure")
	ErrRecognizerFailure = errors.New("plate recognizer failure")
)

// Class is the closed set of vehicle categories the pipeline tracks.
type Class uint8

const (
	ClassUnknown Class = iota
	ClassCar
	ClassMotorcycle
	ClassBus
	ClassTruck
)

// COCO class indices for the supported vehicle categories.
const (
	cocoCar        = 2
	cocoMotorcycle = 3
	cocoBus        = 5
	cocoTruck      = 7
)

func (c Class) String() string {
	switch c {
	case ClassCar:
		return "car"
	case ClassMotorcycle:
		return "motorcycle"
	case ClassBus:
		return "bus"
	case ClassTruck:
		return "truck"
	}
	return "unknown"
}

// ParseClass maps a class name to its Class. Parsing is strict: anything
// outside the supported set is an error, not ClassUnknown.
func ParseClass(name string) (Class, error) {
	switch name {
	case "car":
		return ClassCar, nil
	case "motorcycle":
		return ClassMotorcycle, nil
	case "bus":
		return ClassBus, nil
	case "truck":
		return ClassTruck, nil
	}
	return ClassUnknown, errors.Errorf("unknown vehicle class %q", name)
}

// ParseClasses maps a list of names. An empty list means all supported
// classes.
func ParseClasses(names []string) ([]Class, error) {
	if len(names) == 0 {
		return AllClasses(), nil
	}
	classes := make([]Class, 0, len(names))
	for _, name := range names {
		c, err := ParseClass(name)
		if err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, nil
}

// AllClasses returns every supported vehicle class.
func AllClasses() []Class {
	return []Class{ClassCar, ClassMotorcycle, ClassBus, ClassTruck}
}

// ClassFromCOCO maps a COCO class index to the internal enum. The second
// return is false for non-vehicle indices.
func ClassFromCOCO(id int) (Class, bool) {
	switch id {
	case cocoCar:
		return ClassCar, true
	case cocoMotorcycle:
		return ClassMotorcycle, true
	case cocoBus:
		return ClassBus, true
	case cocoTruck:
		return ClassTruck, true
	}
	return ClassUnknown, false
}

// COCOID maps the internal enum back to the COCO index. Returns -1 for
// ClassUnknown.
func (c Class) COCOID() int {
	switch c {
	case ClassCar:
		return cocoCar
	case ClassMotorcycle:
		return cocoMotorcycle
	case ClassBus:
		return cocoBus
	case ClassTruck:
		return cocoTruck
	}
	return -1
}

// RawDetection is one box as emitted by an external detector: the class is
// still a model-specific index and nothing has been filtered yet.
type RawDetection struct {
	Box        geom.Rect
	ClassID    int
	Confidence float64
}

// Detection is a filtered, typed detection ready for the tracker.
type Detection struct {
	Box        geom.Rect
	Class      Class
	Confidence float64
}

// Detector produces raw detections for a frame.
type Detector interface {
	Detect(ctx context.Context, frame video.Frame) ([]RawDetection, error)
}

// PlateRead is a single OCR observation. The zero value means no plate
// was read.
type PlateRead struct {
	Text       string
	Confidence float64
}

// Recognizer reads a license plate from a vehicle region of a frame.
type Recognizer interface {
	ReadPlate(ctx context.Context, frame video.Frame, region geom.Rect) (PlateRead, error)
}
