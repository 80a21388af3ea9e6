// Package face estimates where the face is on an ID photo. Estimation never
// fails: a configured detector is tried first, then a skin-tone heuristic,
// then a fixed centred box.
package face

import (
	"context"
	"errors"
	"fmt"

	"github.com/MeKo-Tech/idcrop/internal/geometry"
	"github.com/MeKo-Tech/idcrop/internal/imageio"
)

// ErrDetectionUnavailable marks a detector that errored, timed out or found
// nothing usable. The estimator logs it and falls back.
var ErrDetectionUnavailable = errors.New("face detection unavailable")

// Source records which tier produced a Region.
type Source int

const (
	SourceDefault Source = iota
	SourceHeuristic
	SourceDetector
)

// Sources lists every Source value.
var Sources = []Source{SourceDetector, SourceHeuristic, SourceDefault}

func (s Source) String() string {
	switch s {
	case SourceDetector:
		return "detector"
	case SourceHeuristic:
		return "heuristic"
	case SourceDefault:
		return "default"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(b []byte) error {
	switch string(b) {
	case "detector":
		*s = SourceDetector
	case "heuristic":
		*s = SourceHeuristic
	case "default":
		*s = SourceDefault
	default:
		return fmt.Errorf("unknown face region source %q", string(b))
	}
	return nil
}

// Region is a face bounding box in source image coordinates.
type Region struct {
	Rect   geometry.Rect `json:"rect"   yaml:"rect"`
	Source Source        `json:"source" yaml:"source"`
}

// Detector is a primary face locator. Implementations return candidate
// boxes in source pixel coordinates, best candidate first.
type Detector interface {
	Detect(ctx context.Context, src *imageio.SourceImage) ([]geometry.Rect, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, src *imageio.SourceImage) ([]geometry.Rect, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, src *imageio.SourceImage) ([]geometry.Rect, error) {
	return f(ctx, src)
}
