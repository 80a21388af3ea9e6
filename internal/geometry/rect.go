// Package geometry holds the integer rectangle math used to turn a face
// region into a crop rectangle. Everything here is pure: no I/O, no logging.
package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrDegenerate is returned when a rectangle has no area after clamping.
var ErrDegenerate = errors.New("degenerate rectangle")

// Error records which operation produced a geometry failure.
type Error struct {
	Operation string
	Rect      Rect
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("geometry error in %s for %v: %v", e.Operation, e.Rect, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Rect is an axis-aligned pixel rectangle in source image coordinates.
type Rect struct {
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// FromImageRect converts an image.Rectangle.
func FromImageRect(r image.Rectangle) Rect {
	return Rect{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// ImageRect converts r to an image.Rectangle.
func (r Rect) ImageRect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Within reports whether r is non-empty and fully inside [0,w) x [0,h).
func (r Rect) Within(w, h int) bool {
	return !r.Empty() && r.X >= 0 && r.Y >= 0 && r.X+r.Width <= w && r.Y+r.Height <= h
}

func (r Rect) String() string {
	return fmt.Sprintf("{x:%d y:%d w:%d h:%d}", r.X, r.Y, r.Width, r.Height)
}

// ClampRect intersects r with the bounds [0,boundsWidth) x [0,boundsHeight).
func ClampRect(r Rect, boundsWidth, boundsHeight int) (Rect, error) {
	// image.Rect would canonicalise a negative size into a valid box.
	if r.Empty() {
		return Rect{}, &Error{Operation: "clamp", Rect: r, Err: ErrDegenerate}
	}
	bounds := image.Rect(0, 0, boundsWidth, boundsHeight)
	clipped := r.ImageRect().Intersect(bounds)
	if clipped.Empty() {
		return Rect{}, &Error{Operation: "clamp", Rect: r, Err: ErrDegenerate}
	}
	return FromImageRect(clipped), nil
}

// PadRect grows every side of r by paddingFraction of the matching dimension
// (left/right by width, top/bottom by height) and clamps the result.
func PadRect(r Rect, paddingFraction float64, boundsWidth, boundsHeight int) (Rect, error) {
	if paddingFraction < 0 {
		return Rect{}, &Error{Operation: "pad", Rect: r, Err: fmt.Errorf("negative padding fraction %.2f", paddingFraction)}
	}
	padX := int(math.Round(paddingFraction * float64(r.Width)))
	padY := int(math.Round(paddingFraction * float64(r.Height)))
	padded := Rect{
		X:      r.X - padX,
		Y:      r.Y - padY,
		Width:  r.Width + 2*padX,
		Height: r.Height + 2*padY,
	}
	return ClampRect(padded, boundsWidth, boundsHeight)
}

// MinimumSide returns the smallest allowed crop side for the given bounds.
func MinimumSide(boundsWidth, boundsHeight int, minFraction float64) int {
	shorter := min(boundsWidth, boundsHeight)
	if shorter <= 0 || minFraction <= 0 {
		return 0
	}
	// The epsilon keeps 0.3*1000 from rounding up to 301.
	side := int(math.Ceil(minFraction*float64(shorter) - 1e-9))
	return min(side, shorter)
}

// EnforceMinimumSize grows any dimension of r that is below
// minFraction * min(boundsWidth, boundsHeight) to that minimum, keeping the
// original centre. A grown box that would cross an image edge is shifted back
// inside instead of being truncated, so the shift wins over exact centring.
func EnforceMinimumSize(r Rect, boundsWidth, boundsHeight int, minFraction float64) (Rect, error) {
	if minFraction < 0 || minFraction > 1 {
		return Rect{}, &Error{Operation: "min-size", Rect: r, Err: fmt.Errorf("minimum fraction %.2f out of range [0,1]", minFraction)}
	}
	clamped, err := ClampRect(r, boundsWidth, boundsHeight)
	if err != nil {
		return Rect{}, err
	}

	minSide := MinimumSide(boundsWidth, boundsHeight, minFraction)
	out := clamped
	if out.Width < minSide {
		out.X, out.Width = grow(out.X, out.Width, minSide, boundsWidth)
	}
	if out.Height < minSide {
		out.Y, out.Height = grow(out.Y, out.Height, minSide, boundsHeight)
	}
	return ClampRect(out, boundsWidth, boundsHeight)
}

// grow widens the span [start, start+size) to target around its centre and
// shifts it back into [0, limit) when it would cross an edge.
func grow(start, size, target, limit int) (int, int) {
	if target > limit {
		target = limit
	}
	next := int(math.Floor(float64(start) + float64(size-target)/2))
	if next < 0 {
		next = 0
	}
	if next+target > limit {
		next = limit - target
	}
	return next, target
}

// CropParams are the tunables applied when turning a face region into a crop.
type CropParams struct {
	PaddingFraction float64 `json:"padding_fraction" yaml:"padding_fraction"`
	MinSizeFraction float64 `json:"min_size_fraction" yaml:"min_size_fraction"`
}

// DefaultCropParams returns the empirically chosen 20% padding / 30% minimum.
func DefaultCropParams() CropParams {
	return CropParams{PaddingFraction: 0.20, MinSizeFraction: 0.30}
}

// ComputeCropRect clamps region to the image, pads it, then enforces the
// minimum size. Padding runs first so the minimum applies to the padded box.
func ComputeCropRect(region Rect, boundsWidth, boundsHeight int, params CropParams) (Rect, error) {
	clamped, err := ClampRect(region, boundsWidth, boundsHeight)
	if err != nil {
		return Rect{}, err
	}
	padded, err := PadRect(clamped, params.PaddingFraction, boundsWidth, boundsHeight)
	if err != nil {
		return Rect{}, err
	}
	return EnforceMinimumSize(padded, boundsWidth, boundsHeight, params.MinSizeFraction)
}
