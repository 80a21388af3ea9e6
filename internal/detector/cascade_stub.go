//go:build !facedetect_gocv

package detector

import (
	"context"

	"github.com/MeKo-Tech/idcrop/internal/geometry"
	"github.com/MeKo-Tech/idcrop/internal/imageio"
)

// CascadeAvailable reports whether the Haar cascade backend is compiled in.
const CascadeAvailable = false

// Cascade is a placeholder when built without the facedetect_gocv tag.
type Cascade struct{}

// NewCascade always fails without the facedetect_gocv build tag.
func NewCascade(string) (*Cascade, error) {
	return nil, ErrBackendNotBuilt
}

// Close does nothing.
func (c *Cascade) Close() error { return nil }

// Detect always reports ErrBackendNotBuilt.
func (c *Cascade) Detect(context.Context, *imageio.SourceImage) ([]geometry.Rect, error) {
	return nil, ErrBackendNotBuilt
}
