//go:build facedetect_gocv

package detector

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/MeKo-Tech/idcrop/internal/geometry"
	"github.com/MeKo-Tech/idcrop/internal/imageio"
	"gocv.io/x/gocv"
)

// CascadeAvailable reports whether the Haar cascade backend is compiled in.
const CascadeAvailable = true

// Cascade detects frontal faces with an OpenCV Haar cascade.
type Cascade struct {
	mu  sync.Mutex
	cls gocv.CascadeClassifier
}

// NewCascade loads the classifier at path, or the first default location
// that exists when path is empty.
func NewCascade(path string) (*Cascade, error) {
	if path == "" {
		for _, candidate := range DefaultCascadePaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return nil, fmt.Errorf("no Haar cascade found in %v", DefaultCascadePaths)
	}

	cls := gocv.NewCascadeClassifier()
	if !cls.Load(path) {
		_ = cls.Close()
		return nil, fmt.Errorf("failed to load Haar cascade %s", path)
	}
	return &Cascade{cls: cls}, nil
}

// Close releases the classifier.
func (c *Cascade) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cls.Close()
}

// Detect returns faces in the order the classifier reports them.
func (c *Cascade) Detect(ctx context.Context, src *imageio.SourceImage) ([]geometry.Rect, error) {
	if !src.Decoded() {
		return nil, imageio.ErrDecode
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(src.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer func() { _ = mat.Close() }()

	gray := gocv.NewMat()
	defer func() { _ = gray.Close() }()
	gocv.CvtColor(mat, &gray, gocv.ColorRGBToGray)

	c.mu.Lock()
	faces := c.cls.DetectMultiScaleWithParams(gray, cascadeScaleFactor, cascadeMinNeighbors, 0, image.Point{}, image.Point{})
	c.mu.Unlock()

	return cascadeRects(faces), nil
}
