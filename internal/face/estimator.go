package face

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/idcrop/internal/geometry"
	"github.com/MeKo-Tech/idcrop/internal/imageio"
)

// Estimator locates a face region using detector, heuristic and default
// tiers in that order. It is safe for concurrent use when its Detector is.
type Estimator struct {
	detector      Detector
	skinThreshold int
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithDetector sets the primary detector. A nil detector skips tier one.
func WithDetector(d Detector) Option {
	return func(e *Estimator) { e.detector = d }
}

// WithSkinThreshold sets how many skin samples must be exceeded.
func WithSkinThreshold(n int) Option {
	return func(e *Estimator) { e.skinThreshold = n }
}

// NewEstimator builds an Estimator.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{skinThreshold: DefaultSkinThreshold}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate returns the best available face region for src. It never fails.
func (e *Estimator) Estimate(ctx context.Context, src *imageio.SourceImage) Region {
	if !src.Decoded() {
		return Region{Rect: UnreadableRegion, Source: SourceDefault}
	}

	if e.detector != nil {
		rect, err := e.detect(ctx, src)
		if err == nil {
			return Region{Rect: rect, Source: SourceDetector}
		}
		slog.Warn("Face detector unavailable, using fallback",
			"path", src.Path,
			"error", err)
	}

	if rect, ok := HeuristicRegion(src.Image, e.skinThreshold); ok {
		return Region{Rect: rect, Source: SourceHeuristic}
	}

	return Region{Rect: DefaultRegion(src.Width, src.Height), Source: SourceDefault}
}

// detect runs the detector and keeps its first usable candidate. Every
// failure is reported as ErrDetectionUnavailable.
func (e *Estimator) detect(ctx context.Context, src *imageio.SourceImage) (geometry.Rect, error) {
	rects, err := e.detector.Detect(ctx, src)
	if err != nil {
		return geometry.Rect{}, fmt.Errorf("%w: %w", ErrDetectionUnavailable, err)
	}
	if len(rects) == 0 {
		return geometry.Rect{}, fmt.Errorf("%w: no face candidates", ErrDetectionUnavailable)
	}

	rect, err := geometry.ClampRect(rects[0], src.Width, src.Height)
	if err != nil {
		return geometry.Rect{}, fmt.Errorf("%w: %w", ErrDetectionUnavailable, err)
	}
	return rect, nil
}
