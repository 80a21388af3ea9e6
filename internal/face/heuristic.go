package face

import (
	"image"
	"math"

	"github.com/MeKo-Tech/idcrop/internal/geometry"
)

// DefaultSkinThreshold is the number of skin samples that must be exceeded
// for the heuristic to claim a face.
const DefaultSkinThreshold = 2

// heuristicFaceFraction is the face side relative to the shorter image side.
const heuristicFaceFraction = 0.4

// heuristicWidthFactor widens the heuristic box; faces on ID photos are
// usually captured with some shoulder width.
const heuristicWidthFactor = 1.5

// UnreadableRegion is used when no pixels are available at all.
var UnreadableRegion = geometry.Rect{X: 0, Y: 0, Width: 100, Height: 100}

var skinSamplePoints = [...][2]float64{
	{0.25, 0.25},
	{0.5, 0.25},
	{0.75, 0.25},
	{0.4, 0.4},
	{0.6, 0.4},
}

// IsSkin applies the RGB skin rule to 8-bit channel values.
func IsSkin(r, g, b uint8) bool {
	return r > 95 && g > 40 && b > 20 && int(r)-int(g) > 15 && r > g && r > b
}

// skinSamples returns the sample points (relative to the image origin) that
// classify as skin.
func skinSamples(img image.Image) []image.Point {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var hits []image.Point
	for _, p := range skinSamplePoints {
		x := int(float64(w) * p[0])
		y := int(float64(h) * p[1])
		r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
		if IsSkin(uint8(r>>8), uint8(g>>8), uint8(b>>8)) { //nolint:gosec // G115: 16-bit channel shifted to 8 bits
			hits = append(hits, image.Point{X: x, Y: y})
		}
	}
	return hits
}

// HeuristicRegion looks for skin at the fixed sample points. It reports false
// when threshold or fewer samples match.
func HeuristicRegion(img image.Image, threshold int) (geometry.Rect, bool) {
	hits := skinSamples(img)
	if len(hits) <= threshold || len(hits) == 0 {
		return geometry.Rect{}, false
	}

	var sumX, sumY int
	for _, p := range hits {
		sumX += p.X
		sumY += p.Y
	}
	meanX := float64(sumX) / float64(len(hits))
	meanY := float64(sumY) / float64(len(hits))

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	side := heuristicFaceFraction * float64(min(w, h))
	boxW := side * heuristicWidthFactor

	r := geometry.Rect{
		X:      int(math.Round(meanX - boxW/2)),
		Y:      int(math.Round(meanY - side/2)),
		Width:  max(int(math.Round(boxW)), 1),
		Height: max(int(math.Round(side)), 1),
	}
	clamped, err := geometry.ClampRect(r, w, h)
	if err != nil {
		return geometry.Rect{}, false
	}
	return clamped, true
}

// DefaultRegion is the centred half-size box used when nothing better is known.
func DefaultRegion(width, height int) geometry.Rect {
	if width <= 0 || height <= 0 {
		return UnreadableRegion
	}
	return geometry.Rect{
		X:      int(0.25 * float64(width)),
		Y:      int(0.25 * float64(height)),
		Width:  max(int(0.5*float64(width)), 1),
		Height: max(int(0.5*float64(height)), 1),
	}
}
