package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageSize represents common image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

var (
	// Common test image sizes.
	SmallSize  = ImageSize{320, 240}
	MediumSize = ImageSize{640, 480}
	CardSize   = ImageSize{856, 540}
)

var (
	// SkinColor passes the skin rule used by the face heuristic.
	SkinColor = color.RGBA{R: 220, G: 170, B: 140, A: 255}
	// BackgroundColor is a pale card blue that never classifies as skin.
	BackgroundColor = color.RGBA{R: 200, G: 215, B: 235, A: 255}
)

// SkinSamplePoints are the relative positions the face heuristic inspects.
var SkinSamplePoints = [5][2]float64{
	{0.25, 0.25},
	{0.5, 0.25},
	{0.75, 0.25},
	{0.4, 0.4},
	{0.6, 0.4},
}

// SolidImage creates an image filled with a single colour.
func SolidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// SkinSampleImage creates a card-coloured image where the first skinHits of
// the heuristic sample points are painted with skin colour.
func SkinSampleImage(size ImageSize, skinHits int) *image.RGBA {
	img := SolidImage(size.Width, size.Height, BackgroundColor)
	for i := 0; i < skinHits && i < len(SkinSamplePoints); i++ {
		x := int(float64(size.Width) * SkinSamplePoints[i][0])
		y := int(float64(size.Height) * SkinSamplePoints[i][1])
		patch := image.Rect(x-2, y-2, x+3, y+3).Intersect(img.Bounds())
		draw.Draw(img, patch, &image.Uniform{SkinColor}, image.Point{}, draw.Src)
	}
	return img
}

// IDCardImage draws a synthetic ID card: a skin-coloured "portrait" block
// covering every heuristic sample point and a line of text along the bottom.
func IDCardImage(size ImageSize, text string) *image.RGBA {
	img := SolidImage(size.Width, size.Height, BackgroundColor)

	portrait := image.Rect(size.Width/5, size.Height/5, size.Width*4/5, size.Height/2)
	draw.Draw(img, portrait, &image.Uniform{SkinColor}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: img, Src: image.Black, Face: face}
	textWidth := font.MeasureString(face, text).Ceil()
	drawer.Dot = fixed.P((size.Width-textWidth)/2, size.Height-face.Metrics().Height.Ceil())
	drawer.DrawString(text)

	return img
}

// SaveImage encodes img to path, picking the format from the extension.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	dir := filepath.Dir(path)
	require.NoError(t, EnsureDir(dir), "Failed to create directory %s", dir)
	require.NoError(t, imaging.Save(img, path), "Failed to encode image %s", path)
}

// LoadImage loads an image from the specified path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()

	img, err := imaging.Open(path)
	require.NoError(t, err, "Failed to open image file %s", path)
	return img
}

// CompareImages compares two images and returns true if they are similar.
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	bounds1 := img1.Bounds()
	bounds2 := img2.Bounds()

	if bounds1.Dx() != bounds2.Dx() || bounds1.Dy() != bounds2.Dy() {
		return false
	}

	var totalDiff float64
	var pixelCount float64

	for y := 0; y < bounds1.Dy(); y++ {
		for x := 0; x < bounds1.Dx(); x++ {
			r1, g1, b1, a1 := img1.At(bounds1.Min.X+x, bounds1.Min.Y+y).RGBA()
			r2, g2, b2, a2 := img2.At(bounds2.Min.X+x, bounds2.Min.Y+y).RGBA()

			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)
			da := float64(a1) - float64(a2)

			totalDiff += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
			pixelCount++
		}
	}
	if pixelCount == 0 {
		return true
	}

	avgDiff := totalDiff / pixelCount
	maxDiff := math.Sqrt(4 * 65535 * 65535)

	return (avgDiff / maxDiff) <= tolerance
}
