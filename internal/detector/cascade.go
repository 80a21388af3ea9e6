package detector

import (
	"image"

	"github.com/MeKo-Tech/idcrop/internal/geometry"
)

// DefaultCascadePaths are the usual install locations of the frontal face
// Haar cascade.
var DefaultCascadePaths = []string{
	"/usr/share/opencv4/haarcascades/haarcascade_frontalface_default.xml",
	"/usr/local/share/opencv4/haarcascades/haarcascade_frontalface_default.xml",
	"/usr/local/share/opencv/haarcascades/haarcascade_frontalface_default.xml",
	"haarcascade_frontalface_default.xml",
}

const (
	cascadeScaleFactor  = 1.3
	cascadeMinNeighbors = 5
)

// cascadeRects converts classifier hits without reordering them.
func cascadeRects(faces []image.Rectangle) []geometry.Rect {
	out := make([]geometry.Rect, 0, len(faces))
	for _, f := range faces {
		out = append(out, geometry.FromImageRect(f))
	}
	return out
}
