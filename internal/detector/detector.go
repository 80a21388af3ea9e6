// Package detector provides face.Detector backends: an external command, an
// ONNX face model and, when built with the facedetect_gocv tag, an OpenCV
// Haar cascade.
package detector

import (
	"errors"
	"sort"

	"github.com/MeKo-Tech/idcrop/internal/geometry"
)

// ErrBackendNotBuilt is returned when a backend needs a build tag that was
// not set.
var ErrBackendNotBuilt = errors.New("detector backend not compiled in")

// Box is a scored face candidate.
type Box struct {
	Rect  geometry.Rect
	Score float32
}

// sortByScore orders boxes best first. Equal scores keep their order.
func sortByScore(boxes []Box) {
	sort.SliceStable(boxes, func(i, j int) bool { return boxes[i].Score > boxes[j].Score })
}

// rects strips the scores.
func rects(boxes []Box) []geometry.Rect {
	out := make([]geometry.Rect, len(boxes))
	for i, b := range boxes {
		out[i] = b.Rect
	}
	return out
}
