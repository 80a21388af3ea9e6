package detector

import "github.com/MeKo-Tech/idcrop/internal/geometry"

// IoU returns the intersection-over-union of two rectangles.
func IoU(a, b geometry.Rect) float64 {
	inter := a.ImageRect().Intersect(b.ImageRect())
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	union := float64(a.Width*a.Height+b.Width*b.Height) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

// NonMaxSuppression keeps the best scoring box of every overlapping group.
// The result is ordered by descending score.
func NonMaxSuppression(boxes []Box, iouThreshold float64) []Box {
	if len(boxes) <= 1 {
		return boxes
	}

	sorted := make([]Box, len(boxes))
	copy(sorted, boxes)
	sortByScore(sorted)

	suppressed := make([]bool, len(sorted))
	kept := make([]Box, 0, len(sorted))
	for a := range sorted {
		if suppressed[a] {
			continue
		}
		kept = append(kept, sorted[a])
		for b := a + 1; b < len(sorted); b++ {
			if suppressed[b] {
				continue
			}
			if IoU(sorted[a].Rect, sorted[b].Rect) > iouThreshold {
				suppressed[b] = true
			}
		}
	}
	return kept
}
