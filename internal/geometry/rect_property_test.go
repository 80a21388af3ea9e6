package geometry

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// regionGen produces a bounds size plus a region that overlaps it.
type regionCase struct {
	W, H   int
	Region Rect
}

func genRegionCase() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(1, 2000),
		gen.IntRange(1, 2000),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	).Map(func(vals []interface{}) regionCase {
		w := vals[0].(int)
		h := vals[1].(int)
		x := int(vals[2].(float64) * float64(w-1))
		y := int(vals[3].(float64) * float64(h-1))
		rw := 1 + int(vals[4].(float64)*float64(w-x-1))
		rh := 1 + int(vals[5].(float64)*float64(h-y-1))
		return regionCase{W: w, H: h, Region: Rect{X: x, Y: y, Width: rw, Height: rh}}
	})
}

func TestComputeCropRect_AlwaysWithinBounds(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("crop rect stays inside the image", prop.ForAll(
		func(c regionCase) bool {
			got, err := ComputeCropRect(c.Region, c.W, c.H, DefaultCropParams())
			if err != nil {
				return false
			}
			return got.Within(c.W, c.H)
		},
		genRegionCase(),
	))

	properties.Property("crop rect contains the original region", prop.ForAll(
		func(c regionCase) bool {
			got, err := ComputeCropRect(c.Region, c.W, c.H, DefaultCropParams())
			if err != nil {
				return false
			}
			return c.Region.ImageRect().In(got.ImageRect())
		},
		genRegionCase(),
	))

	properties.Property("crop rect meets the minimum side", prop.ForAll(
		func(c regionCase) bool {
			got, err := ComputeCropRect(c.Region, c.W, c.H, DefaultCropParams())
			if err != nil {
				return false
			}
			minSide := MinimumSide(c.W, c.H, DefaultCropParams().MinSizeFraction)
			return got.Width >= minSide && got.Height >= minSide
		},
		genRegionCase(),
	))

	properties.TestingRun(t)
}

func TestEnforceMinimumSize_Idempotent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("re-applying min-size changes nothing", prop.ForAll(
		func(c regionCase, fraction float64) bool {
			once, err := EnforceMinimumSize(c.Region, c.W, c.H, fraction)
			if err != nil {
				return false
			}
			twice, err := EnforceMinimumSize(once, c.W, c.H, fraction)
			if err != nil {
				return false
			}
			return once == twice
		},
		genRegionCase(),
		gen.Float64Range(0, 1),
	))

	properties.Property("clamping is idempotent", prop.ForAll(
		func(c regionCase) bool {
			once, err := ClampRect(c.Region, c.W, c.H)
			if err != nil {
				return false
			}
			twice, err := ClampRect(once, c.W, c.H)
			return err == nil && once == twice
		},
		genRegionCase(),
	))

	properties.TestingRun(t)
}
