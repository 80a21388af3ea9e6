//go:build !ocr_gosseract

package ocr

import "context"

// GosseractAvailable reports whether the gosseract backend is compiled in.
const GosseractAvailable = false

// Gosseract is a placeholder when built without the ocr_gosseract tag.
type Gosseract struct{}

// NewGosseract always fails without the ocr_gosseract build tag.
func NewGosseract(string) (*Gosseract, error) {
	return nil, ErrBackendNotBuilt
}

// Recognize always reports ErrBackendNotBuilt.
func (g *Gosseract) Recognize(context.Context, string) (string, error) {
	return "", ErrBackendNotBuilt
}
