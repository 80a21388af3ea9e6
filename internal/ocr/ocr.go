// Package ocr provides text recognizers used to read the ID number printed on
// a card: the tesseract CLI, pre-computed sidecar text files and, with the
// ocr_gosseract build tag, the gosseract bindings.
package ocr

import (
	"context"
	"errors"
)

const (
	// DefaultLanguage is the tesseract language pack.
	DefaultLanguage = "eng"
	// DefaultPageSegMode treats the card as one uniform block of text.
	DefaultPageSegMode = 6
	// CharWhitelist restricts recognition to what an ID card line contains.
	CharWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// ErrBackendNotBuilt is returned when a backend needs a build tag that was
// not set.
var ErrBackendNotBuilt = errors.New("ocr backend not compiled in")

// ErrNoText is returned by Sidecar when no text file exists for an image.
var ErrNoText = errors.New("no OCR text available")

// Recognizer returns the raw text found in an image file.
type Recognizer interface {
	Recognize(ctx context.Context, path string) (string, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, path string) (string, error)

// Recognize calls f.
func (f RecognizerFunc) Recognize(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}
