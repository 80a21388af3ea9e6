// Package imageio loads source photos and their metadata.
package imageio

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// SupportedImageExtensions lists the file extensions accepted as batch inputs.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff", ".webp"}

// ErrDecode marks a file that exists but could not be decoded as an image.
var ErrDecode = errors.New("cannot decode image")

// IsSupportedImage reports whether the path has a supported image extension.
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedImageExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// LoadError captures the failing step and path of an image load.
type LoadError struct {
	Operation string
	Path      string
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("image %s failed for %s: %v", e.Operation, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SourceImage is one decoded input photo. It is immutable after Load and is
// owned by the pipeline invocation that loaded it. Image is nil when the file
// could be read but not decoded.
type SourceImage struct {
	Path      string
	Format    string
	SizeBytes int64
	Width     int
	Height    int
	Image     image.Image
}

// Decoded reports whether pixel data is available.
func (s *SourceImage) Decoded() bool {
	return s != nil && s.Image != nil
}

// Load opens and decodes path. A missing or unreadable file returns a nil
// SourceImage. A file that fails to decode returns a SourceImage without
// pixels together with an error wrapping ErrDecode, so callers can still run
// the fallback stages that do not need pixels.
func Load(path string) (*SourceImage, error) {
	if path == "" {
		return nil, &LoadError{Operation: "open", Path: path, Err: errors.New("empty path")}
	}

	f, err := os.Open(path) //nolint:gosec // G304: input paths come from the caller by design
	if err != nil {
		return nil, &LoadError{Operation: "open", Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, &LoadError{Operation: "stat", Path: path, Err: err}
	}
	if fi.IsDir() {
		return nil, &LoadError{Operation: "open", Path: path, Err: errors.New("is a directory")}
	}

	src := &SourceImage{
		Path:      path,
		Format:    strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		SizeBytes: fi.Size(),
	}

	img, format, err := image.Decode(f)
	if err != nil {
		return src, &LoadError{Operation: "decode", Path: path, Err: fmt.Errorf("%w: %w", ErrDecode, err)}
	}

	b := img.Bounds()
	src.Image = img
	src.Format = format
	src.Width = b.Dx()
	src.Height = b.Dy()
	return src, nil
}

// FromImage wraps an in-memory image, mainly for callers that already decoded it.
func FromImage(path string, img image.Image) *SourceImage {
	src := &SourceImage{Path: path, Image: img}
	if img != nil {
		b := img.Bounds()
		src.Width, src.Height = b.Dx(), b.Dy()
	}
	return src
}
