// Package render crops a source photo to a rectangle and encodes the result.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/idcrop/internal/geometry"
	"github.com/MeKo-Tech/idcrop/internal/imageio"
	"github.com/MeKo-Tech/idcrop/internal/mempool"
	"github.com/disintegration/imaging"
)

var (
	// ErrUnsupportedFormat is returned for output formats other than jpeg and png.
	ErrUnsupportedFormat = errors.New("unsupported output format")
	// ErrDecodeFailure is returned when the source has no decoded pixels.
	ErrDecodeFailure = errors.New("source image could not be decoded")
	// ErrEncodeFailure is returned when encoding fails or produces no bytes.
	ErrEncodeFailure = errors.New("failed to encode output image")
	// ErrInvalidRect is returned when the crop rectangle is not inside the image.
	ErrInvalidRect = errors.New("crop rectangle outside image")
)

// Error describes a render failure. Kind is one of the sentinel errors above.
type Error struct {
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("render %s: %v", e.Path, e.Kind)
	}
	return fmt.Sprintf("render %s: %v: %v", e.Path, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Format is an output encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// Extension returns the file extension for f, including the dot.
func (f Format) Extension() string {
	if f == FormatPNG {
		return ".png"
	}
	return ".jpg"
}

// ParseFormat accepts jpeg, jpg and png in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", &Error{Kind: ErrUnsupportedFormat, Err: fmt.Errorf("format %q", s)}
	}
}

// FormatFor picks png for sources that were png or gif, jpeg otherwise.
func FormatFor(sourceFormat string) Format {
	switch strings.ToLower(sourceFormat) {
	case "png", "gif":
		return FormatPNG
	default:
		return FormatJPEG
	}
}

// DefaultJPEGQuality matches the quality the batch tool always used.
const DefaultJPEGQuality = 90

// Renderer crops and encodes images. It holds no per-call state.
type Renderer struct {
	JPEGQuality int
}

// New returns a Renderer with the given JPEG quality (1-100, 0 for default).
func New(jpegQuality int) *Renderer {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = DefaultJPEGQuality
	}
	return &Renderer{JPEGQuality: jpegQuality}
}

// Render crops exactly the pixels of rect out of src and encodes them. PNG
// output starts from a fully transparent canvas and copies pixels verbatim;
// JPEG output composites over white since JPEG has no alpha.
func (r *Renderer) Render(src *imageio.SourceImage, rect geometry.Rect, format Format) ([]byte, error) {
	path := ""
	if src != nil {
		path = src.Path
	}
	if format != FormatJPEG && format != FormatPNG {
		return nil, &Error{Path: path, Kind: ErrUnsupportedFormat, Err: fmt.Errorf("format %q", format)}
	}
	if !src.Decoded() {
		return nil, &Error{Path: path, Kind: ErrDecodeFailure}
	}
	if !rect.Within(src.Width, src.Height) {
		return nil, &Error{Path: path, Kind: ErrInvalidRect, Err: fmt.Errorf("%v in %dx%d", rect, src.Width, src.Height)}
	}

	origin := src.Image.Bounds().Min
	cropped := imaging.Crop(src.Image, rect.ImageRect().Add(origin))

	var (
		out     *image.NRGBA
		encFmt  imaging.Format
		encOpts []imaging.EncodeOption
	)
	switch format {
	case FormatPNG:
		canvas := imaging.New(rect.Width, rect.Height, color.NRGBA{})
		out = imaging.Paste(canvas, cropped, image.Point{})
		encFmt = imaging.PNG
	default:
		canvas := imaging.New(rect.Width, rect.Height, color.White)
		out = imaging.Overlay(canvas, cropped, image.Point{}, 1.0)
		encFmt = imaging.JPEG
		encOpts = append(encOpts, imaging.JPEGQuality(r.quality()))
	}

	buf := mempool.GetBuffer()
	defer mempool.PutBuffer(buf)
	if err := imaging.Encode(buf, out, encFmt, encOpts...); err != nil {
		return nil, &Error{Path: path, Kind: ErrEncodeFailure, Err: err}
	}
	if buf.Len() == 0 {
		return nil, &Error{Path: path, Kind: ErrEncodeFailure, Err: errors.New("encoder produced no bytes")}
	}
	return bytes.Clone(buf.Bytes()), nil
}

func (r *Renderer) quality() int {
	if r == nil || r.JPEGQuality <= 0 || r.JPEGQuality > 100 {
		return DefaultJPEGQuality
	}
	return r.JPEGQuality
}

// WriteFile writes data to path through a temporary file in the same
// directory and renames it into place. On any failure the temporary file is
// removed and path is left untouched.
func WriteFile(path string, data []byte) (err error) {
	if len(data) == 0 {
		return &Error{Path: path, Kind: ErrEncodeFailure, Err: errors.New("refusing to write empty output")}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil { //nolint:gosec // G302: output images are meant to be shared
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
