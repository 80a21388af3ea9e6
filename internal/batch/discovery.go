package batch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MeKo-Tech/idcrop/internal/imageio"
)

// ErrNoPDFImages marks a PDF input without any embedded image.
var ErrNoPDFImages = errors.New("no embedded images found")

// DiscoverOptions control how input paths expand into items.
type DiscoverOptions struct {
	Recursive bool
	Include   []string // base-name globs; empty includes everything
	Exclude   []string // base-name globs, checked first
	// PDFDir receives images extracted from PDF inputs. When it is empty a
	// PDF is passed through as a single item.
	PDFDir string
}

// Discover expands files, directories and PDF scans into items, keeping
// argument order. Files named explicitly are always included so that a bad
// file shows up as a failed item; files found in directories must look like
// images or PDFs. A PDF that cannot be expanded becomes one item carrying
// the error, so it fails on its own during the run.
func Discover(paths []string, opts DiscoverOptions) ([]Item, error) {
	var files []string
	for _, arg := range paths {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			found, err := discoverInDirectory(arg, opts)
			if err != nil {
				return nil, err
			}
			files = append(files, found...)
		} else if shouldIncludeFile(arg, opts.Include, opts.Exclude) {
			files = append(files, arg)
		}
	}

	items := make([]Item, 0, len(files))
	pdfCount := 0
	for _, f := range files {
		if !imageio.IsPDF(f) || opts.PDFDir == "" {
			items = append(items, Item{Path: f})
			continue
		}
		pdfCount++
		extracted, err := expandPDF(f, opts.PDFDir, pdfCount)
		if err == nil && len(extracted) == 0 {
			err = ErrNoPDFImages
		}
		if err != nil {
			slog.Warn("PDF could not be expanded", "input", f, "error", err)
			items = append(items, Item{Path: f, Err: err})
			continue
		}
		items = append(items, extracted...)
	}
	return items, nil
}

// expandPDF extracts the embedded images of pdfPath into its own directory
// under root.
func expandPDF(pdfPath, root string, n int) ([]Item, error) {
	base := filepath.Base(pdfPath)
	outDir := filepath.Join(root, strings.TrimSuffix(base, filepath.Ext(base))+"_"+strconv.Itoa(n))
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("create PDF image directory: %w", err)
	}

	images, err := imageio.ExtractPDFImages(pdfPath, outDir)
	if err != nil {
		return nil, err
	}
	items := make([]Item, len(images))
	for i, img := range images {
		items[i] = Item{Path: img, Origin: pdfPath}
	}
	return items, nil
}

// discoverInDirectory walks dir, descending into subdirectories only when
// recursive.
func discoverInDirectory(dir string, opts DiscoverOptions) ([]string, error) {
	var files []string

	walkFn := func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if !opts.Recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}

		if !imageio.IsSupportedImage(path) && !imageio.IsPDF(path) {
			return nil
		}
		if shouldIncludeFile(path, opts.Include, opts.Exclude) {
			files = append(files, path)
		}
		return nil
	}

	return files, filepath.Walk(dir, walkFn)
}

// shouldIncludeFile applies exclude patterns first, then include patterns.
func shouldIncludeFile(path string, includePatterns, excludePatterns []string) bool {
	if matchesAnyPattern(path, excludePatterns) {
		return false
	}
	if len(includePatterns) == 0 {
		return true
	}
	return matchesAnyPattern(path, includePatterns)
}

// matchesAnyPattern matches the base name of path against each glob.
func matchesAnyPattern(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
