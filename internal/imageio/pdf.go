package imageio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// IsPDF reports whether path looks like a PDF scan.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// ExtractPDFImages writes every embedded image of a scanned PDF into outDir
// and returns their paths ordered by page, then by position on the page.
// Scanned ID cards usually carry one image per page.
func ExtractPDFImages(pdfPath, outDir string) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create extraction directory: %w", err)
	}

	if err := api.ExtractImagesFile(pdfPath, outDir, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to extract images from %s: %w", pdfPath, err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list extracted images: %w", err)
	}

	type extracted struct {
		path  string
		page  int
		order int
	}
	var found []extracted
	for _, e := range entries {
		if e.IsDir() || !IsSupportedImage(e.Name()) {
			continue
		}
		page, order, err := parseExtractedName(e.Name())
		if err != nil {
			continue
		}
		found = append(found, extracted{path: filepath.Join(outDir, e.Name()), page: page, order: order})
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].page != found[j].page {
			return found[i].page < found[j].page
		}
		return found[i].order < found[j].order
	})

	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths, nil
}

// parseExtractedName reads the page and object number out of pdfcpu's
// "<base>_<page>_<obj>.<ext>" naming; older releases used "page_<n>_image_<m>".
func parseExtractedName(name string) (int, int, error) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(stem, "_")
	var nums []int
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			nums = append(nums, n)
		}
	}
	switch len(nums) {
	case 0:
		return 0, 0, errors.New("no page number in name")
	case 1:
		return nums[0], 0, nil
	default:
		return nums[len(nums)-2], nums[len(nums)-1], nil
	}
}
