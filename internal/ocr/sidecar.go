package ocr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Sidecar reads text that was recognised earlier and stored next to the
// image, as "<image>.txt" or "<image without extension>.txt".
type Sidecar struct{}

// Candidates returns the sidecar paths checked for an image, in order.
func (Sidecar) Candidates(path string) []string {
	return []string{
		path + ".txt",
		strings.TrimSuffix(path, filepath.Ext(path)) + ".txt",
	}
}

// Recognize returns the first sidecar file's content.
func (s Sidecar) Recognize(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, candidate := range s.Candidates(path) {
		data, err := os.ReadFile(candidate) //nolint:gosec // G304: sidecar paths derive from input paths
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("read sidecar %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("%w for %s", ErrNoText, path)
}
