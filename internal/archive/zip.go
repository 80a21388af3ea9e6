// Package archive packages cropped outputs into a single zip file.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"
)

// Entry is one file to add: Path on disk, Name inside the archive.
type Entry struct {
	Path string `json:"path" yaml:"path"`
	Name string `json:"name" yaml:"name"`
}

// Name returns the archive file name for a batch finished at t.
func Name(t time.Time) string {
	return "faces_" + t.Format("20060102_150405") + ".zip"
}

// Zip writes deflate-compressed zip archives.
type Zip struct{}

// Write creates dest containing entries. The archive is assembled in a
// temporary file and renamed into place, so a failed write leaves nothing.
func (Zip) Write(ctx context.Context, dest string, entries []Entry) (err error) {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return fmt.Errorf("archive entry for %s has no name", e.Path)
		}
		if seen[e.Name] {
			return fmt.Errorf("duplicate archive entry %q", e.Name)
		}
		seen[e.Name] = true
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create archive %s: %w", dest, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	zw := zip.NewWriter(tmp)
	for _, e := range entries {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = addFile(zw, e); err != nil {
			return err
		}
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("finish archive %s: %w", dest, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close archive %s: %w", dest, err)
	}
	if err = os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("rename archive into %s: %w", dest, err)
	}
	return nil
}

func addFile(zw *zip.Writer, e Entry) error {
	f, err := os.Open(e.Path) //nolint:gosec // G304: entries are outputs this run wrote
	if err != nil {
		return fmt.Errorf("open %s: %w", e.Path, err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", e.Path, err)
	}
	header, err := zip.FileInfoHeader(fi)
	if err != nil {
		return fmt.Errorf("zip header for %s: %w", e.Path, err)
	}
	header.Name = e.Name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("add %s: %w", e.Name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("compress %s: %w", e.Name, err)
	}
	return nil
}
