// Package batch runs the face-crop pipeline over many images with isolated
// per-item failures and one aggregate report.
package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/idcrop/internal/archive"
	"github.com/MeKo-Tech/idcrop/internal/face"
	"github.com/MeKo-Tech/idcrop/internal/geometry"
	"github.com/MeKo-Tech/idcrop/internal/idtext"
)

var (
	// ErrNoItems is returned when Run is given nothing to process.
	ErrNoItems = errors.New("no input images")
	// ErrNoSuccessfulItems is returned, together with the report, when every item failed.
	ErrNoSuccessfulItems = errors.New("no images were processed successfully")
)

// Archiver packages successful outputs after a run.
type Archiver interface {
	Write(ctx context.Context, dest string, entries []archive.Entry) error
}

// Item is one image to process. Origin names the file the image came from
// when it was extracted from a PDF. Err is set when the input could not be
// prepared; such an item fails without being loaded.
type Item struct {
	Path   string `json:"path"             yaml:"path"`
	Origin string `json:"origin,omitempty" yaml:"origin,omitempty"`
	Err    error  `json:"-"                yaml:"-"`
}

// Label is the name used in reports.
func (it Item) Label() string {
	if it.Origin == "" {
		return it.Path
	}
	return it.Origin + "#" + filepath.Base(it.Path)
}

// stem is the input file name without directory and extension.
func (it Item) stem() string {
	base := filepath.Base(it.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ItemsFromPaths wraps plain image paths.
func ItemsFromPaths(paths []string) []Item {
	items := make([]Item, len(paths))
	for i, p := range paths {
		items[i] = Item{Path: p}
	}
	return items
}

// Outcome is the result state of one item.
type Outcome int

const (
	OutcomeFailure Outcome = iota
	OutcomeSuccess
)

func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "success"
	}
	return "failure"
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is the record of one processed item. The region, crop and ID fields
// are advisory and may be empty on failure.
type Result struct {
	Index        int            `json:"index"                   yaml:"index"`
	Input        string         `json:"input"                   yaml:"input"`
	Outcome      Outcome        `json:"outcome"                 yaml:"outcome"`
	OutputPath   string         `json:"output_path,omitempty"   yaml:"output_path,omitempty"`
	Message      string         `json:"message,omitempty"       yaml:"message,omitempty"`
	Elapsed      time.Duration  `json:"elapsed_ns"              yaml:"elapsed"`
	RegionSource *face.Source   `json:"region_source,omitempty" yaml:"region_source,omitempty"`
	CropRect     *geometry.Rect `json:"crop_rect,omitempty"     yaml:"crop_rect,omitempty"`
	ID           string         `json:"id,omitempty"            yaml:"id,omitempty"`
	IDTier       *idtext.Tier   `json:"id_tier,omitempty"       yaml:"id_tier,omitempty"`

	staged string // rendered crop awaiting its final name
	name   string // final name before collision handling
}

// Succeeded reports whether the item produced an output.
func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// Report aggregates one Run. Results are in input order.
type Report struct {
	Total        int           `json:"total"                  yaml:"total"`
	SuccessCount int           `json:"success_count"          yaml:"success_count"`
	FailureCount int           `json:"failure_count"          yaml:"failure_count"`
	Results      []Result      `json:"results"                yaml:"results"`
	ArchivePath  string        `json:"archive_path,omitempty" yaml:"archive_path,omitempty"`
	Duration     time.Duration `json:"duration_ns"            yaml:"duration"`
	Workers      int           `json:"workers"                yaml:"workers"`
}

// Failures returns the failed results in input order.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Succeeded() {
			out = append(out, res)
		}
	}
	return out
}

// Summary is a one-line description of the run.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d of %d images processed successfully, %d failed", r.SuccessCount, r.Total, r.FailureCount)
}

func newReport(results []Result, duration time.Duration, workers int) *Report {
	rep := &Report{Total: len(results), Results: results, Duration: duration, Workers: workers}
	for _, r := range results {
		if r.Succeeded() {
			rep.SuccessCount++
		} else {
			rep.FailureCount++
		}
	}
	return rep
}
