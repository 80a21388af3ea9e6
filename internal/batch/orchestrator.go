package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/idcrop/internal/archive"
	"github.com/MeKo-Tech/idcrop/internal/face"
	"github.com/MeKo-Tech/idcrop/internal/geometry"
	"github.com/MeKo-Tech/idcrop/internal/idtext"
	"github.com/MeKo-Tech/idcrop/internal/imageio"
	"github.com/MeKo-Tech/idcrop/internal/ocr"
	"github.com/MeKo-Tech/idcrop/internal/render"
)

// FormatSource keeps png and gif sources as png and writes jpeg otherwise.
const FormatSource = "source"

// Options configure an Orchestrator. Zero values pick the defaults noted on
// each field.
type Options struct {
	Detector   face.Detector     // optional; nil skips straight to the heuristic
	Recognizer ocr.Recognizer    // required when NameByID is set
	Extractor  *idtext.Extractor // default idtext.Default()
	Renderer   *render.Renderer  // default render.New(0)
	Archiver   Archiver          // default archive.Zip{}
	Metrics    *Metrics          // optional
	Progress   ProgressCallback  // optional

	Crop          *geometry.CropParams // nil means geometry.DefaultCropParams()
	SkinThreshold int                  // default face.DefaultSkinThreshold

	OutputDir    string // required
	OutputFormat string // jpeg, png or source; default source
	NameByID     bool
	RequireID    bool
	Archive      bool
	ArchivePath  string // default <OutputDir>/faces_<timestamp>.zip

	Workers             int           // default runtime.NumCPU()
	ExternalConcurrency int           // default Workers
	DetectorTimeout     time.Duration // 0 means no timeout
	OCRTimeout          time.Duration // 0 means no timeout

	Now func() time.Time // default time.Now
}

// Orchestrator runs the crop pipeline over a list of items. It keeps no state
// between runs and may be reused.
type Orchestrator struct {
	opts       Options
	crop       geometry.CropParams
	format     render.Format
	estimator  *face.Estimator
	recognizer ocr.Recognizer
}

// New validates opts and fills in defaults.
func New(opts Options) (*Orchestrator, error) {
	if opts.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	if opts.NameByID && opts.Recognizer == nil {
		return nil, errors.New("naming by ID requires an OCR backend")
	}
	crop := geometry.DefaultCropParams()
	if opts.Crop != nil {
		crop = *opts.Crop
	}
	if crop.PaddingFraction < 0 || crop.MinSizeFraction < 0 || crop.MinSizeFraction > 1 {
		return nil, fmt.Errorf("invalid crop parameters: padding %.2f, minimum %.2f",
			crop.PaddingFraction, crop.MinSizeFraction)
	}
	if opts.SkinThreshold <= 0 {
		opts.SkinThreshold = face.DefaultSkinThreshold
	}
	if opts.Extractor == nil {
		opts.Extractor = idtext.Default()
	}
	if opts.Renderer == nil {
		opts.Renderer = render.New(0)
	}
	if opts.Archiver == nil {
		opts.Archiver = archive.Zip{}
	}
	if opts.Progress == nil {
		opts.Progress = NoOpProgressCallback{}
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.ExternalConcurrency <= 0 {
		opts.ExternalConcurrency = opts.Workers
	}
	if opts.DetectorTimeout < 0 || opts.OCRTimeout < 0 {
		return nil, errors.New("timeouts must not be negative")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.OutputFormat == "" {
		opts.OutputFormat = FormatSource
	}

	o := &Orchestrator{opts: opts, crop: crop}
	if !strings.EqualFold(opts.OutputFormat, FormatSource) {
		f, err := render.ParseFormat(opts.OutputFormat)
		if err != nil {
			return nil, err
		}
		o.format = f
	}

	limit := newLimiter(opts.ExternalConcurrency, opts.Metrics)
	estimatorOpts := []face.Option{face.WithSkinThreshold(opts.SkinThreshold)}
	if opts.Detector != nil {
		estimatorOpts = append(estimatorOpts, face.WithDetector(&limitedDetector{
			next: opts.Detector, limit: limit, timeout: opts.DetectorTimeout,
		}))
	}
	o.estimator = face.NewEstimator(estimatorOpts...)
	if opts.Recognizer != nil {
		o.recognizer = &limitedRecognizer{next: opts.Recognizer, limit: limit, timeout: opts.OCRTimeout}
	}
	return o, nil
}

// Run processes items and returns the report. It returns ErrNoItems for empty
// input. When no item succeeds it returns the report together with
// ErrNoSuccessfulItems. When ctx ends early the remaining items are reported
// as failed, no archive is written and ctx's error is returned with the
// report.
func (o *Orchestrator) Run(ctx context.Context, items []Item) (*Report, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if err := os.MkdirAll(o.opts.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	stageDir, err := os.MkdirTemp(o.opts.OutputDir, ".idcrop-stage-*")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(stageDir) }()

	start := time.Now()
	progress := o.opts.Progress

	slog.Info("Starting batch",
		"items", len(items),
		"workers", o.opts.Workers,
		"output_dir", o.opts.OutputDir,
		"name_by_id", o.opts.NameByID)

	progress.OnStart(len(items))
	results := runParallel(ctx, items, o.opts.Workers,
		func(ctx context.Context, index int, it Item) Result {
			return o.processItem(ctx, it, filepath.Join(stageDir, strconv.Itoa(index)))
		},
		func(done int, r Result) {
			if !r.Succeeded() {
				progress.OnError(r.Index, errors.New(r.Message))
			}
			progress.OnProgress(done, len(items))
		})
	for _, r := range o.commitOutputs(results) {
		progress.OnError(r.Index, errors.New(r.Message))
	}
	progress.OnComplete()
	for _, r := range results {
		o.opts.Metrics.RecordItem(r.Outcome, r.Elapsed)
	}

	report := newReport(results, 0, o.opts.Workers)
	defer func() {
		report.Duration = time.Since(start)
		o.opts.Metrics.RecordBatch(batchStatus(report))
		slog.Info("Batch finished",
			"total", report.Total,
			"succeeded", report.SuccessCount,
			"failed", report.FailureCount,
			"archive", report.ArchivePath,
			"duration", time.Since(start))
	}()

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("batch interrupted: %w", err)
	}
	if report.SuccessCount == 0 {
		return report, ErrNoSuccessfulItems
	}
	if o.opts.Archive {
		dest, err := o.writeArchive(ctx, report)
		if err != nil {
			return report, fmt.Errorf("archive outputs: %w", err)
		}
		report.ArchivePath = dest
	}
	return report, nil
}

// commitOutputs moves staged crops to their final names in input order, so
// collision suffixes follow input order rather than completion order. It
// returns the results that failed to move.
func (o *Orchestrator) commitOutputs(results []Result) []Result {
	names := newNameSet()
	var failed []Result
	for i := range results {
		r := &results[i]
		if r.staged == "" {
			continue
		}
		name := names.reserve(r.name)
		out := filepath.Join(o.opts.OutputDir, name)
		if err := os.Rename(r.staged, out); err != nil {
			names.release(name)
			r.Outcome = OutcomeFailure
			r.Message = fmt.Sprintf("write: %v", err)
			slog.Warn("Item failed", "input", r.Input, "stage", "write", "error", err)
			failed = append(failed, *r)
		} else {
			r.OutputPath = out
			slog.Debug("Item written", "input", r.Input, "output", out)
		}
		r.staged, r.name = "", ""
	}
	return failed
}

func (o *Orchestrator) writeArchive(ctx context.Context, report *Report) (string, error) {
	dest := o.opts.ArchivePath
	if dest == "" {
		dest = filepath.Join(o.opts.OutputDir, archive.Name(o.opts.Now()))
	}
	entries := make([]archive.Entry, 0, report.SuccessCount)
	for _, r := range report.Results {
		if r.Succeeded() {
			entries = append(entries, archive.Entry{Path: r.OutputPath, Name: filepath.Base(r.OutputPath)})
		}
	}
	if err := o.opts.Archiver.Write(ctx, dest, entries); err != nil {
		return "", err
	}
	return dest, nil
}

// processItem runs one item through load, estimate, crop, ID extraction,
// render and write. The crop is written to staged and named later by
// commitOutputs. Every error ends up in the returned result.
func (o *Orchestrator) processItem(ctx context.Context, it Item, staged string) Result {
	start := time.Now()
	res := Result{Input: it.Label(), Outcome: OutcomeFailure}
	fail := func(stage string, err error) Result {
		res.Message = fmt.Sprintf("%s: %v", stage, err)
		res.Elapsed = time.Since(start)
		slog.Warn("Item failed", "input", res.Input, "stage", stage, "error", err)
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail("not processed", context.Cause(ctx))
	}
	if it.Err != nil {
		return fail("pdf", it.Err)
	}

	src, loadErr := imageio.Load(it.Path)
	if src == nil {
		return fail("load", loadErr)
	}
	if loadErr != nil {
		slog.Debug("Image could not be decoded, continuing with fallbacks", "input", res.Input, "error", loadErr)
	}

	region := o.estimator.Estimate(ctx, src)
	res.RegionSource = &region.Source
	o.opts.Metrics.RecordRegionSource(region.Source)

	rect := region.Rect
	if src.Decoded() {
		var err error
		rect, err = geometry.ComputeCropRect(region.Rect, src.Width, src.Height, o.crop)
		if err != nil {
			return fail("crop", err)
		}
	}
	res.CropRect = &rect

	var id idtext.ExtractedID
	if o.opts.NameByID {
		text, err := o.recognizer.Recognize(ctx, it.Path)
		if err != nil {
			return fail("ocr", err)
		}
		id = o.opts.Extractor.Extract(text)
		res.IDTier = &id.Tier
		res.ID = id.ID
		o.opts.Metrics.RecordIDTier(id.Tier)
		if !id.Found() && o.opts.RequireID {
			return fail("id", idtext.ErrIDNotFound)
		}
	}

	format := o.format
	if format == "" {
		format = render.FormatFor(src.Format)
	}
	data, err := o.opts.Renderer.Render(src, rect, format)
	if err != nil {
		return fail("render", err)
	}

	if err := render.WriteFile(staged, data); err != nil {
		return fail("write", err)
	}

	res.Outcome = OutcomeSuccess
	res.staged = staged
	res.name = outputName(it, id, format.Extension())
	res.Elapsed = time.Since(start)
	slog.Debug("Item processed",
		"input", res.Input,
		"name", res.name,
		"region_source", region.Source.String(),
		"crop", rect.String(),
		"id", id.ID)
	return res
}
