package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/MeKo-Tech/idcrop/internal/batch"
	"github.com/MeKo-Tech/idcrop/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// batchSettings are the batch options that only exist on the command line.
type batchSettings struct {
	discover    batch.DiscoverOptions
	progress    bool
	quiet       bool
	archivePath string
}

func newBatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [files or directories...]",
		Short: "Crop the face out of every ID card scan in a set of files",
		Long: `Crop the face region out of many ID card scans in parallel.

Every input produces one output image in the output directory. A bad input
is reported as failed and never stops the rest of the batch. The command
exits non-zero only when no input could be processed.

Images embedded in PDF scans are extracted and processed one by one.

Supported formats: JPEG, PNG, BMP, TIFF, WebP, PDF

Examples:
  idcrop batch scans/*.jpg
  idcrop batch scans/ --recursive --workers 8 --output-dir faces
  idcrop batch scans/ --name-by-id --archive --report-format json
  idcrop batch card.pdf --ocr sidecar --name-by-id --require-id`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd, args)
		},
	}

	f := cmd.Flags()

	// Output flags
	f.StringP("output-dir", "o", "", "directory for cropped images (default from config: output)")
	f.String("format", "", "output image format: jpeg, png or source (default: source)")
	f.Int("jpeg-quality", 0, "JPEG quality 1-100 (default 90)")
	f.Bool("name-by-id", false, "name crops after the ID number read from the card")
	f.Bool("require-id", false, "fail items whose ID number cannot be read")
	f.Bool("archive", false, "package all crops into faces_<timestamp>.zip")
	f.String("archive-path", "", "explicit path of the zip archive")

	// Crop flags
	f.Float64("padding", 0, "padding added on every side as a fraction of the face size (default 0.20)")
	f.Float64("min-size", 0, "minimum crop side as a fraction of the shorter image side (default 0.30)")
	f.Int("skin-threshold", 0, "minimum skin samples for the heuristic region (default 2)")

	// Parallel processing flags
	f.IntP("workers", "w", 0, fmt.Sprintf("number of parallel workers (default: %d)", runtime.NumCPU()))
	f.Int("external-concurrency", 0, "maximum concurrent detector and OCR calls (default: workers)")

	// File discovery flags
	f.BoolP("recursive", "r", false, "recursively scan directories")
	f.StringSlice("include", []string{}, "file patterns to include, e.g. *.jpg")
	f.StringSlice("exclude", []string{}, "file patterns to exclude")

	// Report flags
	f.String("report-format", "", "report format: text, json, csv, yaml (default text)")
	f.String("report-file", "", "write the report to a file instead of stdout")

	// Progress and monitoring flags
	f.Bool("progress", false, "show a progress bar on stderr")
	f.Bool("quiet", false, "suppress progress and statistics output")
	f.String("metrics-textfile", "", "write run metrics to a node_exporter textfile")
	f.String("pushgateway", "", "push run metrics to this Pushgateway URL")

	return cmd
}

// applyBatchFlags overrides cfg with the batch flags the user set.
func applyBatchFlags(cmd *cobra.Command, cfg *config.Config) batchSettings {
	f := cmd.Flags()

	if f.Changed("output-dir") {
		cfg.Batch.OutputDir, _ = f.GetString("output-dir")
	}
	if f.Changed("format") {
		cfg.Output.Format, _ = f.GetString("format")
	}
	if f.Changed("jpeg-quality") {
		cfg.Output.JPEGQuality, _ = f.GetInt("jpeg-quality")
	}
	if f.Changed("name-by-id") {
		cfg.Batch.NameByID, _ = f.GetBool("name-by-id")
	}
	if f.Changed("require-id") {
		cfg.ID.Require, _ = f.GetBool("require-id")
	}
	if f.Changed("archive") {
		cfg.Batch.Archive, _ = f.GetBool("archive")
	}
	if f.Changed("padding") {
		cfg.Crop.PaddingFraction, _ = f.GetFloat64("padding")
	}
	if f.Changed("min-size") {
		cfg.Crop.MinSizeFraction, _ = f.GetFloat64("min-size")
	}
	if f.Changed("skin-threshold") {
		cfg.Heuristic.SkinThreshold, _ = f.GetInt("skin-threshold")
	}
	if f.Changed("workers") {
		cfg.Batch.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("external-concurrency") {
		cfg.Batch.ExternalConcurrency, _ = f.GetInt("external-concurrency")
	}
	if f.Changed("recursive") {
		cfg.Batch.Recursive, _ = f.GetBool("recursive")
	}
	if f.Changed("report-format") {
		cfg.Report.Format, _ = f.GetString("report-format")
	}
	if f.Changed("report-file") {
		cfg.Report.File, _ = f.GetString("report-file")
	}
	if f.Changed("metrics-textfile") {
		cfg.Metrics.Textfile, _ = f.GetString("metrics-textfile")
	}
	if f.Changed("pushgateway") {
		cfg.Metrics.Pushgateway, _ = f.GetString("pushgateway")
	}

	var s batchSettings
	s.discover.Recursive = cfg.Batch.Recursive
	s.discover.Include, _ = f.GetStringSlice("include")
	s.discover.Exclude, _ = f.GetStringSlice("exclude")
	s.progress, _ = f.GetBool("progress")
	s.quiet, _ = f.GetBool("quiet")
	s.archivePath, _ = f.GetString("archive-path")
	return s
}

func (a *app) runBatch(cmd *cobra.Command, args []string) error {
	cfg := a.config()
	settings := applyBatchFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	pdfDir, err := os.MkdirTemp("", "idcrop-pdf-*")
	if err != nil {
		return fmt.Errorf("create PDF work directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(pdfDir) }()
	settings.discover.PDFDir = pdfDir

	items, err := batch.Discover(args, settings.discover)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return batch.ErrNoItems
	}

	registry := prometheus.NewRegistry()
	opts, closeBackends, err := newBatchOptions(&cfg, batch.NewMetrics(registry))
	if err != nil {
		return err
	}
	defer func() { _ = closeBackends() }()
	opts.ArchivePath = settings.archivePath

	switch {
	case settings.progress && !settings.quiet:
		opts.Progress = batch.NewConsoleProgressCallback(cmd.ErrOrStderr(), "Cropping: ")
	case !settings.quiet:
		opts.Progress = batch.NewLogProgressCallback(slog.Default(), slog.LevelInfo, 0)
	}

	o, err := batch.New(opts)
	if err != nil {
		return err
	}

	report, runErr := o.Run(cmd.Context(), items)
	if report == nil {
		return runErr
	}

	if err := report.Save(cmd.OutOrStdout(), cfg.Report.Format, cfg.Report.File); err != nil {
		return err
	}
	if !settings.quiet {
		report.PrintStats(cmd.ErrOrStderr())
	}

	if cfg.Metrics.Textfile != "" {
		if err := batch.WriteTextfile(cfg.Metrics.Textfile, registry); err != nil {
			slog.Warn("Failed to write metrics", "error", err)
		}
	}
	if cfg.Metrics.Pushgateway != "" {
		if err := batch.Push(cfg.Metrics.Pushgateway, cfg.Metrics.Job, registry); err != nil {
			slog.Warn("Failed to push metrics", "error", err)
		}
	}

	return runErr
}

// newBatchOptions builds orchestrator options with the configured backends.
// The returned function releases the backends.
func newBatchOptions(cfg *config.Config, metrics *batch.Metrics) (batch.Options, func() error, error) {
	extractor, err := cfg.NewExtractor()
	if err != nil {
		return batch.Options{}, nil, err
	}
	backends, err := cfg.NewBackends()
	if err != nil {
		return batch.Options{}, nil, err
	}

	opts := cfg.ToBatchOptions()
	opts.Detector = backends.Detector
	opts.Recognizer = backends.Recognizer
	opts.Extractor = extractor
	opts.Metrics = metrics
	opts.Now = time.Now
	return opts, backends.Close, nil
}
