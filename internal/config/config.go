package config

import (
	"fmt"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/MeKo-Tech/idcrop/internal/batch"
	"github.com/MeKo-Tech/idcrop/internal/detector"
	"github.com/MeKo-Tech/idcrop/internal/face"
	"github.com/MeKo-Tech/idcrop/internal/geometry"
	"github.com/MeKo-Tech/idcrop/internal/idtext"
	"github.com/MeKo-Tech/idcrop/internal/models"
	"github.com/MeKo-Tech/idcrop/internal/ocr"
	"github.com/MeKo-Tech/idcrop/internal/render"
)

// Backend names accepted by detector.backend and ocr.backend.
const (
	BackendNone      = "none"
	BackendCommand   = "command"
	BackendONNX      = "onnx"
	BackendCascade   = "cascade"
	BackendTesseract = "tesseract"
	BackendSidecar   = "sidecar"
	BackendGosseract = "gosseract"
)

var (
	validLogLevels        = []string{"debug", "info", "warn", "error"}
	validDetectorBackends = []string{BackendNone, BackendCommand, BackendONNX, BackendCascade}
	validOCRBackends      = []string{BackendNone, BackendTesseract, BackendSidecar, BackendGosseract}
	validOutputFormats    = []string{"jpeg", "jpg", "png", batch.FormatSource}
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	crop := geometry.DefaultCropParams()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Crop: CropConfig{
			PaddingFraction: crop.PaddingFraction,
			MinSizeFraction: crop.MinSizeFraction,
		},
		Detector: DetectorConfig{
			Backend:        BackendNone,
			ScoreThreshold: 0.7,
			NMSThreshold:   0.3,
			Timeout:        10 * time.Second,
		},
		Heuristic: HeuristicConfig{
			SkinThreshold: face.DefaultSkinThreshold,
		},
		OCR: OCRConfig{
			Backend:  BackendTesseract,
			Command:  "tesseract",
			Language: ocr.DefaultLanguage,
			Timeout:  30 * time.Second,
		},
		ID: IDConfig{
			Prefix:    idtext.DefaultPrefix,
			MinDigits: idtext.DefaultMinDigits,
			Require:   false,
		},
		Batch: BatchConfig{
			Workers:             runtime.NumCPU(),
			ExternalConcurrency: 0,
			OutputDir:           "output",
		},
		Output: OutputConfig{
			Format:      batch.FormatSource,
			JPEGQuality: render.DefaultJPEGQuality,
		},
		Report: ReportConfig{
			Format: "text",
		},
		Metrics: MetricsConfig{
			Job: "idcrop",
		},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if err := validateFraction(c.Crop.PaddingFraction, "crop.padding_fraction"); err != nil {
		return err
	}
	if err := validateFraction(c.Crop.MinSizeFraction, "crop.min_size_fraction"); err != nil {
		return err
	}

	if err := c.validateDetector(); err != nil {
		return err
	}
	if c.Heuristic.SkinThreshold < 1 {
		return fmt.Errorf("invalid heuristic.skin_threshold: %d (must be positive)", c.Heuristic.SkinThreshold)
	}
	if err := c.validateOCR(); err != nil {
		return err
	}

	if c.ID.MinDigits < 1 {
		return fmt.Errorf("invalid id.min_digits: %d (must be positive)", c.ID.MinDigits)
	}

	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}
	if c.Batch.ExternalConcurrency < 0 {
		return fmt.Errorf("invalid batch.external_concurrency: %d (must not be negative)", c.Batch.ExternalConcurrency)
	}
	if c.Batch.NameByID && c.OCR.Backend == BackendNone {
		return fmt.Errorf("batch.name_by_id needs an OCR backend (ocr.backend is %q)", BackendNone)
	}

	if !slices.Contains(validOutputFormats, strings.ToLower(c.Output.Format)) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validOutputFormats, ", "))
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("invalid output.jpeg_quality: %d (must be between 1 and 100)", c.Output.JPEGQuality)
	}
	if !slices.Contains(batch.ReportFormats, c.Report.Format) {
		return fmt.Errorf("invalid report format: %s (must be one of: %s)", c.Report.Format, strings.Join(batch.ReportFormats, ", "))
	}
	return nil
}

func (c *Config) validateDetector() error {
	d := c.Detector
	if !slices.Contains(validDetectorBackends, d.Backend) {
		return fmt.Errorf("invalid detector backend: %s (must be one of: %s)", d.Backend, strings.Join(validDetectorBackends, ", "))
	}
	if d.Backend == BackendCommand && strings.TrimSpace(d.Command) == "" {
		return fmt.Errorf("detector.command is required for the %q backend", BackendCommand)
	}
	if err := validateFraction(d.ScoreThreshold, "detector.score_threshold"); err != nil {
		return err
	}
	if err := validateFraction(d.NMSThreshold, "detector.nms_threshold"); err != nil {
		return err
	}
	if d.Timeout < 0 {
		return fmt.Errorf("invalid detector.timeout: %v (must not be negative)", d.Timeout)
	}
	return nil
}

func (c *Config) validateOCR() error {
	o := c.OCR
	if !slices.Contains(validOCRBackends, o.Backend) {
		return fmt.Errorf("invalid OCR backend: %s (must be one of: %s)", o.Backend, strings.Join(validOCRBackends, ", "))
	}
	if o.Timeout < 0 {
		return fmt.Errorf("invalid ocr.timeout: %v (must not be negative)", o.Timeout)
	}
	return nil
}

// ToCropParams converts the crop section.
func (c *Config) ToCropParams() geometry.CropParams {
	return geometry.CropParams{
		PaddingFraction: c.Crop.PaddingFraction,
		MinSizeFraction: c.Crop.MinSizeFraction,
	}
}

// ToONNXConfig converts the detector section for the ONNX backend.
func (c *Config) ToONNXConfig() detector.ONNXConfig {
	return detector.ONNXConfig{
		ModelPath:      models.DetectorModelPath(c.Detector.ModelsDir, c.Detector.ModelPath),
		LibraryPath:    c.Detector.LibraryPath,
		ScoreThreshold: float32(c.Detector.ScoreThreshold),
		NMSThreshold:   c.Detector.NMSThreshold,
		NumThreads:     c.Detector.NumThreads,
	}
}

// NewExtractor builds the ID extractor for the id section.
func (c *Config) NewExtractor() (*idtext.Extractor, error) {
	return idtext.New(c.ID.Prefix, c.ID.MinDigits)
}

// ToBatchOptions converts everything but the capabilities, which come from
// Backends.
func (c *Config) ToBatchOptions() batch.Options {
	crop := c.ToCropParams()
	return batch.Options{
		Renderer:            render.New(c.Output.JPEGQuality),
		Crop:                &crop,
		SkinThreshold:       c.Heuristic.SkinThreshold,
		OutputDir:           c.Batch.OutputDir,
		OutputFormat:        strings.ToLower(c.Output.Format),
		NameByID:            c.Batch.NameByID,
		RequireID:           c.ID.Require,
		Archive:             c.Batch.Archive,
		Workers:             c.Batch.Workers,
		ExternalConcurrency: c.Batch.ExternalConcurrency,
		DetectorTimeout:     c.Detector.Timeout,
		OCRTimeout:          c.OCR.Timeout,
	}
}

// validateFraction validates that a value is between 0.0 and 1.0.
func validateFraction(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}
