package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MeKo-Tech/idcrop/internal/detector"
	"github.com/MeKo-Tech/idcrop/internal/face"
	"github.com/MeKo-Tech/idcrop/internal/models"
	"github.com/MeKo-Tech/idcrop/internal/ocr"
)

// Backends holds the capabilities selected by the configuration. Close
// releases whatever the backends hold open.
type Backends struct {
	Detector   face.Detector
	Recognizer ocr.Recognizer
	closers    []io.Closer
}

// Close releases native resources held by the backends.
func (b *Backends) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c.Close())
	}
	b.closers = nil
	return errors.Join(errs...)
}

// NewBackends builds the detector and OCR backends named in the config. A
// "none" backend leaves the field nil.
func (c *Config) NewBackends() (*Backends, error) {
	b := &Backends{}

	switch c.Detector.Backend {
	case BackendNone, "":
	case BackendCommand:
		cmd, err := detector.NewCommand(c.Detector.Command)
		if err != nil {
			return nil, err
		}
		b.Detector = cmd
	case BackendONNX:
		onnxCfg := c.ToONNXConfig()
		if err := models.ValidateModelExists(onnxCfg.ModelPath); err != nil {
			return nil, fmt.Errorf("create ONNX detector: %w", err)
		}
		d, err := detector.NewONNX(onnxCfg)
		if err != nil {
			return nil, fmt.Errorf("create ONNX detector: %w", err)
		}
		b.Detector = d
		b.closers = append(b.closers, d)
	case BackendCascade:
		path := models.CascadePath(c.Detector.ModelsDir, c.Detector.CascadePath)
		if path != "" {
			if err := models.ValidateModelExists(path); err != nil {
				return nil, fmt.Errorf("create cascade detector: %w", err)
			}
		}
		d, err := detector.NewCascade(path)
		if err != nil {
			return nil, fmt.Errorf("create cascade detector: %w", err)
		}
		b.Detector = d
		b.closers = append(b.closers, d)
	default:
		return nil, fmt.Errorf("unknown detector backend %q", c.Detector.Backend)
	}

	switch c.OCR.Backend {
	case BackendNone, "":
	case BackendTesseract:
		b.Recognizer = ocr.NewTesseract(c.OCR.Command, c.OCR.Language)
	case BackendSidecar:
		b.Recognizer = ocr.Sidecar{}
	case BackendGosseract:
		g, err := ocr.NewGosseract(c.OCR.Language)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("create gosseract recognizer: %w", err)
		}
		b.Recognizer = g
	default:
		_ = b.Close()
		return nil, fmt.Errorf("unknown OCR backend %q", c.OCR.Backend)
	}

	slog.Debug("Backends ready", "detector", c.Detector.Backend, "ocr", c.OCR.Backend)
	return b, nil
}
