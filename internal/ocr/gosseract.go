//go:build ocr_gosseract

package ocr

import (
	"context"
	"fmt"
	"strconv"

	"github.com/otiai10/gosseract/v2"
)

// GosseractAvailable reports whether the gosseract backend is compiled in.
const GosseractAvailable = true

// Gosseract recognizes text in-process through libtesseract.
type Gosseract struct {
	Language      string
	clientFactory func() *gosseract.Client
}

// NewGosseract returns a recognizer for language.
func NewGosseract(language string) (*Gosseract, error) {
	if language == "" {
		language = DefaultLanguage
	}
	return &Gosseract{Language: language, clientFactory: gosseract.NewClient}, nil
}

// Recognize runs tesseract on path with the same settings as the CLI backend.
func (g *Gosseract) Recognize(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := g.clientFactory()
	defer func() { _ = c.Close() }()

	if err := c.SetImage(path); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	if err := c.SetLanguage(g.Language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PageSegMode(DefaultPageSegMode)); err != nil {
		return "", fmt.Errorf("set page segmentation mode: %w", err)
	}
	if err := c.SetVariable(gosseract.SettableVariable("preserve_interword_spaces"), strconv.Itoa(1)); err != nil {
		return "", fmt.Errorf("set variable: %w", err)
	}
	if err := c.SetWhitelist(CharWhitelist); err != nil {
		return "", fmt.Errorf("set whitelist: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}
