package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/MeKo-Tech/idcrop/internal/config"
	"github.com/spf13/cobra"
)

func newExtractIDCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract-id [text]",
		Short: "Extract the ID number from OCR text or a card image",
		Long: `Extract the ID number from text. The text is taken from the arguments,
from a file with --file, or read from a card image with the OCR backend
when --image is given.

Examples:
  idcrop extract-id "NAME JOHN DOE 12345678 EXP 2030"
  idcrop extract-id --file card.txt --id-prefix ID
  idcrop extract-id --image card.jpg --ocr tesseract --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExtractID(cmd, args)
		},
	}

	cmd.Flags().String("file", "", "read the text from a file")
	cmd.Flags().String("image", "", "read the text from an image with the OCR backend")
	cmd.Flags().Bool("strict", false, "exit with an error when no ID number is found")
	return cmd
}

func (a *app) runExtractID(cmd *cobra.Command, args []string) error {
	cfg := a.config()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	text, err := extractIDInput(cmd, &cfg, args)
	if err != nil {
		return err
	}

	extractor, err := cfg.NewExtractor()
	if err != nil {
		return err
	}

	strict, _ := cmd.Flags().GetBool("strict")
	id, err := extractor.ExtractStrict(text)
	out := cmd.OutOrStdout()
	if err != nil {
		if strict {
			return err
		}
		_, _ = fmt.Fprintln(out, "no ID found")
		return nil
	}
	_, _ = fmt.Fprintf(out, "%s (%s)\n", id.ID, id.Tier)
	return nil
}

// extractIDInput returns the text named by the arguments and flags.
func extractIDInput(cmd *cobra.Command, cfg *config.Config, args []string) (string, error) {
	file, _ := cmd.Flags().GetString("file")
	image, _ := cmd.Flags().GetString("image")

	sources := 0
	for _, set := range []bool{len(args) > 0, file != "", image != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return "", errors.New("provide exactly one of: text arguments, --file or --image")
	}

	switch {
	case file != "":
		data, err := os.ReadFile(file) //nolint:gosec // G304: path chosen by the user
		if err != nil {
			return "", fmt.Errorf("read text file: %w", err)
		}
		return string(data), nil
	case image != "":
		backends, err := cfg.NewBackends()
		if err != nil {
			return "", err
		}
		defer func() { _ = backends.Close() }()
		if backends.Recognizer == nil {
			return "", errors.New("--image requires an OCR backend")
		}
		ctx := cmd.Context()
		if cfg.OCR.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.OCR.Timeout)
			defer cancel()
		}
		text, err := backends.Recognizer.Recognize(ctx, image)
		if err != nil {
			return "", fmt.Errorf("recognize %s: %w", image, err)
		}
		return text, nil
	default:
		return strings.Join(args, " "), nil
	}
}
