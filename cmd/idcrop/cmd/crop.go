package cmd

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/idcrop/internal/batch"
	"github.com/spf13/cobra"
)

func newCropCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crop <image>",
		Short: "Crop the face out of a single ID card scan",
		Long: `Crop the face region out of one ID card scan and print where it was found.

Examples:
  idcrop crop card.jpg
  idcrop crop card.png --output-dir faces --format jpeg
  idcrop crop card.jpg --name-by-id --ocr sidecar`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCrop(cmd, args[0])
		},
	}

	f := cmd.Flags()
	f.StringP("output-dir", "o", "", "directory for the cropped image (default from config: output)")
	f.String("format", "", "output image format: jpeg, png or source (default: source)")
	f.Int("jpeg-quality", 0, "JPEG quality 1-100 (default 90)")
	f.Bool("name-by-id", false, "name the crop after the ID number read from the card")
	f.Bool("require-id", false, "fail when the ID number cannot be read")
	f.Float64("padding", 0, "padding added on every side as a fraction of the face size (default 0.20)")
	f.Float64("min-size", 0, "minimum crop side as a fraction of the shorter image side (default 0.30)")
	f.Int("skin-threshold", 0, "minimum skin samples for the heuristic region (default 2)")
	return cmd
}

func (a *app) runCrop(cmd *cobra.Command, path string) error {
	cfg := a.config()
	applyBatchFlags(cmd, &cfg)
	cfg.Batch.Workers = 1
	cfg.Batch.Archive = false
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts, closeBackends, err := newBatchOptions(&cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = closeBackends() }()

	o, err := batch.New(opts)
	if err != nil {
		return err
	}

	report, err := o.Run(cmd.Context(), []batch.Item{{Path: path}})
	if report == nil || len(report.Results) == 0 {
		return err
	}
	r := report.Results[0]
	if !r.Succeeded() {
		return errors.New(r.Message)
	}

	out := cmd.OutOrStdout()
	if r.RegionSource != nil {
		_, _ = fmt.Fprintf(out, "Face region: %s\n", r.RegionSource)
	}
	if r.CropRect != nil {
		_, _ = fmt.Fprintf(out, "Crop: x=%d y=%d width=%d height=%d\n",
			r.CropRect.X, r.CropRect.Y, r.CropRect.Width, r.CropRect.Height)
	}
	if r.ID != "" {
		_, _ = fmt.Fprintf(out, "ID: %s (%s)\n", r.ID, r.IDTier)
	}
	_, _ = fmt.Fprintf(out, "Written: %s\n", r.OutputPath)
	return nil
}
