package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/MeKo-Tech/idcrop/internal/config"
	"github.com/MeKo-Tech/idcrop/internal/version"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the state shared by one command tree.
type app struct {
	cfgFile string
	loader  *config.Loader
	cfg     *config.Config
}

// NewRootCmd builds the idcrop command tree. Every call returns an
// independent tree with its own configuration state.
func NewRootCmd() *cobra.Command {
	a := &app{loader: config.NewLoaderWith(viper.New())}

	cmd := &cobra.Command{
		Use:   "idcrop",
		Short: "Crop faces out of ID card scans and name them by ID number",
		Long: `idcrop finds the portrait on scanned ID cards, crops it with padding
and writes one image per card. Crops can be named after the ID number read
from the card with OCR and packaged into a zip archive.

The face region comes from a configured detector when one is available,
then from a skin-colour heuristic, and finally from the image centre.

Examples:
  idcrop batch scans/ --recursive --output-dir faces
  idcrop batch scans/*.jpg --name-by-id --archive
  idcrop crop card.jpg
  idcrop extract-id "NAME JOHN DOE 12345678 EXP 2030"
  idcrop config init`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "",
		"config file (default is search in ., $HOME, $XDG_CONFIG_HOME/idcrop, /etc/idcrop)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")

	pf.String("detector", config.BackendNone, "face detector backend: none, command, onnx, cascade")
	pf.String("detector-command", "", "command line of an external face detector")
	pf.String("detector-model", "", "ONNX face detection model, a path or a file name in the models directory")
	pf.String("models-dir", "", "directory with face models (default: $IDCROP_MODELS_DIR or ./models)")
	pf.Duration("detector-timeout", 0, "timeout per detector call (default from config)")
	pf.String("ocr", config.BackendTesseract, "OCR backend: none, tesseract, sidecar, gosseract")
	pf.String("ocr-command", "", "tesseract executable")
	pf.String("ocr-language", "", "tesseract language")
	pf.Duration("ocr-timeout", 0, "timeout per OCR call (default from config)")
	pf.String("id-prefix", "", "prefix prepended to extracted ID numbers")
	pf.Int("id-min-digits", 0, "minimum digit run of an ID number")

	v := a.loader.GetViper()
	for key, flag := range map[string]string{
		"verbose":             "verbose",
		"log_level":           "log-level",
		"detector.backend":    "detector",
		"detector.command":    "detector-command",
		"detector.model_path": "detector-model",
		"detector.models_dir": "models-dir",
		"detector.timeout":    "detector-timeout",
		"ocr.backend":         "ocr",
		"ocr.command":         "ocr-command",
		"ocr.language":        "ocr-language",
		"ocr.timeout":         "ocr-timeout",
		"id.prefix":           "id-prefix",
		"id.min_digits":       "id-min-digits",
	} {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}

	cmd.AddCommand(
		newBatchCmd(a),
		newCropCmd(a),
		newExtractIDCmd(a),
		newConfigCmd(a),
	)
	return cmd
}

// init loads .env and the configuration, then sets up logging.
func (a *app) init(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := a.loader.LoadWithFileWithoutValidation(a.cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	a.cfg = cfg

	logLevel := slog.LevelInfo
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			logLevel = slog.LevelDebug
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		}
	}

	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Debug("Configuration loaded", "file", a.loader.GetConfigFileUsed())
	return nil
}

// config returns a copy of the loaded configuration for a command to
// apply its own flag overrides to.
func (a *app) config() config.Config {
	if a.cfg == nil {
		return config.DefaultConfig()
	}
	return *a.cfg
}
