package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MeKo-Tech/idcrop/internal/detector"
	"github.com/MeKo-Tech/idcrop/internal/models"
	"github.com/MeKo-Tech/idcrop/internal/ocr"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.InDelta(t, 0.20, cfg.Crop.PaddingFraction, 1e-9)
	assert.InDelta(t, 0.30, cfg.Crop.MinSizeFraction, 1e-9)
	assert.Equal(t, 2, cfg.Heuristic.SkinThreshold)
	assert.Equal(t, "HS", cfg.ID.Prefix)
	assert.Equal(t, 7, cfg.ID.MinDigits)
	assert.Equal(t, BackendNone, cfg.Detector.Backend)
	assert.Equal(t, "source", cfg.Output.Format)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "invalid log level"},
		{name: "padding", mutate: func(c *Config) { c.Crop.PaddingFraction = -0.1 }, wantErr: "crop.padding_fraction"},
		{name: "min size", mutate: func(c *Config) { c.Crop.MinSizeFraction = 1.5 }, wantErr: "crop.min_size_fraction"},
		{name: "detector backend", mutate: func(c *Config) { c.Detector.Backend = "magic" }, wantErr: "invalid detector backend"},
		{name: "command missing", mutate: func(c *Config) { c.Detector.Backend = BackendCommand }, wantErr: "detector.command"},
		{name: "score threshold", mutate: func(c *Config) { c.Detector.ScoreThreshold = 2 }, wantErr: "detector.score_threshold"},
		{name: "detector timeout", mutate: func(c *Config) { c.Detector.Timeout = -time.Second }, wantErr: "detector.timeout"},
		{name: "skin threshold", mutate: func(c *Config) { c.Heuristic.SkinThreshold = 0 }, wantErr: "skin_threshold"},
		{name: "ocr backend", mutate: func(c *Config) { c.OCR.Backend = "eyes" }, wantErr: "invalid OCR backend"},
		{name: "min digits", mutate: func(c *Config) { c.ID.MinDigits = 0 }, wantErr: "id.min_digits"},
		{name: "workers", mutate: func(c *Config) { c.Batch.Workers = 0 }, wantErr: "batch workers"},
		{name: "external", mutate: func(c *Config) { c.Batch.ExternalConcurrency = -1 }, wantErr: "external_concurrency"},
		{
			name:    "name by id without ocr",
			mutate:  func(c *Config) { c.Batch.NameByID = true; c.OCR.Backend = BackendNone },
			wantErr: "name_by_id",
		},
		{name: "output format", mutate: func(c *Config) { c.Output.Format = "tiff" }, wantErr: "invalid output format"},
		{name: "jpeg quality", mutate: func(c *Config) { c.Output.JPEGQuality = 101 }, wantErr: "jpeg_quality"},
		{name: "report format", mutate: func(c *Config) { c.Report.Format = "xml" }, wantErr: "invalid report format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestToBatchOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Batch.NameByID = true
	cfg.Batch.Archive = true
	cfg.Output.Format = "PNG"
	cfg.Detector.Timeout = 3 * time.Second

	opts := cfg.ToBatchOptions()
	assert.True(t, opts.NameByID)
	assert.True(t, opts.Archive)
	assert.Equal(t, "png", opts.OutputFormat)
	assert.Equal(t, 3*time.Second, opts.DetectorTimeout)
	require.NotNil(t, opts.Crop)
	assert.Equal(t, cfg.ToCropParams(), *opts.Crop)
	require.NotNil(t, opts.Renderer)
	assert.Equal(t, 90, opts.Renderer.JPEGQuality)
}

func TestToONNXConfig_ResolvesModel(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Detector.ModelsDir = dir

	assert.Equal(t, filepath.Join(dir, models.FaceDetectorONNX), cfg.ToONNXConfig().ModelPath)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, models.TypeFaces), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, models.TypeFaces, "custom.onnx"), []byte("m"), 0o600))
	cfg.Detector.ModelPath = "custom.onnx"
	assert.Equal(t, filepath.Join(dir, models.TypeFaces, "custom.onnx"), cfg.ToONNXConfig().ModelPath)

	cfg.Detector.ModelPath = "/opt/face.onnx"
	assert.Equal(t, "/opt/face.onnx", cfg.ToONNXConfig().ModelPath)
}

func TestNewExtractor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ID.Prefix = "ID-"
	cfg.ID.MinDigits = 5

	ex, err := cfg.NewExtractor()
	require.NoError(t, err)
	assert.Equal(t, "ID-23456", ex.Extract("no 123456 end").ID)
}

func TestNewBackends(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detector.Backend = BackendCommand
	cfg.Detector.Command = "detect-faces --json"
	cfg.OCR.Backend = BackendSidecar

	b, err := cfg.NewBackends()
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	cmd, ok := b.Detector.(*detector.Command)
	require.True(t, ok)
	assert.Equal(t, "detect-faces", cmd.Path)
	assert.Equal(t, []string{"--json"}, cmd.Args)
	assert.IsType(t, ocr.Sidecar{}, b.Recognizer)
}

func TestNewBackends_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	b, err := cfg.NewBackends()
	require.NoError(t, err)
	assert.Nil(t, b.Detector)
	assert.IsType(t, &ocr.Tesseract{}, b.Recognizer)
	require.NoError(t, b.Close())
}

func TestNewBackends_UnbuiltBackends(t *testing.T) {
	if !detector.CascadeAvailable {
		cfg := DefaultConfig()
		cfg.Detector.Backend = BackendCascade
		_, err := cfg.NewBackends()
		require.ErrorIs(t, err, detector.ErrBackendNotBuilt)
	}
	if !ocr.GosseractAvailable {
		cfg := DefaultConfig()
		cfg.OCR.Backend = BackendGosseract
		_, err := cfg.NewBackends()
		require.ErrorIs(t, err, ocr.ErrBackendNotBuilt)
	}

	cfg := DefaultConfig()
	cfg.Detector.Backend = BackendONNX
	cfg.Detector.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")
	_, err := cfg.NewBackends()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file not found")

	cfg = DefaultConfig()
	cfg.Detector.Backend = BackendCascade
	cfg.Detector.CascadePath = filepath.Join(t.TempDir(), "missing.xml")
	_, err = cfg.NewBackends()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file not found")
}

func TestLoader_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := NewLoaderWith(viper.New()).Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Detector.Timeout)
	assert.Equal(t, "output", cfg.Batch.OutputDir)
}

func TestLoader_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idcrop.yaml")
	content := `
log_level: debug
crop:
  padding_fraction: 0.25
detector:
  backend: command
  command: ./detect.sh
  timeout: 2s
id:
  prefix: ID
  require: true
batch:
  workers: 3
  name_by_id: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoaderWith(viper.New()).LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.InDelta(t, 0.25, cfg.Crop.PaddingFraction, 1e-9)
	assert.InDelta(t, 0.30, cfg.Crop.MinSizeFraction, 1e-9)
	assert.Equal(t, BackendCommand, cfg.Detector.Backend)
	assert.Equal(t, 2*time.Second, cfg.Detector.Timeout)
	assert.Equal(t, "ID", cfg.ID.Prefix)
	assert.True(t, cfg.ID.Require)
	assert.Equal(t, 3, cfg.Batch.Workers)
	assert.True(t, cfg.Batch.NameByID)
}

func TestLoader_SearchPathFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "idcrop.yaml"), []byte("report:\n  format: json\n"), 0o600))

	l := NewLoaderWith(viper.New())
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Report.Format)
	assert.Equal(t, "idcrop.yaml", filepath.Base(l.GetConfigFileUsed()))
}

func TestLoader_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("IDCROP_BATCH_WORKERS", "7")
	t.Setenv("IDCROP_ID_PREFIX", "XY")
	t.Setenv("IDCROP_OCR_TIMEOUT", "45s")

	cfg, err := NewLoaderWith(viper.New()).Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Batch.Workers)
	assert.Equal(t, "XY", cfg.ID.Prefix)
	assert.Equal(t, 45*time.Second, cfg.OCR.Timeout)
}

func TestLoader_Errors(t *testing.T) {
	_, err := NewLoaderWith(viper.New()).LoadWithFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	path := filepath.Join(t.TempDir(), "idcrop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch:\n  workers: 0\n"), 0o600))
	_, err = NewLoaderWith(viper.New()).LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")

	require.NoError(t, os.WriteFile(path, []byte("batch: [unclosed\n"), 0o600))
	_, err = NewLoaderWith(viper.New()).LoadWithFile(path)
	require.Error(t, err)
}

func TestGenerateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idcrop.yaml")

	written, err := GenerateDefaultConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, written)

	cfg, err := NewLoaderWith(viper.New()).LoadWithFile(path)
	require.NoError(t, err)
	want := DefaultConfig()
	assert.Equal(t, &want, cfg)

	_, err = GenerateDefaultConfigFile(path)
	require.Error(t, err, "existing file is kept")
}

func TestWriteYAML(t *testing.T) {
	cfg := DefaultConfig()
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, &cfg))

	var back map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	det := back["detector"].(map[string]any)
	assert.Equal(t, "10s", det["timeout"])
	assert.Equal(t, "none", det["backend"])
}

func TestGetConfigSearchPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	paths := GetConfigSearchPaths()
	assert.Equal(t, ".", paths[0])
	assert.Contains(t, paths, filepath.Join("/xdg", "idcrop"))
	assert.Equal(t, "/etc/idcrop", paths[len(paths)-1])
}
