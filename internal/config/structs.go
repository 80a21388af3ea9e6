//nolint:lll
package config

import "time"

// Config represents the complete configuration for idcrop. It is shared by
// the batch, crop and extract-id commands and supports loading from
// configuration files, environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Crop      CropConfig      `mapstructure:"crop" yaml:"crop" json:"crop"`
	Detector  DetectorConfig  `mapstructure:"detector" yaml:"detector" json:"detector"`
	Heuristic HeuristicConfig `mapstructure:"heuristic" yaml:"heuristic" json:"heuristic"`
	OCR       OCRConfig       `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
	ID        IDConfig        `mapstructure:"id" yaml:"id" json:"id"`
	Batch     BatchConfig     `mapstructure:"batch" yaml:"batch" json:"batch"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output" json:"output"`
	Report    ReportConfig    `mapstructure:"report" yaml:"report" json:"report"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// CropConfig contains the crop rectangle tunables.
type CropConfig struct {
	PaddingFraction float64 `mapstructure:"padding_fraction" yaml:"padding_fraction" json:"padding_fraction"`
	MinSizeFraction float64 `mapstructure:"min_size_fraction" yaml:"min_size_fraction" json:"min_size_fraction"`
}

// DetectorConfig selects and tunes the face detector backend.
type DetectorConfig struct {
	Backend        string        `mapstructure:"backend" yaml:"backend" json:"backend"`
	Command        string        `mapstructure:"command" yaml:"command" json:"command"`
	ModelsDir      string        `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	ModelPath      string        `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	LibraryPath    string        `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	CascadePath    string        `mapstructure:"cascade_path" yaml:"cascade_path" json:"cascade_path"`
	ScoreThreshold float64       `mapstructure:"score_threshold" yaml:"score_threshold" json:"score_threshold"`
	NMSThreshold   float64       `mapstructure:"nms_threshold" yaml:"nms_threshold" json:"nms_threshold"`
	NumThreads     int           `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// HeuristicConfig tunes the skin-colour fallback.
type HeuristicConfig struct {
	SkinThreshold int `mapstructure:"skin_threshold" yaml:"skin_threshold" json:"skin_threshold"`
}

// OCRConfig selects and tunes the OCR backend.
type OCRConfig struct {
	Backend  string        `mapstructure:"backend" yaml:"backend" json:"backend"`
	Command  string        `mapstructure:"command" yaml:"command" json:"command"`
	Language string        `mapstructure:"language" yaml:"language" json:"language"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// IDConfig describes the document number scheme.
type IDConfig struct {
	Prefix    string `mapstructure:"prefix" yaml:"prefix" json:"prefix"`
	MinDigits int    `mapstructure:"min_digits" yaml:"min_digits" json:"min_digits"`
	Require   bool   `mapstructure:"require" yaml:"require" json:"require"`
}

// BatchConfig contains batch processing settings.
type BatchConfig struct {
	Workers             int    `mapstructure:"workers" yaml:"workers" json:"workers"`
	ExternalConcurrency int    `mapstructure:"external_concurrency" yaml:"external_concurrency" json:"external_concurrency"`
	OutputDir           string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	NameByID            bool   `mapstructure:"name_by_id" yaml:"name_by_id" json:"name_by_id"`
	Archive             bool   `mapstructure:"archive" yaml:"archive" json:"archive"`
	Recursive           bool   `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
}

// OutputConfig contains crop encoding settings.
type OutputConfig struct {
	Format      string `mapstructure:"format" yaml:"format" json:"format"`
	JPEGQuality int    `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
}

// ReportConfig controls the batch report.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
}

// MetricsConfig controls metrics export after a batch.
type MetricsConfig struct {
	Textfile    string `mapstructure:"textfile" yaml:"textfile" json:"textfile"`
	Pushgateway string `mapstructure:"pushgateway" yaml:"pushgateway" json:"pushgateway"`
	Job         string `mapstructure:"job" yaml:"job" json:"job"`
}
