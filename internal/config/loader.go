package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "idcrop"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "IDCROP"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance, which is where the
// root command binds its flags.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWith creates a loader on v.
func NewLoaderWith(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads the first config file found on the search paths, applies
// environment variables and defaults, and validates the result.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithFile is Load with an explicit config file. An empty path searches
// the standard locations and tolerates a missing file.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	cfg, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWithFileWithoutValidation loads configuration without validating it.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		for _, p := range GetConfigSearchPaths() {
			l.v.AddConfigPath(p)
		}
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// setupEnvironmentVariables maps IDCROP_BATCH_WORKERS to batch.workers and so on.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so that environment variables are seen by
// Unmarshal even without a config file.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("crop.padding_fraction", d.Crop.PaddingFraction)
	l.v.SetDefault("crop.min_size_fraction", d.Crop.MinSizeFraction)

	l.v.SetDefault("detector.backend", d.Detector.Backend)
	l.v.SetDefault("detector.command", d.Detector.Command)
	l.v.SetDefault("detector.models_dir", d.Detector.ModelsDir)
	l.v.SetDefault("detector.model_path", d.Detector.ModelPath)
	l.v.SetDefault("detector.library_path", d.Detector.LibraryPath)
	l.v.SetDefault("detector.cascade_path", d.Detector.CascadePath)
	l.v.SetDefault("detector.score_threshold", d.Detector.ScoreThreshold)
	l.v.SetDefault("detector.nms_threshold", d.Detector.NMSThreshold)
	l.v.SetDefault("detector.num_threads", d.Detector.NumThreads)
	l.v.SetDefault("detector.timeout", d.Detector.Timeout)

	l.v.SetDefault("heuristic.skin_threshold", d.Heuristic.SkinThreshold)

	l.v.SetDefault("ocr.backend", d.OCR.Backend)
	l.v.SetDefault("ocr.command", d.OCR.Command)
	l.v.SetDefault("ocr.language", d.OCR.Language)
	l.v.SetDefault("ocr.timeout", d.OCR.Timeout)

	l.v.SetDefault("id.prefix", d.ID.Prefix)
	l.v.SetDefault("id.min_digits", d.ID.MinDigits)
	l.v.SetDefault("id.require", d.ID.Require)

	l.v.SetDefault("batch.workers", d.Batch.Workers)
	l.v.SetDefault("batch.external_concurrency", d.Batch.ExternalConcurrency)
	l.v.SetDefault("batch.output_dir", d.Batch.OutputDir)
	l.v.SetDefault("batch.name_by_id", d.Batch.NameByID)
	l.v.SetDefault("batch.archive", d.Batch.Archive)
	l.v.SetDefault("batch.recursive", d.Batch.Recursive)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.jpeg_quality", d.Output.JPEGQuality)

	l.v.SetDefault("report.format", d.Report.Format)
	l.v.SetDefault("report.file", d.Report.File)

	l.v.SetDefault("metrics.textfile", d.Metrics.Textfile)
	l.v.SetDefault("metrics.pushgateway", d.Metrics.Pushgateway)
	l.v.SetDefault("metrics.job", d.Metrics.Job)
}

// WriteYAML writes cfg as YAML to w.
func WriteYAML(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// GenerateDefaultConfigFile writes the default configuration to filename,
// or idcrop.yaml when filename is empty. An existing file is not overwritten.
func GenerateDefaultConfigFile(filename string) (string, error) {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}

	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // G304: path chosen by the user
	if err != nil {
		return "", fmt.Errorf("create config file: %w", err)
	}
	defaults := DefaultConfig()
	if err := WriteYAML(f, &defaults); err != nil {
		_ = f.Close()
		return "", err
	}
	return filename, f.Close()
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, home)
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	paths = append(paths, "/etc/"+ConfigFileName)
	return paths
}
