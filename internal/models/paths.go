// Package models locates the face detection model files.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Model file names.
const (
	// FaceDetectorONNX is the Ultra-Light-Fast-Generic-Face-Detector RFB 320 model.
	FaceDetectorONNX = "version-RFB-320.onnx"
	// FrontalFaceCascade is OpenCV's default frontal face Haar cascade.
	FrontalFaceCascade = "haarcascade_frontalface_default.xml"
)

// TypeFaces is the subdirectory of the models directory holding face models.
const TypeFaces = "faces"

// DefaultModelsDir is the models directory relative to the project root.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "IDCROP_MODELS_DIR"

// findProjectRoot walks up from the working directory to the first go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.New("could not find project root (go.mod not found)")
}

// GetModelsDir returns the models directory.
// Priority: 1. Explicit modelsDir parameter, 2. Environment variable, 3. Project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// ResolveModelPath finds filename in the models directory, trying
// <dir>/faces/<filename> before <dir>/<filename>. Paths with a directory
// part are returned unchanged.
func ResolveModelPath(modelsDir, filename string) string {
	if filename == "" || filepath.Base(filename) != filename {
		return filename
	}

	baseDir := GetModelsDir(modelsDir)
	organized := filepath.Join(baseDir, TypeFaces, filename)
	if _, err := os.Stat(organized); err == nil {
		return organized
	}
	return filepath.Join(baseDir, filename)
}

// DetectorModelPath resolves the ONNX face model. An empty path means the
// default model.
func DetectorModelPath(modelsDir, path string) string {
	if path == "" {
		path = FaceDetectorONNX
	}
	return ResolveModelPath(modelsDir, path)
}

// CascadePath resolves the Haar cascade. An empty path returns the cascade
// from the models directory when one is there, and "" otherwise so that the
// detector falls back to the system locations.
func CascadePath(modelsDir, path string) string {
	if path != "" {
		return ResolveModelPath(modelsDir, path)
	}
	candidate := ResolveModelPath(modelsDir, FrontalFaceCascade)
	if ValidateModelExists(candidate) == nil {
		return candidate
	}
	return ""
}

// ValidateModelExists checks if a model file exists at the given path.
func ValidateModelExists(modelPath string) error {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	return nil
}
