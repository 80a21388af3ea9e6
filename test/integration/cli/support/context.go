package support

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Command execution state
	LastCommand  string
	LastOutput   string
	LastStdout   string
	LastError    error
	LastExitCode int
	LastDuration time.Duration

	// Test environment
	OriginalDir string
	TempDir     string
	EnvVars     map[string]string
}

// NewTestContext creates a scenario context with its own temporary
// directory. Enter switches the process into it.
func NewTestContext() (*TestContext, error) {
	originalDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "idcrop-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &TestContext{
		OriginalDir: originalDir,
		TempDir:     tempDir,
		EnvVars:     map[string]string{},
	}, nil
}

// Enter makes the scenario directory the working directory, so relative
// paths in feature files and the config search path resolve inside it.
func (testCtx *TestContext) Enter() error {
	if err := os.Chdir(testCtx.TempDir); err != nil {
		return fmt.Errorf("failed to enter %s: %w", testCtx.TempDir, err)
	}
	return nil
}

// Cleanup restores the working directory and environment and removes the
// scenario directory.
func (testCtx *TestContext) Cleanup() error {
	var errs []error

	if err := os.Chdir(testCtx.OriginalDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to restore working directory: %w", err))
	}

	for name := range testCtx.EnvVars {
		if err := os.Unsetenv(name); err != nil {
			errs = append(errs, fmt.Errorf("failed to unset %s: %w", name, err))
		}
	}

	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}

	return errors.Join(errs...)
}

// SetEnvVar sets an environment variable until Cleanup.
func (testCtx *TestContext) SetEnvVar(name, value string) error {
	testCtx.EnvVars[name] = value
	return os.Setenv(name, value)
}

// Path resolves a feature-file path inside the scenario directory.
func (testCtx *TestContext) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(testCtx.TempDir, name)
}
