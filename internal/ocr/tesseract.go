package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Tesseract shells out to the tesseract binary.
type Tesseract struct {
	Command  string
	Language string
}

// NewTesseract returns a recognizer using command (default "tesseract").
func NewTesseract(command, language string) *Tesseract {
	if command == "" {
		command = "tesseract"
	}
	if language == "" {
		language = DefaultLanguage
	}
	return &Tesseract{Command: command, Language: language}
}

// Args returns the tesseract arguments used for path.
func (t *Tesseract) Args(path string) []string {
	return []string{
		path, "stdout",
		"-l", t.Language,
		"--psm", strconv.Itoa(DefaultPageSegMode),
		"-c", "preserve_interword_spaces=1",
		"-c", "tessedit_char_whitelist=" + CharWhitelist,
	}
}

// Recognize runs tesseract on path and returns its stdout.
func (t *Tesseract) Recognize(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, t.Command, t.Args(path)...) //nolint:gosec // G204: binary comes from configuration

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("tesseract %s: %w", path, ctxErr)
		}
		return "", fmt.Errorf("tesseract %s failed: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
