package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/idcrop/internal/geometry"
	"github.com/MeKo-Tech/idcrop/internal/imageio"
)

// commandWaitDelay bounds how long output pipes are drained after the
// command is killed.
const commandWaitDelay = time.Second

// Command runs an external face detection program. The program receives the
// image path as its last argument and prints face boxes to stdout, either one
// "x y w h" per line or a JSON array of {"x","y","width","height"} objects or
// [x,y,w,h] arrays. A non-zero exit status means detection is unavailable.
// Lines that are not boxes are ignored, so chatty scripts still work.
type Command struct {
	Path string
	Args []string
}

// NewCommand builds a Command detector from a shell-style command line.
func NewCommand(commandLine string) (*Command, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, errors.New("detector command is empty")
	}
	return &Command{Path: fields[0], Args: fields[1:]}, nil
}

// Detect runs the command for src.
func (c *Command) Detect(ctx context.Context, src *imageio.SourceImage) ([]geometry.Rect, error) {
	args := append(append([]string{}, c.Args...), src.Path)
	cmd := exec.CommandContext(ctx, c.Path, args...) //nolint:gosec // G204: the detector command is operator configuration

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = commandWaitDelay

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("detector command %s: %w", c.Path, ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return nil, fmt.Errorf("detector command %s failed: %w: %s", c.Path, err, msg)
	}

	boxes, err := ParseBoxes(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("detector command %s: %w", c.Path, err)
	}
	slog.Debug("Detector command finished", "path", src.Path, "faces", len(boxes))
	return boxes, nil
}

// ParseBoxes reads detector output in either supported format.
func ParseBoxes(out []byte) ([]geometry.Rect, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		return parseJSONBoxes(trimmed)
	}

	var boxes []geometry.Rect
	for _, line := range strings.Split(string(trimmed), "\n") {
		if r, ok := parseBoxLine(line); ok {
			boxes = append(boxes, r)
		}
	}
	return boxes, nil
}

func parseJSONBoxes(data []byte) ([]geometry.Rect, error) {
	var objects []geometry.Rect
	if err := json.Unmarshal(data, &objects); err == nil {
		return objects, nil
	}

	var tuples [][]int
	if err := json.Unmarshal(data, &tuples); err != nil {
		return nil, fmt.Errorf("invalid detector JSON: %w", err)
	}
	boxes := make([]geometry.Rect, 0, len(tuples))
	for _, t := range tuples {
		if len(t) != 4 {
			return nil, fmt.Errorf("invalid detector box %v: want 4 values", t)
		}
		boxes = append(boxes, geometry.Rect{X: t[0], Y: t[1], Width: t[2], Height: t[3]})
	}
	return boxes, nil
}

// parseBoxLine accepts four integers separated by spaces or commas.
func parseBoxLine(line string) (geometry.Rect, bool) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == '\r'
	})
	if len(fields) != 4 {
		return geometry.Rect{}, false
	}
	var v [4]int
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return geometry.Rect{}, false
		}
		v[i] = n
	}
	return geometry.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, true
}
