package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/MeKo-Tech/idcrop/internal/geometry"
	"github.com/MeKo-Tech/idcrop/internal/imageio"
	"github.com/MeKo-Tech/idcrop/internal/mempool"
	"github.com/disintegration/imaging"
	"github.com/yalue/onnxruntime_go"
)

const (
	defaultInputWidth  = 320
	defaultInputHeight = 240
	pixelMean          = 127.0
	pixelScale         = 128.0
)

// ONNXConfig configures the ONNX face detector.
type ONNXConfig struct {
	ModelPath      string
	LibraryPath    string
	ScoreThreshold float32
	NMSThreshold   float64
	NumThreads     int
}

// DefaultONNXConfig returns thresholds suited to the Ultra-Light face models.
func DefaultONNXConfig() ONNXConfig {
	return ONNXConfig{ScoreThreshold: 0.7, NMSThreshold: 0.3}
}

// ONNX runs an Ultra-Light-Fast-Generic-Face-Detector style model: one NCHW
// image input and two outputs, per-anchor [background, face] scores and
// normalised [x1, y1, x2, y2] boxes.
type ONNX struct {
	config      ONNXConfig
	session     *onnxruntime_go.DynamicAdvancedSession
	inputWidth  int
	inputHeight int
	mu          sync.RWMutex
}

// NewONNX loads the model and creates an inference session.
func NewONNX(config ONNXConfig) (*ONNX, error) {
	if config.ModelPath == "" {
		return nil, errors.New("onnx detector needs a model path")
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	slog.Debug("Initializing face detector",
		"model_path", config.ModelPath,
		"score_threshold", config.ScoreThreshold,
		"nms_threshold", config.NMSThreshold)

	if err := initRuntime(config.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(config.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("expected 1 input, got %d", len(inputs))
	}
	if len(outputs) != 2 {
		return nil, fmt.Errorf("expected 2 outputs (scores, boxes), got %d", len(outputs))
	}
	scoresName, boxesName, err := outputNames(outputs)
	if err != nil {
		return nil, err
	}

	width, height := defaultInputWidth, defaultInputHeight
	if dims := inputs[0].Dimensions; len(dims) == 4 && dims[2] > 0 && dims[3] > 0 {
		height, width = int(dims[2]), int(dims[3])
	}

	options, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := options.Destroy(); err != nil {
			slog.Warn("Failed to destroy session options", "error", err)
		}
	}()
	if config.NumThreads > 0 {
		if err := options.SetIntraOpNumThreads(config.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxruntime_go.NewDynamicAdvancedSession(config.ModelPath,
		[]string{inputs[0].Name}, []string{scoresName, boxesName}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNX{config: config, session: session, inputWidth: width, inputHeight: height}, nil
}

// outputNames tells the score output (last dim 2) from the box output (last dim 4).
func outputNames(outputs []onnxruntime_go.InputOutputInfo) (string, string, error) {
	var scores, boxes string
	for _, o := range outputs {
		dims := o.Dimensions
		if len(dims) == 0 {
			continue
		}
		switch dims[len(dims)-1] {
		case 2:
			scores = o.Name
		case 4:
			boxes = o.Name
		}
	}
	if scores == "" || boxes == "" {
		return "", "", fmt.Errorf("cannot identify scores/boxes outputs in %v", outputs)
	}
	return scores, boxes, nil
}

// Close releases the session.
func (d *ONNX) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			return fmt.Errorf("failed to destroy detector session: %w", err)
		}
		d.session = nil
	}
	return nil
}

// Detect runs the model on src and returns faces best first.
func (d *ONNX) Detect(ctx context.Context, src *imageio.SourceImage) ([]geometry.Rect, error) {
	if !src.Decoded() {
		return nil, imageio.ErrDecode
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.session == nil {
		return nil, errors.New("detector session is closed")
	}

	data := imageToTensor(src.Image, d.inputWidth, d.inputHeight)
	defer mempool.PutFloat32(data)
	input, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(1, 3, int64(d.inputHeight), int64(d.inputWidth)), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer destroyValue(input)

	outputs := []onnxruntime_go.Value{nil, nil}
	if err := d.session.Run([]onnxruntime_go.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer destroyValue(outputs[0])
	defer destroyValue(outputs[1])

	scores, ok := outputs[0].(*onnxruntime_go.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("expected float32 scores, got %T", outputs[0])
	}
	boxes, ok := outputs[1].(*onnxruntime_go.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("expected float32 boxes, got %T", outputs[1])
	}

	found := decodeFaces(scores.GetData(), boxes.GetData(), d.config.ScoreThreshold, src.Width, src.Height)
	found = NonMaxSuppression(found, d.config.NMSThreshold)
	return rects(found), nil
}

func destroyValue(v onnxruntime_go.Value) {
	if v == nil {
		return
	}
	if err := v.Destroy(); err != nil {
		slog.Warn("Failed to destroy tensor", "error", err)
	}
}

// imageToTensor resizes img to width x height and lays it out as normalised
// NCHW float32 RGB. The slice comes from mempool; release it with
// mempool.PutFloat32 after the tensor built on it is destroyed.
func imageToTensor(img image.Image, width, height int) []float32 {
	resized := imaging.Resize(img, width, height, imaging.Linear)
	plane := width * height
	data := mempool.GetFloat32(3 * plane)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := resized.PixOffset(x, y)
			p := y*width + x
			data[p] = (float32(resized.Pix[i]) - pixelMean) / pixelScale
			data[plane+p] = (float32(resized.Pix[i+1]) - pixelMean) / pixelScale
			data[2*plane+p] = (float32(resized.Pix[i+2]) - pixelMean) / pixelScale
		}
	}
	return data
}

// decodeFaces turns per-anchor scores and normalised corner boxes into pixel
// boxes for an image of the given size.
func decodeFaces(scores, boxes []float32, threshold float32, width, height int) []Box {
	n := min(len(scores)/2, len(boxes)/4)
	var out []Box
	for i := 0; i < n; i++ {
		score := scores[2*i+1]
		if score <= threshold {
			continue
		}
		x1 := int(math.Round(float64(boxes[4*i]) * float64(width)))
		y1 := int(math.Round(float64(boxes[4*i+1]) * float64(height)))
		x2 := int(math.Round(float64(boxes[4*i+2]) * float64(width)))
		y2 := int(math.Round(float64(boxes[4*i+3]) * float64(height)))
		if x2 <= x1 || y2 <= y1 {
			continue
		}
		out = append(out, Box{
			Rect:  geometry.Rect{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1},
			Score: score,
		})
	}
	return out
}
