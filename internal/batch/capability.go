package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/MeKo-Tech/idcrop/internal/face"
	"github.com/MeKo-Tech/idcrop/internal/geometry"
	"github.com/MeKo-Tech/idcrop/internal/imageio"
	"github.com/MeKo-Tech/idcrop/internal/ocr"
	"golang.org/x/sync/semaphore"
)

// limiter bounds concurrent external calls and gives each one a timeout.
// Waiting for a slot does not count toward the timeout.
type limiter struct {
	sem     *semaphore.Weighted
	metrics *Metrics
}

func newLimiter(n int, metrics *Metrics) *limiter {
	if n <= 0 {
		n = 1
	}
	return &limiter{sem: semaphore.NewWeighted(int64(n)), metrics: metrics}
}

// do runs call with a slot held and records its duration under capability.
func (l *limiter) do(ctx context.Context, capability string, timeout time.Duration, call func(context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for %s slot: %w", capability, err)
	}
	defer l.sem.Release(1)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := call(ctx)
	l.metrics.RecordExternalCall(capability, err, time.Since(start))
	return err
}

// limitedDetector is a face.Detector behind the shared limiter.
type limitedDetector struct {
	next    face.Detector
	limit   *limiter
	timeout time.Duration
}

func (d *limitedDetector) Detect(ctx context.Context, src *imageio.SourceImage) ([]geometry.Rect, error) {
	var rects []geometry.Rect
	err := d.limit.do(ctx, capabilityDetector, d.timeout, func(ctx context.Context) error {
		var err error
		rects, err = d.next.Detect(ctx, src)
		return err
	})
	return rects, err
}

// limitedRecognizer is an ocr.Recognizer behind the shared limiter.
type limitedRecognizer struct {
	next    ocr.Recognizer
	limit   *limiter
	timeout time.Duration
}

func (r *limitedRecognizer) Recognize(ctx context.Context, path string) (string, error) {
	var text string
	err := r.limit.do(ctx, capabilityOCR, r.timeout, func(ctx context.Context) error {
		var err error
		text, err = r.next.Recognize(ctx, path)
		return err
	})
	return text, err
}
