package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/idcrop/internal/archive"
	"github.com/MeKo-Tech/idcrop/internal/face"
	"github.com/MeKo-Tech/idcrop/internal/geometry"
	"github.com/MeKo-Tech/idcrop/internal/idtext"
	"github.com/MeKo-Tech/idcrop/internal/imageio"
	"github.com/MeKo-Tech/idcrop/internal/ocr"
	"github.com/MeKo-Tech/idcrop/internal/testutil"
	"github.com/klauspost/compress/zip"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }

// writeCards saves n card images with enough skin samples for the heuristic.
// Indices listed in corrupt are written as undecodable files instead.
func writeCards(t *testing.T, dir string, n int, corrupt ...int) []Item {
	t.Helper()
	bad := make(map[int]bool, len(corrupt))
	for _, i := range corrupt {
		bad[i] = true
	}

	items := make([]Item, n)
	for i := range n {
		path := filepath.Join(dir, fmt.Sprintf("card%d.png", i))
		if bad[i] {
			testutil.WriteText(t, path, "this is not a png")
		} else {
			testutil.SaveImage(t, testutil.SkinSampleImage(testutil.SmallSize, 3), path)
		}
		items[i] = Item{Path: path}
	}
	return items
}

func newOrchestrator(t *testing.T, opts Options) *Orchestrator {
	t.Helper()
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	o, err := New(opts)
	require.NoError(t, err)
	return o
}

func staticText(text string) ocr.Recognizer {
	return ocr.RecognizerFunc(func(context.Context, string) (string, error) {
		return text, nil
	})
}

func TestRun_IsolatesFailingItem(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	items := writeCards(t, in, 5, 2)

	o := newOrchestrator(t, Options{OutputDir: out, Workers: 3, Archive: true})
	report, err := o.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 4, report.SuccessCount)
	assert.Equal(t, 1, report.FailureCount)
	require.Len(t, report.Results, 5)
	for i, r := range report.Results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, items[i].Path, r.Input)
	}

	failed := report.Results[2]
	assert.Equal(t, OutcomeFailure, failed.Outcome)
	assert.Contains(t, failed.Message, "render")
	assert.Empty(t, failed.OutputPath)
	require.Len(t, report.Failures(), 1)

	for _, i := range []int{0, 1, 3, 4} {
		r := report.Results[i]
		assert.True(t, r.Succeeded())
		assert.Equal(t, filepath.Join(out, fmt.Sprintf("cropped_card%d.png", i)), r.OutputPath)
		assert.True(t, testutil.FileExists(r.OutputPath))
		require.NotNil(t, r.RegionSource)
		assert.Equal(t, face.SourceHeuristic, *r.RegionSource)
		require.NotNil(t, r.CropRect)
		assert.True(t, r.CropRect.Within(320, 240))
	}

	assert.Equal(t, filepath.Join(out, "faces_20240309_140507.zip"), report.ArchivePath)
	zr, err := zip.OpenReader(report.ArchivePath)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()
	assert.Len(t, zr.File, 4)
}

func TestRun_AllFailuresReturnsError(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	items := []Item{
		{Path: filepath.Join(in, "missing1.jpg")},
		{Path: filepath.Join(in, "missing2.jpg")},
	}

	o := newOrchestrator(t, Options{OutputDir: out, Archive: true})
	report, err := o.Run(context.Background(), items)
	require.ErrorIs(t, err, ErrNoSuccessfulItems)
	require.NotNil(t, report)
	assert.Equal(t, 0, report.SuccessCount)
	assert.Equal(t, 2, report.FailureCount)
	assert.Contains(t, report.Results[0].Message, "load")
	assert.Empty(t, report.ArchivePath)
	assert.Empty(t, testutil.ListFiles(t, out))
}

func TestRun_PreparedItemErrorFailsAlone(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	cards := writeCards(t, in, 2)
	items := []Item{cards[0], {Path: filepath.Join(in, "scan.pdf"), Err: ErrNoPDFImages}, cards[1]}

	o := newOrchestrator(t, Options{OutputDir: out})
	report, err := o.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 2, report.SuccessCount)
	assert.Equal(t, 1, report.FailureCount)
	failed := report.Results[1]
	assert.False(t, failed.Succeeded())
	assert.Equal(t, items[1].Path, failed.Input)
	assert.Equal(t, "pdf: no embedded images found", failed.Message)
	assert.Nil(t, failed.RegionSource)
	assert.Len(t, testutil.ListFiles(t, out), 2)
}

func TestRun_ZeroCropParamsKeepRegion(t *testing.T) {
	items := writeCards(t, t.TempDir(), 1)
	src, err := imageio.Load(items[0].Path)
	require.NoError(t, err)
	region := face.NewEstimator().Estimate(context.Background(), src)
	require.Equal(t, face.SourceHeuristic, region.Source)

	o := newOrchestrator(t, Options{OutputDir: t.TempDir(), Crop: &geometry.CropParams{}})
	report, err := o.Run(context.Background(), items)
	require.NoError(t, err)
	require.NotNil(t, report.Results[0].CropRect)
	assert.Equal(t, region.Rect, *report.Results[0].CropRect, "no padding and no minimum leave the region as is")

	o = newOrchestrator(t, Options{OutputDir: t.TempDir()})
	report, err = o.Run(context.Background(), items)
	require.NoError(t, err)
	assert.NotEqual(t, region.Rect, *report.Results[0].CropRect, "nil params use the padded defaults")
}

func TestRun_EmptyInput(t *testing.T) {
	o := newOrchestrator(t, Options{OutputDir: t.TempDir()})
	report, err := o.Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoItems)
	assert.Nil(t, report)
}

func TestRun_NameByIDResolvesCollisions(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	items := writeCards(t, in, 3)

	// Earlier items finish last, so completion order is the reverse of input order.
	rec := ocr.RecognizerFunc(func(_ context.Context, path string) (string, error) {
		for i, it := range items {
			if it.Path == path {
				time.Sleep(time.Duration(len(items)-i) * 20 * time.Millisecond)
			}
		}
		return "NAME JOHN DOE 12345678 EXP 2030", nil
	})

	o := newOrchestrator(t, Options{
		OutputDir:  out,
		NameByID:   true,
		Recognizer: rec,
		Workers:    3,
	})
	report, err := o.Run(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, 3, report.SuccessCount)

	assert.ElementsMatch(t, []string{"HS2345678.png", "HS2345678_2.png", "HS2345678_3.png"}, testutil.ListFiles(t, out))
	for i, want := range []string{"HS2345678.png", "HS2345678_2.png", "HS2345678_3.png"} {
		assert.Equal(t, filepath.Join(out, want), report.Results[i].OutputPath, "suffixes follow input order")
	}
	for _, r := range report.Results {
		assert.Equal(t, "HS2345678", r.ID)
		require.NotNil(t, r.IDTier)
		assert.Equal(t, idtext.TierEightDigit, *r.IDTier)
	}
}

func TestRun_MissingID(t *testing.T) {
	tests := []struct {
		name        string
		require     bool
		wantSuccess bool
		wantFile    string
	}{
		{name: "fallback name", require: false, wantSuccess: true, wantFile: "cropped_card0.png"},
		{name: "required", require: true, wantSuccess: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := t.TempDir()
			out := t.TempDir()
			items := writeCards(t, in, 1)

			o := newOrchestrator(t, Options{
				OutputDir:  out,
				NameByID:   true,
				RequireID:  tt.require,
				Recognizer: staticText("no digits here"),
			})
			report, err := o.Run(context.Background(), items)

			r := report.Results[0]
			require.NotNil(t, r.IDTier)
			assert.Equal(t, idtext.TierNone, *r.IDTier)
			if tt.wantSuccess {
				require.NoError(t, err)
				assert.Equal(t, []string{tt.wantFile}, testutil.ListFiles(t, out))
				return
			}
			require.ErrorIs(t, err, ErrNoSuccessfulItems)
			assert.Contains(t, r.Message, "could not extract ID number")
			assert.Empty(t, testutil.ListFiles(t, out))
		})
	}
}

func TestRun_OCRErrorFailsItem(t *testing.T) {
	items := writeCards(t, t.TempDir(), 2)
	calls := 0
	var mu sync.Mutex
	rec := ocr.RecognizerFunc(func(_ context.Context, path string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if path == items[1].Path {
			return "", errors.New("tesseract exited 1")
		}
		return "ID 7654321", nil
	})

	o := newOrchestrator(t, Options{OutputDir: t.TempDir(), NameByID: true, Recognizer: rec})
	report, err := o.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.True(t, report.Results[0].Succeeded())
	assert.Equal(t, "HS7654321", report.Results[0].ID)
	assert.False(t, report.Results[1].Succeeded())
	assert.Contains(t, report.Results[1].Message, "ocr: tesseract exited 1")
}

func TestRun_Cancelled(t *testing.T) {
	items := writeCards(t, t.TempDir(), 4)
	out := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newOrchestrator(t, Options{OutputDir: out, Archive: true, Workers: 2})
	report, err := o.Run(ctx, items)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 4, report.FailureCount)
	for i, r := range report.Results {
		assert.Equal(t, items[i].Path, r.Input)
		assert.Contains(t, r.Message, "context canceled")
	}
	assert.Empty(t, report.ArchivePath)
	assert.Empty(t, testutil.ListFiles(t, out))
}

func TestRun_DetectorTimeoutFallsBack(t *testing.T) {
	items := writeCards(t, t.TempDir(), 2)
	det := face.DetectorFunc(func(ctx context.Context, _ *imageio.SourceImage) ([]geometry.Rect, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	o := newOrchestrator(t, Options{OutputDir: t.TempDir(), Detector: det, DetectorTimeout: 20 * time.Millisecond})
	report, err := o.Run(context.Background(), items)
	require.NoError(t, err)
	for _, r := range report.Results {
		assert.True(t, r.Succeeded())
		assert.Equal(t, face.SourceHeuristic, *r.RegionSource)
	}
}

func TestRun_DetectorRegion(t *testing.T) {
	items := writeCards(t, t.TempDir(), 1)
	det := face.DetectorFunc(func(context.Context, *imageio.SourceImage) ([]geometry.Rect, error) {
		return []geometry.Rect{{X: 100, Y: 80, Width: 60, Height: 60}}, nil
	})

	o := newOrchestrator(t, Options{OutputDir: t.TempDir(), Detector: det, OutputFormat: "jpeg"})
	report, err := o.Run(context.Background(), items)
	require.NoError(t, err)

	r := report.Results[0]
	assert.Equal(t, face.SourceDetector, *r.RegionSource)
	assert.Equal(t, ".jpg", filepath.Ext(r.OutputPath))
	// 12px padding per side gives 84, already above the 72px minimum.
	assert.Equal(t, geometry.Rect{X: 88, Y: 68, Width: 84, Height: 84}, *r.CropRect)
}

func TestRun_ExternalConcurrencyIsBounded(t *testing.T) {
	items := writeCards(t, t.TempDir(), 6)
	var active, peak atomic.Int32
	det := face.DetectorFunc(func(context.Context, *imageio.SourceImage) ([]geometry.Rect, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return nil, nil
	})

	o := newOrchestrator(t, Options{OutputDir: t.TempDir(), Detector: det, Workers: 4, ExternalConcurrency: 1})
	_, err := o.Run(context.Background(), items)
	require.NoError(t, err)
	assert.Equal(t, int32(1), peak.Load())
}

func TestRun_Metrics(t *testing.T) {
	items := writeCards(t, t.TempDir(), 5, 2)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	det := face.DetectorFunc(func(context.Context, *imageio.SourceImage) ([]geometry.Rect, error) {
		return nil, errors.New("no model")
	})

	o := newOrchestrator(t, Options{OutputDir: t.TempDir(), Metrics: m, Detector: det})
	_, err := o.Run(context.Background(), items)
	require.NoError(t, err)

	assert.InDelta(t, 4, promtest.ToFloat64(m.itemsTotal.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(m.itemsTotal.WithLabelValues("failure")), 0)
	assert.InDelta(t, 4, promtest.ToFloat64(m.regionSourceTotal.WithLabelValues("heuristic")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(m.regionSourceTotal.WithLabelValues("default")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(m.batchesTotal.WithLabelValues("partial")), 0)
	// The undecodable item never reaches the detector.
	assert.Equal(t, 1, promtest.CollectAndCount(m.externalCallDuration))
	assert.Equal(t, 1, promtest.CollectAndCount(m.itemDuration))
}

type recordingProgress struct {
	total    int
	last     int
	errors   int
	complete bool
}

func (p *recordingProgress) OnStart(total int) { p.total = total }

func (p *recordingProgress) OnProgress(current, _ int) { p.last = current }

func (p *recordingProgress) OnComplete() { p.complete = true }

func (p *recordingProgress) OnError(int, error) { p.errors++ }

func TestRun_Progress(t *testing.T) {
	items := writeCards(t, t.TempDir(), 5, 2)
	p := &recordingProgress{}

	o := newOrchestrator(t, Options{OutputDir: t.TempDir(), Progress: p})
	_, err := o.Run(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, 5, p.total)
	assert.Equal(t, 5, p.last)
	assert.Equal(t, 1, p.errors)
	assert.True(t, p.complete)
}

func TestRun_ArchiveFailure(t *testing.T) {
	items := writeCards(t, t.TempDir(), 1)
	failing := archiverFunc(func(context.Context, string, []archive.Entry) error {
		return errors.New("disk full")
	})

	o := newOrchestrator(t, Options{OutputDir: t.TempDir(), Archive: true, Archiver: failing})
	report, err := o.Run(context.Background(), items)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NotNil(t, report)
	assert.Equal(t, 1, report.SuccessCount)
	assert.Empty(t, report.ArchivePath)
}

type archiverFunc func(ctx context.Context, dest string, entries []archive.Entry) error

func (f archiverFunc) Write(ctx context.Context, dest string, entries []archive.Entry) error {
	return f(ctx, dest, entries)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "no output dir", opts: Options{}},
		{name: "name by id without ocr", opts: Options{OutputDir: "out", NameByID: true}},
		{name: "bad format", opts: Options{OutputDir: "out", OutputFormat: "tiff"}},
		{name: "bad crop", opts: Options{OutputDir: "out", Crop: &geometry.CropParams{PaddingFraction: 0.2, MinSizeFraction: 1.5}}},
		{name: "negative timeout", opts: Options{OutputDir: "out", OCRTimeout: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			require.Error(t, err)
		})
	}
}
