package batch

import (
	"fmt"
	"time"

	"github.com/MeKo-Tech/idcrop/internal/face"
	"github.com/MeKo-Tech/idcrop/internal/idtext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Capability labels for external call metrics.
const (
	capabilityDetector = "detector"
	capabilityOCR      = "ocr"
)

// Metrics holds the batch collectors. A nil *Metrics records nothing.
type Metrics struct {
	itemsTotal           *prometheus.CounterVec
	itemDuration         prometheus.Histogram
	regionSourceTotal    *prometheus.CounterVec
	idExtractionTotal    *prometheus.CounterVec
	externalCallDuration *prometheus.HistogramVec
	batchesTotal         *prometheus.CounterVec
}

// NewMetrics registers the batch collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		itemsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idcrop_items_total",
				Help: "Total number of processed images by outcome",
			},
			[]string{"outcome"},
		),
		itemDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "idcrop_item_duration_seconds",
				Help:    "Per-image processing duration in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		regionSourceTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idcrop_face_region_source_total",
				Help: "Face regions by the tier that produced them",
			},
			[]string{"source"},
		),
		idExtractionTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idcrop_id_extraction_total",
				Help: "ID extractions by matching cascade tier",
			},
			[]string{"tier"},
		),
		externalCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "idcrop_external_call_duration_seconds",
				Help:    "Duration of detector and OCR calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"capability", "status"},
		),
		batchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idcrop_batches_total",
				Help: "Total number of batch runs by status",
			},
			[]string{"status"},
		),
	}
}

// RecordItem records a finished item.
func (m *Metrics) RecordItem(outcome Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.itemsTotal.WithLabelValues(outcome.String()).Inc()
	m.itemDuration.Observe(elapsed.Seconds())
}

// RecordRegionSource records which face tier was used.
func (m *Metrics) RecordRegionSource(source face.Source) {
	if m == nil {
		return
	}
	m.regionSourceTotal.WithLabelValues(source.String()).Inc()
}

// RecordIDTier records the ID cascade outcome.
func (m *Metrics) RecordIDTier(tier idtext.Tier) {
	if m == nil {
		return
	}
	m.idExtractionTotal.WithLabelValues(tier.String()).Inc()
}

// RecordExternalCall records one detector or OCR call.
func (m *Metrics) RecordExternalCall(capability string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.externalCallDuration.WithLabelValues(capability, status).Observe(elapsed.Seconds())
}

// RecordBatch records a finished run: success, partial or failed.
func (m *Metrics) RecordBatch(status string) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(status).Inc()
}

// batchStatus classifies a report for RecordBatch.
func batchStatus(r *Report) string {
	switch {
	case r.SuccessCount == 0:
		return "failed"
	case r.FailureCount > 0:
		return "partial"
	default:
		return "success"
	}
}

// WriteTextfile writes everything in g to path in the node_exporter textfile
// format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

// Push sends everything in g to a Pushgateway under job.
func Push(url, job string, g prometheus.Gatherer) error {
	if err := push.New(url, job).Gatherer(g).Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
