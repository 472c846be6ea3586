package metrics

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"spacesync/internal/progress"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values for spacesync_files_total
const (
	StatusUploaded         = "uploaded"
	StatusFailed           = "failed"
	StatusRelocationFailed = "relocation_failed"
	StatusSkipped          = "skipped"
)

// Collector collects and exposes metrics
type Collector struct {
	registry        *prometheus.Registry
	filesTotal      *prometheus.CounterVec
	bytesTotal      prometheus.Counter
	inflightUploads prometheus.Gauge
	duration        prometheus.Histogram
	progressTracker *progress.Tracker
}

// New creates a new metrics collector with its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		filesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spacesync_files_total",
				Help: "Total number of local files processed, by outcome",
			},
			[]string{"status"},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "spacesync_bytes_total",
				Help: "Total bytes uploaded",
			},
		),
		inflightUploads: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "spacesync_inflight_uploads",
				Help: "Number of uploads currently in flight",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "spacesync_upload_duration_seconds",
				Help:    "Time taken to upload a file",
				Buckets: prometheus.DefBuckets,
			},
		),
		progressTracker: progress.NewTracker(),
	}

	c.registry.MustRegister(c.filesTotal, c.bytesTotal, c.inflightUploads, c.duration)

	return c
}

// IncUploaded counts a successful upload and its bytes
func (c *Collector) IncUploaded(bytes int64) {
	c.filesTotal.WithLabelValues(StatusUploaded).Inc()
	c.bytesTotal.Add(float64(bytes))
	c.progressTracker.AddSuccess(bytes)
}

// IncFailed counts a failed upload
func (c *Collector) IncFailed() {
	c.filesTotal.WithLabelValues(StatusFailed).Inc()
	c.progressTracker.AddFailed()
}

// IncRelocationFailed counts an uploaded file that could not be moved.
// The upload itself is already counted by IncUploaded.
func (c *Collector) IncRelocationFailed() {
	c.filesTotal.WithLabelValues(StatusRelocationFailed).Inc()
}

// IncSkipped counts a file whose upload was skipped
func (c *Collector) IncSkipped(bytes int64) {
	c.filesTotal.WithLabelValues(StatusSkipped).Inc()
	c.progressTracker.AddSkipped(bytes)
}

// UploadStarted marks one more upload in flight
func (c *Collector) UploadStarted() {
	c.inflightUploads.Inc()
}

// UploadFinished marks one upload as no longer in flight
func (c *Collector) UploadFinished() {
	c.inflightUploads.Dec()
}

// ObserveDuration observes upload duration
func (c *Collector) ObserveDuration(duration time.Duration) {
	c.duration.Observe(duration.Seconds())
}

// Registry returns the registry holding this collector's metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the /metrics HTTP handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer binds addr and serves /metrics in the background. Bind errors
// are returned immediately. The returned server's Addr is the bound address;
// callers stop it with Close.
func (c *Collector) StartServer(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go srv.Serve(ln)

	return srv, nil
}

// GetProgressTracker returns the progress tracker
func (c *Collector) GetProgressTracker() *progress.Tracker {
	return c.progressTracker
}

// SetTotalCounts sets the total counts for progress tracking
func (c *Collector) SetTotalCounts(files, bytes int64) {
	c.progressTracker.SetTotal(files, bytes)
}
