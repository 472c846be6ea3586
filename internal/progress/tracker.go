package progress

import (
	"fmt"
	"sync"
	"time"
)

// speedWindow is how far back CurrentSpeed looks
const speedWindow = 5 * time.Second

// Status is a point-in-time snapshot of a sync run
type Status struct {
	TotalFiles     int64
	ProcessedFiles int64
	UploadedFiles  int64
	FailedFiles    int64
	SkippedFiles   int64
	TotalBytes     int64
	ProcessedBytes int64
	StartTime      time.Time
	LastUpdateTime time.Time
	CurrentSpeed   float64 // bytes/second within speedWindow
	AverageSpeed   float64 // bytes/second since start
	ETA            time.Duration
}

type byteSample struct {
	at    time.Time
	bytes int64
}

// Tracker counts file outcomes for the progress display. Speeds and ETA are
// derived when a snapshot is taken.
type Tracker struct {
	mu      sync.Mutex
	status  Status
	samples []byteSample
}

// NewTracker creates a tracker whose clock starts now
func NewTracker() *Tracker {
	now := time.Now()
	return &Tracker{status: Status{StartTime: now, LastUpdateTime: now}}
}

// SetTotal sets the number of files and bytes the run will process
func (t *Tracker) SetTotal(files, bytes int64) {
	t.mu.Lock()
	t.status.TotalFiles = files
	t.status.TotalBytes = bytes
	t.mu.Unlock()
}

// AddSuccess records an uploaded file
func (t *Tracker) AddSuccess(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.UploadedFiles++
	t.record(bytes)
}

// AddFailed records a failed upload. Its bytes never count as processed.
func (t *Tracker) AddFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.FailedFiles++
	t.record(0)
}

// AddSkipped records a file whose upload was not needed
func (t *Tracker) AddSkipped(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.SkippedFiles++
	t.record(bytes)
}

// record must be called with mu held
func (t *Tracker) record(bytes int64) {
	now := time.Now()
	t.status.ProcessedFiles++
	t.status.ProcessedBytes += bytes
	t.status.LastUpdateTime = now

	if bytes > 0 {
		t.samples = append(t.samples, byteSample{at: now, bytes: bytes})
	}
	t.pruneSamples(now)
}

func (t *Tracker) pruneSamples(now time.Time) {
	cutoff := now.Add(-speedWindow)
	i := 0
	for i < len(t.samples) && t.samples[i].at.Before(cutoff) {
		i++
	}
	t.samples = t.samples[i:]
}

// GetStatus returns a snapshot with speeds and ETA computed as of now
func (t *Tracker) GetStatus() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.pruneSamples(now)
	s := t.status

	if elapsed := now.Sub(s.StartTime).Seconds(); elapsed > 0 {
		s.AverageSpeed = float64(s.ProcessedBytes) / elapsed
	}

	if len(t.samples) > 0 {
		var recent int64
		for _, sample := range t.samples {
			recent += sample.bytes
		}
		window := now.Sub(t.samples[0].at).Seconds()
		if window < 1 {
			window = 1
		}
		s.CurrentSpeed = float64(recent) / window
	}

	if remaining := s.TotalBytes - s.ProcessedBytes; remaining > 0 && s.AverageSpeed > 0 {
		s.ETA = time.Duration(float64(remaining)/s.AverageSpeed) * time.Second
	}

	return s
}

// GetProgressPercent returns the share of files processed
func (t *Tracker) GetProgressPercent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return percent(t.status.ProcessedFiles, t.status.TotalFiles)
}

// GetBytesProgressPercent returns the share of bytes processed
func (t *Tracker) GetBytesProgressPercent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return percent(t.status.ProcessedBytes, t.status.TotalBytes)
}

func percent(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}

// FormatSpeed formats a rate as bytes per second
func FormatSpeed(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}

// FormatBytes formats a byte count with a binary unit
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	value := float64(bytes) / unit
	for _, suffix := range []string{"KB", "MB"} {
		if value < unit {
			return fmt.Sprintf("%.1f %s", value, suffix)
		}
		value /= unit
	}
	return fmt.Sprintf("%.1f GB", value)
}

// FormatDuration formats d as 1h2m3s, dropping leading zero units.
// Zero means the value is not known yet.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "calculating..."
	}

	d = d.Truncate(time.Second)
	h, m, s := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
