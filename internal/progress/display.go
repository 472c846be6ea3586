package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// Display handles the progress display
type Display struct {
	tracker  *Tracker
	interval time.Duration
	out      io.Writer
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewDisplay creates a new progress display writing to out
func NewDisplay(tracker *Tracker, interval time.Duration, out io.Writer) *Display {
	if out == nil {
		out = os.Stdout
	}
	return &Display{
		tracker:  tracker,
		interval: interval,
		out:      out,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start starts the progress display
func (d *Display) Start() {
	go d.displayLoop()
}

// Stop stops the display and waits for the final summary to be written
func (d *Display) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *Display) displayLoop() {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fmt.Fprintln(d.out, strings.Join(d.generateDisplay(d.tracker.GetStatus()), "\n"))
		case <-d.stopCh:
			fmt.Fprintln(d.out, strings.Join(d.generateFinalDisplay(d.tracker.GetStatus()), "\n"))
			return
		}
	}
}

func (d *Display) generateDisplay(status Status) []string {
	filesProgress := d.tracker.GetProgressPercent()
	bytesProgress := d.tracker.GetBytesProgressPercent()

	lines := []string{
		"",
		"Sync progress",
		strings.Repeat("=", 51),
		fmt.Sprintf("Files: %d/%d", status.ProcessedFiles, status.TotalFiles),
		"    " + d.generateProgressBar(filesProgress, 40),
		fmt.Sprintf("Data:  %s/%s", FormatBytes(status.ProcessedBytes), FormatBytes(status.TotalBytes)),
		"    " + d.generateProgressBar(bytesProgress, 40),
		fmt.Sprintf("  uploaded: %d  failed: %d  skipped: %d",
			status.UploadedFiles, status.FailedFiles, status.SkippedFiles),
		fmt.Sprintf("  speed: %s (avg %s)", FormatSpeed(status.CurrentSpeed), FormatSpeed(status.AverageSpeed)),
		fmt.Sprintf("  elapsed: %s  remaining: %s",
			FormatDuration(time.Since(status.StartTime)), FormatDuration(status.ETA)),
	}

	return lines
}

func (d *Display) generateFinalDisplay(status Status) []string {
	return []string{
		"",
		"Sync finished",
		strings.Repeat("=", 51),
		fmt.Sprintf("Files processed: %d", status.ProcessedFiles),
		fmt.Sprintf("Data processed:  %s", FormatBytes(status.ProcessedBytes)),
		fmt.Sprintf("Uploaded: %d", status.UploadedFiles),
		fmt.Sprintf("Failed:   %d", status.FailedFiles),
		fmt.Sprintf("Skipped:  %d", status.SkippedFiles),
		fmt.Sprintf("Elapsed:  %s", FormatDuration(time.Since(status.StartTime))),
		fmt.Sprintf("Average:  %s", FormatSpeed(status.AverageSpeed)),
		"",
	}
}

// generateProgressBar generates a visual progress bar
func (d *Display) generateProgressBar(percent float64, width int) string {
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}

	filled := int(percent * float64(width) / 100)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	return fmt.Sprintf("[%s] %.1f%%", bar, percent)
}

// IsTerminalSupported reports whether stdout is an interactive terminal
func IsTerminalSupported() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
