package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"spacesync/internal/checkpoint"
	"spacesync/internal/metrics"
	"spacesync/internal/storage"

	"go.uber.org/zap"
)

// Filesystem seams, replaced in tests
var (
	makeDir    = os.MkdirAll
	renameFile = os.Rename
)

// TaskProcessor uploads a single file and relocates it on success
type TaskProcessor struct {
	config     Config
	client     storage.Client
	checkpoint checkpoint.Store
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// Process uploads the task's file, then moves it into the completion
// directory. Errors are recorded in the returned Outcome, never returned.
func (p *TaskProcessor) Process(ctx context.Context, task Task) Outcome {
	logger := p.logger.With(zap.String("path", task.SourcePath), zap.String("key", task.Key))

	if p.config.SkipUploaded && p.alreadyUploaded(task) {
		logger.Info("Object already uploaded, retrying relocation only")
		p.metrics.IncSkipped(task.Size)
		return p.relocate(logger, Outcome{Task: task, Succeeded: true, Skipped: true})
	}

	startTime := time.Now()
	p.metrics.UploadStarted()
	err := p.client.Put(ctx, task.SourcePath, task.Key, p.config.ACL)
	p.metrics.UploadFinished()

	if err != nil {
		p.metrics.IncFailed()
		p.markFailed(task, err)
		logger.Error("Upload failed, file left in place", zap.Error(err))
		return Outcome{Task: task, Err: err}
	}

	p.metrics.IncUploaded(task.Size)
	p.metrics.ObserveDuration(time.Since(startTime))
	p.save(task, checkpoint.StatusUploaded, 1, "")

	return p.relocate(logger, Outcome{Task: task, Succeeded: true})
}

// relocate moves an uploaded file into the completion directory.
// A failure is logged and reported but never triggers another upload.
func (p *TaskProcessor) relocate(logger *zap.Logger, out Outcome) Outcome {
	task := out.Task

	if err := makeDir(p.config.CompletedDir, 0o755); err != nil {
		return p.relocationFailed(logger, out, fmt.Errorf("failed to create completion directory: %w", err))
	}

	dest := filepath.Join(p.config.CompletedDir, filepath.Base(task.SourcePath))
	if err := renameFile(task.SourcePath, dest); err != nil {
		return p.relocationFailed(logger, out, fmt.Errorf("failed to move file: %w", err))
	}

	p.save(task, checkpoint.StatusRelocated, 0, "")
	out.Relocated = true
	logger.Info("File uploaded and relocated",
		zap.String("destination", dest),
		zap.Int64("size", task.Size),
	)
	return out
}

func (p *TaskProcessor) relocationFailed(logger *zap.Logger, out Outcome, err error) Outcome {
	p.metrics.IncRelocationFailed()
	logger.Error("File uploaded but could not be relocated", zap.Error(err))
	out.Err = err
	return out
}

// alreadyUploaded reports whether the checkpoint holds an upload of this
// exact file that was never relocated
func (p *TaskProcessor) alreadyUploaded(task Task) bool {
	if p.checkpoint == nil {
		return false
	}

	record, err := p.checkpoint.GetTask(p.config.Bucket, task.Key)
	if err != nil {
		p.logger.Warn("Failed to read checkpoint", zap.String("key", task.Key), zap.Error(err))
		return false
	}

	return record != nil &&
		record.Status == checkpoint.StatusUploaded &&
		record.Matches(task.Size, task.ModTime)
}

func (p *TaskProcessor) markFailed(task Task, err error) {
	p.save(task, checkpoint.StatusFailed, 1, err.Error())
}

func (p *TaskProcessor) save(task Task, status checkpoint.TaskStatus, attempts int, lastError string) {
	if p.checkpoint == nil {
		return
	}

	record := &checkpoint.TaskRecord{
		Bucket:     p.config.Bucket,
		Key:        task.Key,
		SourcePath: task.SourcePath,
		Size:       task.Size,
		ModTime:    task.ModTime,
		Status:     status,
		Attempts:   attempts,
		LastError:  lastError,
	}

	if err := p.checkpoint.SaveTask(record); err != nil {
		p.logger.Error("Failed to save checkpoint",
			zap.String("key", task.Key),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}
