package app

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"spacesync/internal/worker"

	"go.uber.org/zap"
)

// FileLister turns the direct entries of a local directory into upload tasks
type FileLister struct {
	logger *zap.Logger
}

// ListFiles returns one task per regular file directly inside sourceDir,
// in directory listing order. Subdirectories are never descended into.
func (l *FileLister) ListFiles(sourceDir, prefix string) ([]worker.Task, error) {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceDir, err)
	}

	tasks := make([]worker.Task, 0, len(entries))
	for _, entry := range entries {
		sourcePath := filepath.Join(sourceDir, entry.Name())

		// Stat follows symlinks so a link to a regular file is uploaded
		info, err := os.Stat(sourcePath)
		if err != nil {
			l.logger.Warn("Skipping unreadable entry", zap.String("path", sourcePath), zap.Error(err))
			continue
		}
		if !info.Mode().IsRegular() {
			l.logger.Debug("Skipping non-regular entry", zap.String("path", sourcePath))
			continue
		}

		tasks = append(tasks, worker.Task{
			SourcePath: sourcePath,
			Key:        ObjectKey(prefix, entry.Name()),
			Size:       info.Size(),
			ModTime:    info.ModTime(),
		})
	}

	return tasks, nil
}

// ObjectKey joins prefix and a file's base name with a forward slash
func ObjectKey(prefix, baseName string) string {
	if prefix == "" {
		return baseName
	}
	return path.Join(prefix, baseName)
}

// Enqueue sends tasks in order until all are queued or ctx is cancelled
func (l *FileLister) Enqueue(ctx context.Context, tasks []worker.Task, ch chan<- worker.Task) error {
	for _, task := range tasks {
		select {
		case ch <- task:
			l.logger.Debug("Enqueued file", zap.String("key", task.Key))
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// CountBytes returns the total size of tasks
func CountBytes(tasks []worker.Task) int64 {
	var total int64
	for _, task := range tasks {
		total += task.Size
	}
	return total
}
