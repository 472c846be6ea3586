package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"spacesync/internal/checkpoint"
	"spacesync/internal/config"
	"spacesync/internal/metrics"
	"spacesync/internal/storage"
	"spacesync/internal/worker"

	"go.uber.org/zap"
)

// ErrSourceDir is returned when the source directory is missing or unreadable
var ErrSourceDir = errors.New("source directory unavailable")

// SyncOptions configures a Synchronizer
type SyncOptions struct {
	Bucket       string
	ACL          storage.ACL
	CompletedDir string
	DryRun       bool
	SkipUploaded bool
}

// Report summarises a synchronize run
type Report struct {
	Total            int
	Uploaded         int
	Failed           int
	RelocationFailed int
	Skipped          int
	Outcomes         []worker.Outcome
}

func (r *Report) add(out worker.Outcome) {
	r.Outcomes = append(r.Outcomes, out)

	switch {
	case !out.Succeeded:
		r.Failed++
	case out.Skipped:
		r.Skipped++
	default:
		r.Uploaded++
	}
	if out.Succeeded && !out.Relocated {
		r.RelocationFailed++
	}
}

// Synchronizer uploads the files of a local directory and moves each
// uploaded file into a completion directory
type Synchronizer struct {
	client     storage.Client
	checkpoint checkpoint.Store
	metrics    *metrics.Collector
	logger     *zap.Logger
	opts       SyncOptions
	lister     *FileLister
}

// NewSynchronizer creates a Synchronizer. checkpointStore may be nil.
func NewSynchronizer(
	client storage.Client,
	checkpointStore checkpoint.Store,
	metricsCollector *metrics.Collector,
	logger *zap.Logger,
	opts SyncOptions,
) *Synchronizer {
	if metricsCollector == nil {
		metricsCollector = metrics.New()
	}
	if opts.ACL == "" {
		opts.ACL = storage.ACLPrivate
	}
	if opts.CompletedDir == "" {
		opts.CompletedDir = config.DefaultCompletedDir
	}

	return &Synchronizer{
		client:     client,
		checkpoint: checkpointStore,
		metrics:    metricsCollector,
		logger:     logger,
		opts:       opts,
		lister:     &FileLister{logger: logger},
	}
}

// Synchronize uploads every regular file directly inside sourceDir under
// destinationPrefix using at most concurrency simultaneous uploads.
//
// Only a missing or unreadable sourceDir is returned as an error before any
// work starts. Per-file failures are reported in the Report. If ctx is
// cancelled no further files are dispatched, files already taken by a
// worker finish, and ctx's error is returned alongside the partial Report.
func (s *Synchronizer) Synchronize(ctx context.Context, sourceDir, destinationPrefix string, concurrency int) (*Report, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceDir, sourceDir)
	}

	tasks, err := s.lister.ListFiles(sourceDir, destinationPrefix)
	if err != nil {
		return nil, err
	}

	report := &Report{Total: len(tasks)}
	s.metrics.SetTotalCounts(int64(len(tasks)), CountBytes(tasks))

	s.logger.Info("Starting sync",
		zap.String("source", sourceDir),
		zap.String("prefix", destinationPrefix),
		zap.Int("files", len(tasks)),
		zap.Int("concurrency", concurrency),
		zap.String("acl", string(s.opts.ACL)),
		zap.Bool("dry_run", s.opts.DryRun),
	)

	if s.opts.DryRun {
		for _, task := range tasks {
			s.logger.Info("Would upload file",
				zap.String("path", task.SourcePath),
				zap.String("key", task.Key),
				zap.Int64("size", task.Size),
			)
		}
		return report, nil
	}

	pool := worker.NewPool(concurrency, worker.Config{
		Bucket:       s.opts.Bucket,
		ACL:          s.opts.ACL,
		CompletedDir: filepath.Join(sourceDir, s.opts.CompletedDir),
		SkipUploaded: s.opts.SkipUploaded,
	}, s.client, s.checkpoint, s.metrics, s.logger)

	taskCh := make(chan worker.Task, pool.Size()*2)
	results := make(chan worker.Outcome, pool.Size()*2)

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for out := range results {
			report.add(out)
		}
	}()

	var wg sync.WaitGroup
	pool.Start(ctx, taskCh, results, &wg)

	enqueueErr := s.lister.Enqueue(ctx, tasks, taskCh)
	close(taskCh)
	wg.Wait()
	close(results)
	<-collected

	fields := []zap.Field{
		zap.Int("total", report.Total),
		zap.Int("uploaded", report.Uploaded),
		zap.Int("failed", report.Failed),
		zap.Int("relocation_failed", report.RelocationFailed),
		zap.Int("skipped", report.Skipped),
	}

	if enqueueErr != nil {
		s.logger.Warn("Sync interrupted before all files were dispatched", append(fields, zap.Error(enqueueErr))...)
		return report, fmt.Errorf("sync interrupted: %w", enqueueErr)
	}

	s.logger.Info("Sync completed", fields...)
	return report, nil
}
