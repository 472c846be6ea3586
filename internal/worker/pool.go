package worker

import (
	"context"
	"sync"

	"spacesync/internal/checkpoint"
	"spacesync/internal/metrics"
	"spacesync/internal/storage"

	"go.uber.org/zap"
)

// Pool manages a fixed number of upload workers
type Pool struct {
	size       int
	config     Config
	client     storage.Client
	checkpoint checkpoint.Store
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// NewPool creates a new worker pool. Sizes below one are treated as one.
func NewPool(
	size int,
	config Config,
	client storage.Client,
	checkpointStore checkpoint.Store,
	metricsCollector *metrics.Collector,
	logger *zap.Logger,
) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size:       size,
		config:     config,
		client:     client,
		checkpoint: checkpointStore,
		metrics:    metricsCollector,
		logger:     logger,
	}
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return p.size
}

// Start starts the workers. Each worker drains tasks until the channel is
// closed and sends one Outcome per task to results.
func (p *Pool) Start(ctx context.Context, tasks <-chan Task, results chan<- Outcome, wg *sync.WaitGroup) {
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go p.worker(ctx, i, tasks, results, wg)
	}
}

func (p *Pool) worker(ctx context.Context, id int, tasks <-chan Task, results chan<- Outcome, wg *sync.WaitGroup) {
	defer wg.Done()

	logger := p.logger.With(zap.Int("worker_id", id))
	logger.Debug("Worker started")

	processor := &TaskProcessor{
		config:     p.config,
		client:     p.client,
		checkpoint: p.checkpoint,
		metrics:    p.metrics,
		logger:     logger,
	}

	// A task taken off the queue always runs to completion, even after
	// cancellation; the producer stops enqueuing instead.
	taskCtx := context.WithoutCancel(ctx)

	for task := range tasks {
		results <- processor.Process(taskCtx, task)
	}

	logger.Debug("Worker finished - no more tasks")
}
