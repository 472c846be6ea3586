package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"spacesync/internal/checkpoint"
	"spacesync/internal/config"
	"spacesync/internal/metrics"
	"spacesync/internal/progress"
	"spacesync/internal/storage"

	"go.uber.org/zap"
)

// App holds the storage client and the optional sync infrastructure for one process
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	client     storage.Client
	acl        storage.ACL
	checkpoint checkpoint.Store
	metrics    *metrics.Collector
}

// New creates the storage client described by cfg
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	client, err := storage.New(ctx, cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return NewWithClient(cfg, logger, client)
}

// NewLocal creates an App without a storage client. Only Pending and Close
// may be used on it.
func NewLocal(cfg *config.Config, logger *zap.Logger) (*App, error) {
	return NewWithClient(cfg, logger, nil)
}

// NewWithClient creates an App around an existing storage client
func NewWithClient(cfg *config.Config, logger *zap.Logger, client storage.Client) (*App, error) {
	acl, err := storage.ParseACL(cfg.Storage.ACL)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:     cfg,
		logger:  logger,
		client:  client,
		acl:     acl,
		metrics: metrics.New(),
	}, nil
}

// List returns every key under prefix
func (a *App) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := a.client.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	return keys, nil
}

// Upload uploads one local file with the configured ACL. An empty key means
// the file's base name. Uploading an existing key replaces the object.
func (a *App) Upload(ctx context.Context, localPath, key string) (string, error) {
	if key == "" {
		key = filepath.Base(localPath)
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", localPath)
	}

	if err := a.client.Put(ctx, localPath, key, a.acl); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", localPath, err)
	}

	a.logger.Info("File uploaded",
		zap.String("path", localPath),
		zap.String("key", key),
		zap.String("acl", string(a.acl)),
	)
	return key, nil
}

// Delete removes key from the bucket
func (a *App) Delete(ctx context.Context, key string) error {
	if err := a.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	a.logger.Info("Object deleted", zap.String("key", key))
	return nil
}

// URL returns the public URL of key, or a presigned URL valid for the
// configured TTL
func (a *App) URL(ctx context.Context, key string, public bool) (string, error) {
	if public {
		return a.client.PublicURL(key), nil
	}

	ttl := time.Duration(a.cfg.Storage.PresignTTLSeconds) * time.Second
	u, err := a.client.Presign(ctx, key, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return u, nil
}

// Sync runs the folder synchronizer over sourceDir using the sync section of
// the configuration
func (a *App) Sync(ctx context.Context, sourceDir string) (*Report, error) {
	syncCfg := a.cfg.Sync

	if err := a.openCheckpoint(); err != nil {
		return nil, err
	}

	if syncCfg.MetricsAddr != "" {
		srv, err := a.metrics.StartServer(syncCfg.MetricsAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer srv.Close()
		a.logger.Info("Serving metrics", zap.String("addr", srv.Addr))
	}

	var display *progress.Display
	if syncCfg.ShowProgress && !syncCfg.DryRun && progress.IsTerminalSupported() {
		display = progress.NewDisplay(a.metrics.GetProgressTracker(), 2*time.Second, os.Stdout)
		display.Start()
	}

	synchronizer := NewSynchronizer(a.client, a.checkpoint, a.metrics, a.logger, SyncOptions{
		Bucket:       a.cfg.Storage.Bucket,
		ACL:          a.acl,
		CompletedDir: syncCfg.CompletedDir,
		DryRun:       syncCfg.DryRun,
		SkipUploaded: syncCfg.SkipUploaded,
	})

	report, err := synchronizer.Synchronize(ctx, sourceDir, syncCfg.Prefix, syncCfg.Concurrency)

	if display != nil {
		display.Stop()
	}

	return report, err
}

// Pending returns checkpointed uploads whose file was never relocated, and
// failed uploads
func (a *App) Pending() (unmoved, failed []*checkpoint.TaskRecord, err error) {
	if err := a.openCheckpoint(); err != nil {
		return nil, nil, err
	}
	if a.checkpoint == nil {
		return nil, nil, fmt.Errorf("no checkpoint database configured")
	}

	if unmoved, err = a.checkpoint.ListUnmovedTasks(); err != nil {
		return nil, nil, fmt.Errorf("failed to list unmoved uploads: %w", err)
	}
	if failed, err = a.checkpoint.ListFailedTasks(); err != nil {
		return nil, nil, fmt.Errorf("failed to list failed uploads: %w", err)
	}
	return unmoved, failed, nil
}

func (a *App) openCheckpoint() error {
	if a.checkpoint != nil || a.cfg.Sync.Checkpoint == "" {
		return nil
	}

	store, err := checkpoint.NewSQLiteStore(a.cfg.Sync.Checkpoint)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	a.checkpoint = store
	return nil
}

// Close cleans up resources
func (a *App) Close() error {
	if a.checkpoint != nil {
		return a.checkpoint.Close()
	}
	return nil
}
