package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"spacesync/internal/app"
	"spacesync/internal/config"
	"spacesync/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "spacesync",
	Short: "Manage objects in a DigitalOcean Space or any S3 compatible bucket",
	Long: `Lists, uploads, replaces and deletes objects in an S3 compatible bucket,
and synchronizes a local folder into it, moving every uploaded file into a
completion directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded into the environment if present")

	flags.String("driver", "minio", "Storage driver (minio/s3)")
	flags.String("bucket", "", "Bucket or Space name (DO_SPACE_NAME)")
	flags.String("region", "", "Region, used to derive the Spaces endpoint (DO_REGION)")
	flags.String("endpoint", "", "S3 endpoint, overrides the region derived endpoint")
	flags.String("access-key", "", "Access key (DO_ACCESS_KEY)")
	flags.String("secret-key", "", "Secret key (DO_SECRET_KEY)")
	flags.Bool("secure", true, "Use HTTPS when the endpoint has no scheme")
	flags.Bool("path-style", false, "Use path style bucket addressing")
	flags.String("public-base-url", "", "Base URL for public object links")
	flags.String("acl", "private", "Canned ACL for uploads (private/public-read)")
	flags.Uint64("part-size", 64*1024*1024, "Multipart part size in bytes")
	flags.String("checkpoint", config.DefaultCheckpointPath(), "Checkpoint database file, empty to disable")
	flags.String("log-level", "info", "Log level (debug/info/warn/error)")
	flags.String("log-format", "console", "Log format (console/json)")

	rootCmd.AddCommand(listCmd, uploadCmd, deleteCmd, urlCmd, syncCmd, statusCmd)
}

// setup loads the configuration and builds the logger and application for a
// subcommand. The returned cleanup must be called when the command is done.
func setup(cmd *cobra.Command) (*app.App, *zap.Logger, func(), error) {
	cfg, err := config.Load(configFile, envFile, cmd.Flags())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := a.Close(); err != nil {
			log.Error("Error closing application", zap.Error(err))
		}
		_ = log.Sync()
	}
	return a, log, cleanup, nil
}

// setupLocal is setup for commands that only read local state. It needs no
// bucket or credentials.
func setupLocal(cmd *cobra.Command) (*app.App, func(), error) {
	cfg, err := config.LoadLocal(configFile, envFile, cmd.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a, err := app.NewLocal(cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}

	cleanup := func() {
		if err := a.Close(); err != nil {
			log.Error("Error closing application", zap.Error(err))
		}
		_ = log.Sync()
	}
	return a, cleanup, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context, log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			log.Info("Received shutdown signal, finishing in-flight uploads...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
