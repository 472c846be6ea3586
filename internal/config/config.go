package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"spacesync/internal/storage"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// DefaultCompletedDir is the directory, relative to the source directory,
// that successfully uploaded files are moved into
const DefaultCompletedDir = "uploaded_books"

// Config represents the application configuration
type Config struct {
	Storage   Storage `yaml:"storage"`
	Sync      Sync    `yaml:"sync"`
	LogLevel  string  `yaml:"log_level"`
	LogFormat string  `yaml:"log_format"`
}

// Storage represents S3-compatible storage configuration
type Storage struct {
	Driver            string `yaml:"driver"`
	Bucket            string `yaml:"bucket"`
	Region            string `yaml:"region"`
	Endpoint          string `yaml:"endpoint"`
	AccessKey         string `yaml:"access_key"`
	SecretKey         string `yaml:"secret_key"`
	Secure            bool   `yaml:"secure"`
	PathStyle         bool   `yaml:"path_style"`
	PublicBaseURL     string `yaml:"public_base_url"`
	ACL               string `yaml:"acl"`
	PartSize          uint64 `yaml:"part_size"`
	PresignTTLSeconds int    `yaml:"presign_ttl_seconds"`
}

// Sync represents folder sync configuration
type Sync struct {
	Prefix       string `yaml:"prefix"`
	Concurrency  int    `yaml:"concurrency"`
	CompletedDir string `yaml:"completed_dir"`
	DryRun       bool   `yaml:"dry_run"`
	Checkpoint   string `yaml:"checkpoint"`
	SkipUploaded bool   `yaml:"skip_uploaded"`
	ShowProgress bool   `yaml:"show_progress"`
	MetricsAddr  string `yaml:"metrics_addr"`
}

// Environment variables read after the config file
const (
	EnvSpaceName = "DO_SPACE_NAME"
	EnvRegion    = "DO_REGION"
	EnvAccessKey = "DO_ACCESS_KEY"
	EnvSecretKey = "DO_SECRET_KEY"
	EnvEndpoint  = "SPACESYNC_ENDPOINT"
	EnvDriver    = "SPACESYNC_DRIVER"
)

// DefaultCheckpointPath returns the checkpoint database used when none is
// configured. It sits in the user cache directory, so the upload history does
// not depend on the working directory.
func DefaultCheckpointPath() string {
	return filepath.Join(xdg.CacheHome, "spacesync", "checkpoint.db")
}

// Default returns the configuration used when nothing else is set
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "console",
		Storage: Storage{
			Driver:            storage.DriverMinIO,
			Secure:            true,
			ACL:               string(storage.ACLPrivate),
			PartSize:          64 * 1024 * 1024,
			PresignTTLSeconds: 3600,
		},
		Sync: Sync{
			Concurrency:  1,
			CompletedDir: DefaultCompletedDir,
			Checkpoint:   DefaultCheckpointPath(),
			ShowProgress: true,
		},
	}
}

// Load builds the configuration from defaults, the YAML file, the .env file
// and environment, then command line flags, in increasing precedence
func Load(configFile, envFile string, flags *pflag.FlagSet) (*Config, error) {
	return load(configFile, envFile, flags, true)
}

// LoadLocal is Load for commands that only touch local state such as the
// checkpoint. Bucket, endpoint and credentials are read but not required.
func LoadLocal(configFile, envFile string, flags *pflag.FlagSet) (*Config, error) {
	return load(configFile, envFile, flags, false)
}

func load(configFile, envFile string, flags *pflag.FlagSet, requireStorage bool) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := loadFromEnv(cfg, envFile); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Override with command line flags
	if flags != nil {
		if err := loadFromFlags(cfg, flags); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg.applyDerived()

	if err := cfg.validate(requireStorage); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// loadFromEnv reads envFile into the process environment, ignoring a missing
// file, and then applies the known variables
func loadFromEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if v := os.Getenv(EnvSpaceName); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv(EnvRegion); v != "" {
		cfg.Storage.Region = v
	}
	if v := os.Getenv(EnvAccessKey); v != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv(EnvSecretKey); v != "" {
		cfg.Storage.SecretKey = v
	}
	if v := os.Getenv(EnvEndpoint); v != "" {
		cfg.Storage.Endpoint = v
	}
	if v := os.Getenv(EnvDriver); v != "" {
		cfg.Storage.Driver = v
	}

	return nil
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags.Changed("driver") {
		cfg.Storage.Driver, _ = flags.GetString("driver")
	}
	if flags.Changed("bucket") {
		cfg.Storage.Bucket, _ = flags.GetString("bucket")
	}
	if flags.Changed("region") {
		cfg.Storage.Region, _ = flags.GetString("region")
	}
	if flags.Changed("endpoint") {
		cfg.Storage.Endpoint, _ = flags.GetString("endpoint")
	}
	if flags.Changed("access-key") {
		cfg.Storage.AccessKey, _ = flags.GetString("access-key")
	}
	if flags.Changed("secret-key") {
		cfg.Storage.SecretKey, _ = flags.GetString("secret-key")
	}
	if flags.Changed("secure") {
		cfg.Storage.Secure, _ = flags.GetBool("secure")
	}
	if flags.Changed("path-style") {
		cfg.Storage.PathStyle, _ = flags.GetBool("path-style")
	}
	if flags.Changed("public-base-url") {
		cfg.Storage.PublicBaseURL, _ = flags.GetString("public-base-url")
	}
	if flags.Changed("acl") {
		cfg.Storage.ACL, _ = flags.GetString("acl")
	}
	if flags.Changed("part-size") {
		cfg.Storage.PartSize, _ = flags.GetUint64("part-size")
	}
	if flags.Changed("ttl") {
		cfg.Storage.PresignTTLSeconds, _ = flags.GetInt("ttl")
	}

	if flags.Changed("prefix") {
		cfg.Sync.Prefix, _ = flags.GetString("prefix")
	}
	if flags.Changed("concurrency") {
		cfg.Sync.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("completed-dir") {
		cfg.Sync.CompletedDir, _ = flags.GetString("completed-dir")
	}
	if flags.Changed("dry-run") {
		cfg.Sync.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("checkpoint") {
		cfg.Sync.Checkpoint, _ = flags.GetString("checkpoint")
	}
	if flags.Changed("skip-uploaded") {
		cfg.Sync.SkipUploaded, _ = flags.GetBool("skip-uploaded")
	}
	if flags.Changed("show-progress") {
		cfg.Sync.ShowProgress, _ = flags.GetBool("show-progress")
	}
	if flags.Changed("metrics-addr") {
		cfg.Sync.MetricsAddr, _ = flags.GetString("metrics-addr")
	}

	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}

	return nil
}

// applyDerived fills DigitalOcean Spaces endpoints from the region when no
// endpoint was configured
func (c *Config) applyDerived() {
	if c.Storage.Endpoint == "" && c.Storage.Region != "" {
		c.Storage.Endpoint = fmt.Sprintf("https://%s.digitaloceanspaces.com", c.Storage.Region)
		if c.Storage.PublicBaseURL == "" && c.Storage.Bucket != "" {
			c.Storage.PublicBaseURL = fmt.Sprintf("https://%s.%s.digitaloceanspaces.com", c.Storage.Bucket, c.Storage.Region)
		}
	}
	if strings.HasPrefix(c.Storage.Endpoint, "http://") {
		c.Storage.Secure = false
	} else if strings.HasPrefix(c.Storage.Endpoint, "https://") {
		c.Storage.Secure = true
	}
	if c.Sync.CompletedDir == "" {
		c.Sync.CompletedDir = DefaultCompletedDir
	}
}

func (c *Config) validate(requireStorage bool) error {
	if requireStorage {
		if err := c.validateStorage(); err != nil {
			return err
		}
	}

	if _, err := storage.ParseACL(c.Storage.ACL); err != nil {
		return err
	}

	if c.Storage.PresignTTLSeconds <= 0 {
		return fmt.Errorf("presign ttl must be positive")
	}

	if c.Sync.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}

	if c.Storage.PartSize != 0 && c.Storage.PartSize < 5*1024*1024 { // 5MB minimum for S3
		return fmt.Errorf("part size must be at least 5MB")
	}

	if strings.ContainsAny(c.Sync.CompletedDir, `/\`) {
		return fmt.Errorf("completed dir must be a plain directory name")
	}

	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Bucket == "" {
		return fmt.Errorf("bucket is required (set %s or --bucket)", EnvSpaceName)
	}
	if c.Storage.Endpoint == "" {
		return fmt.Errorf("endpoint or region is required (set %s or --region)", EnvRegion)
	}
	if c.Storage.AccessKey == "" {
		return fmt.Errorf("access key is required (set %s)", EnvAccessKey)
	}
	if c.Storage.SecretKey == "" {
		return fmt.Errorf("secret key is required (set %s)", EnvSecretKey)
	}

	switch c.Storage.Driver {
	case storage.DriverMinIO, storage.DriverS3:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// StorageConfig converts the storage section into a storage.Config
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		Driver:        c.Storage.Driver,
		Endpoint:      c.Storage.Endpoint,
		Region:        c.Storage.Region,
		Bucket:        c.Storage.Bucket,
		AccessKey:     c.Storage.AccessKey,
		SecretKey:     c.Storage.SecretKey,
		Secure:        c.Storage.Secure,
		PathStyle:     c.Storage.PathStyle,
		PublicBaseURL: c.Storage.PublicBaseURL,
		PartSize:      c.Storage.PartSize,
	}
}
