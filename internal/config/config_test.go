package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"spacesync/internal/config"
	"spacesync/internal/storage"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		config.EnvSpaceName, config.EnvRegion, config.EnvAccessKey,
		config.EnvSecretKey, config.EnvEndpoint, config.EnvDriver,
	} {
		t.Setenv(k, "")
	}
}

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("bucket", "", "")
	flags.String("region", "", "")
	flags.String("endpoint", "", "")
	flags.String("acl", "", "")
	flags.Int("concurrency", 1, "")
	flags.String("prefix", "", "")
	flags.Bool("dry-run", false, "")
	flags.String("completed-dir", "", "")
	flags.Uint64("part-size", 0, "")
	return flags
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvSpaceName, "books")
	t.Setenv(config.EnvRegion, "fra1")
	t.Setenv(config.EnvAccessKey, "key")
	t.Setenv(config.EnvSecretKey, "secret")

	cfg, err := config.Load("", "", nil)
	require.NoError(t, err)

	assert.Equal(t, "books", cfg.Storage.Bucket)
	assert.Equal(t, "https://fra1.digitaloceanspaces.com", cfg.Storage.Endpoint)
	assert.Equal(t, "https://books.fra1.digitaloceanspaces.com", cfg.Storage.PublicBaseURL)
	assert.True(t, cfg.Storage.Secure)
	assert.Equal(t, string(storage.ACLPrivate), cfg.Storage.ACL)
	assert.Equal(t, 1, cfg.Sync.Concurrency)
	assert.Equal(t, config.DefaultCompletedDir, cfg.Sync.CompletedDir)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv does not override variables that are already set, even to ""
	for _, k := range []string{config.EnvSpaceName, config.EnvRegion, config.EnvAccessKey, config.EnvSecretKey} {
		require.NoError(t, os.Unsetenv(k))
	}

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"DO_SPACE_NAME=covers\nDO_REGION=nyc3\nDO_ACCESS_KEY=ak\nDO_SECRET_KEY=sk\n"), 0o600))

	cfg, err := config.Load("", envFile, nil)
	require.NoError(t, err)
	assert.Equal(t, "covers", cfg.Storage.Bucket)
	assert.Equal(t, "https://nyc3.digitaloceanspaces.com", cfg.Storage.Endpoint)
	assert.Equal(t, "ak", cfg.Storage.AccessKey)
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvSpaceName, "books")
	t.Setenv(config.EnvRegion, "fra1")
	t.Setenv(config.EnvAccessKey, "key")
	t.Setenv(config.EnvSecretKey, "secret")

	_, err := config.Load("", filepath.Join(t.TempDir(), "missing.env"), nil)
	assert.NoError(t, err)
}

func TestLoad_FilePrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.EnvAccessKey, "env-key")

	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
log_level: debug
storage:
  driver: s3
  bucket: file-bucket
  endpoint: http://localhost:9000
  access_key: file-key
  secret_key: file-secret
  path_style: true
sync:
  concurrency: 4
  prefix: books
`), 0o600))

	flags := newFlags()
	require.NoError(t, flags.Parse([]string{"--concurrency", "8", "--acl", "public-read"}))

	cfg, err := config.Load(file, "", flags)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, storage.DriverS3, cfg.Storage.Driver)
	assert.Equal(t, "file-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "env-key", cfg.Storage.AccessKey)
	assert.False(t, cfg.Storage.Secure)
	assert.True(t, cfg.Storage.PathStyle)
	assert.Equal(t, 8, cfg.Sync.Concurrency)
	assert.Equal(t, "books", cfg.Sync.Prefix)
	assert.Equal(t, "public-read", cfg.Storage.ACL)

	sc := cfg.StorageConfig()
	assert.Equal(t, "file-bucket", sc.Bucket)
	assert.Equal(t, "http://localhost:9000", sc.Endpoint)
}

func TestLoad_Validation(t *testing.T) {
	base := func(t *testing.T) {
		clearEnv(t)
		t.Setenv(config.EnvSpaceName, "books")
		t.Setenv(config.EnvRegion, "fra1")
		t.Setenv(config.EnvAccessKey, "key")
		t.Setenv(config.EnvSecretKey, "secret")
	}

	tests := []struct {
		name  string
		setup func(t *testing.T)
		args  []string
	}{
		{"MissingBucket", func(t *testing.T) { base(t); t.Setenv(config.EnvSpaceName, "") }, nil},
		{"MissingRegion", func(t *testing.T) { base(t); t.Setenv(config.EnvRegion, "") }, nil},
		{"MissingSecret", func(t *testing.T) { base(t); t.Setenv(config.EnvSecretKey, "") }, nil},
		{"UnknownDriver", func(t *testing.T) { base(t); t.Setenv(config.EnvDriver, "gcs") }, nil},
		{"BadACL", base, []string{"--acl", "public-read-write"}},
		{"ZeroConcurrency", base, []string{"--concurrency", "0"}},
		{"SmallPartSize", base, []string{"--part-size", "1024"}},
		{"NestedCompletedDir", base, []string{"--completed-dir", "a/b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup(t)
			flags := newFlags()
			require.NoError(t, flags.Parse(tt.args))

			_, err := config.Load("", "", flags)
			assert.Error(t, err)
		})
	}
}

func TestLoad_BadFile(t *testing.T) {
	clearEnv(t)
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), "", nil)
	assert.Error(t, err)
}

func TestDefault_CheckpointInCacheDir(t *testing.T) {
	path := config.Default().Sync.Checkpoint

	assert.Equal(t, config.DefaultCheckpointPath(), path)
	assert.True(t, filepath.IsAbs(path), path)
	assert.Equal(t, filepath.Join("spacesync", "checkpoint.db"),
		filepath.Join(filepath.Base(filepath.Dir(path)), filepath.Base(path)))
}

func TestLoadLocal_NoStorageRequired(t *testing.T) {
	clearEnv(t)

	cfg, err := config.LoadLocal("", "", nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Storage.Bucket)
	assert.Equal(t, config.DefaultCheckpointPath(), cfg.Sync.Checkpoint)

	_, err = config.Load("", "", nil)
	assert.ErrorContains(t, err, "bucket is required")

	flags := newFlags()
	require.NoError(t, flags.Parse([]string{"--concurrency", "0"}))
	_, err = config.LoadLocal("", "", flags)
	assert.Error(t, err, "non-storage settings are still validated")
}
