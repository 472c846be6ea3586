package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"spacesync/internal/checkpoint"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag to its default, since rootCmd is shared
// between tests
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, name := range []string{"DO_SPACE_NAME", "DO_REGION", "DO_ACCESS_KEY", "DO_SECRET_KEY", "SPACESYNC_ENDPOINT", "SPACESYNC_DRIVER"} {
		t.Setenv(name, "")
	}

	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands_Registered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"list", "upload", "delete", "url", "sync", "status"} {
		assert.True(t, names[want], want)
	}
}

func TestCommands_ArgumentValidation(t *testing.T) {
	_, err := execute(t, "delete")
	assert.Error(t, err)

	_, err = execute(t, "upload", "a", "b", "c")
	assert.Error(t, err)
}

func TestCommands_MissingBucket(t *testing.T) {
	_, err := execute(t, "list", "--region", "fra1", "--access-key", "k", "--secret-key", "s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket is required")
}

func TestCommands_URLPublicIsOffline(t *testing.T) {
	out, err := execute(t, "url", "covers/a.jpg", "--public",
		"--bucket", "books", "--region", "fra1",
		"--access-key", "k", "--secret-key", "s", "--checkpoint", "")
	require.NoError(t, err)
	assert.Equal(t, "https://books.fra1.digitaloceanspaces.com/covers/a.jpg\n", out)
}

func TestCommands_StatusWithoutCredentials(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "checkpoint.db")
	store, err := checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.SaveTask(&checkpoint.TaskRecord{
		Bucket: "books", Key: "covers/b.jpg", SourcePath: "/books/b.jpg",
		Status: checkpoint.StatusFailed, Attempts: 2, LastError: "500 internal server error",
	}))
	require.NoError(t, store.Close())

	out, err := execute(t, "status", "--json", "--checkpoint", dbPath)
	require.NoError(t, err)

	var status struct {
		Unmoved []checkpoint.TaskRecord `json:"unmoved"`
		Failed  []checkpoint.TaskRecord `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.NotNil(t, status.Unmoved)
	assert.Empty(t, status.Unmoved)
	require.Len(t, status.Failed, 1)
	assert.Equal(t, "covers/b.jpg", status.Failed[0].Key)
	assert.Equal(t, checkpoint.StatusFailed, status.Failed[0].Status)
	assert.Equal(t, 2, status.Failed[0].Attempts)
	assert.Equal(t, "500 internal server error", status.Failed[0].LastError)
}

func TestCommands_StatusText(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "checkpoint.db")

	out, err := execute(t, "status", "--checkpoint", dbPath)
	require.NoError(t, err)
	assert.Equal(t, "Uploaded but not moved: 0\nFailed: 0\n", out)
}
