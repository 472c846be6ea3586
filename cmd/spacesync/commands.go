package main

import (
	"encoding/json"
	"fmt"
	"io"

	"spacesync/internal/checkpoint"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List object keys in the bucket",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}

		keys, err := a.List(cmd.Context(), prefix)
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), key)
		}
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file> [key]",
	Short: "Upload or replace a single object",
	Long:  `Uploads a local file. The key defaults to the file's base name; an existing object with the same key is replaced.`,
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		key := ""
		if len(args) == 2 {
			key = args[1]
		}

		key, err = a.Upload(cmd.Context(), args[0], key)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		return a.Delete(cmd.Context(), args[0])
	},
}

var urlCmd = &cobra.Command{
	Use:   "url <key>",
	Short: "Print a presigned or public URL for an object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		public, _ := cmd.Flags().GetBool("public")
		u, err := a.URL(cmd.Context(), args[0], public)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), u)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync <dir>",
	Short: "Upload every file in a folder and move uploaded files aside",
	Long: `Uploads each regular file directly inside <dir> and moves it into the
completion directory once the upload succeeded. Failed files stay in place so
the next run picks them up again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, log, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := signalContext(cmd.Context(), log)
		defer cancel()

		report, err := a.Sync(ctx, args[0])
		if err != nil {
			return err
		}
		if report.Failed > 0 || report.RelocationFailed > 0 {
			return fmt.Errorf("%d of %d files failed to upload, %d could not be moved",
				report.Failed, report.Total, report.RelocationFailed)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpointed uploads that were never moved or failed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := setupLocal(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		unmoved, failed, err := a.Pending()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeStatusJSON(out, unmoved, failed)
		}

		fmt.Fprintf(out, "Uploaded but not moved: %d\n", len(unmoved))
		for _, r := range unmoved {
			fmt.Fprintf(out, "  %s -> %s\n", r.SourcePath, r.Key)
		}
		fmt.Fprintf(out, "Failed: %d\n", len(failed))
		for _, r := range failed {
			fmt.Fprintf(out, "  %s -> %s (attempts %d): %s\n", r.SourcePath, r.Key, r.Attempts, r.LastError)
		}
		return nil
	},
}

type statusOutput struct {
	Unmoved []*checkpoint.TaskRecord `json:"unmoved"`
	Failed  []*checkpoint.TaskRecord `json:"failed"`
}

func writeStatusJSON(w io.Writer, unmoved, failed []*checkpoint.TaskRecord) error {
	if unmoved == nil {
		unmoved = []*checkpoint.TaskRecord{}
	}
	if failed == nil {
		failed = []*checkpoint.TaskRecord{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(statusOutput{Unmoved: unmoved, Failed: failed})
}

func init() {
	statusCmd.Flags().Bool("json", false, "Print the records as JSON")

	urlCmd.Flags().Int("ttl", 3600, "Presigned URL lifetime in seconds")
	urlCmd.Flags().Bool("public", false, "Print the public URL instead of a presigned one")

	flags := syncCmd.Flags()
	flags.String("prefix", "", "Destination key prefix")
	flags.Int("concurrency", 1, "Number of simultaneous uploads")
	flags.String("completed-dir", "uploaded_books", "Directory inside <dir> that uploaded files are moved into")
	flags.Bool("dry-run", false, "Log what would be uploaded without uploading")
	flags.Bool("skip-uploaded", false, "Only move files the checkpoint shows were already uploaded unchanged")
	flags.Bool("show-progress", true, "Show progress display on a terminal")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
}
