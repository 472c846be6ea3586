package worker

import (
	"time"

	"spacesync/internal/storage"
)

// Task represents one local file to upload
type Task struct {
	SourcePath string
	Key        string
	Size       int64
	ModTime    time.Time
}

// Outcome is the result of processing a Task.
// Relocated is only ever true when Succeeded is true.
type Outcome struct {
	Task      Task
	Succeeded bool
	Relocated bool
	Skipped   bool
	Err       error
}

// Config contains worker configuration
type Config struct {
	Bucket       string
	ACL          storage.ACL
	CompletedDir string
	SkipUploaded bool
}
