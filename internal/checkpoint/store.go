package checkpoint

import (
	"time"
)

// TaskStatus represents the status of an upload task
type TaskStatus string

const (
	// StatusUploaded means the object is in the bucket but the local file was not moved
	StatusUploaded  TaskStatus = "uploaded"
	StatusRelocated TaskStatus = "relocated"
	StatusFailed    TaskStatus = "failed"
)

// TaskRecord represents a task record in the checkpoint store
type TaskRecord struct {
	Bucket     string     `json:"bucket"`
	Key        string     `json:"key"`
	SourcePath string     `json:"source_path"`
	Size       int64      `json:"size"`
	ModTime    time.Time  `json:"mod_time"`
	Status     TaskStatus `json:"status"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"last_error,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Matches reports whether the record describes the same local file content
func (r *TaskRecord) Matches(size int64, modTime time.Time) bool {
	return r.Size == size && r.ModTime.Equal(modTime)
}

// Store defines the interface for checkpoint persistence
type Store interface {
	// Task operations
	GetTask(bucket, key string) (*TaskRecord, error)
	SaveTask(record *TaskRecord) error
	ListUnmovedTasks() ([]*TaskRecord, error)
	ListFailedTasks() ([]*TaskRecord, error)

	// Cleanup
	Close() error
}
