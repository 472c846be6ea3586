package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// Client defines the object store operations used by the tool
type Client interface {
	// List returns every key under prefix. Pagination is handled internally.
	List(ctx context.Context, prefix string) ([]string, error)
	// Put uploads the local file at localPath as key with the given visibility.
	Put(ctx context.Context, localPath, key string, acl ACL) error
	// Delete removes key from the bucket.
	Delete(ctx context.Context, key string) error
	// Presign returns a time-limited GET URL for key.
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	// PublicURL returns the unsigned URL of a public-read object. No network call is made.
	PublicURL(key string) string
}

// ACL is the canned visibility applied to uploaded objects
type ACL string

const (
	ACLPrivate    ACL = "private"
	ACLPublicRead ACL = "public-read"
)

// ErrInvalidACL is returned for visibility values other than private and public-read.
var ErrInvalidACL = errors.New("invalid acl")

// ParseACL converts a configuration string into an ACL. Empty means private.
func ParseACL(s string) (ACL, error) {
	switch ACL(strings.ToLower(strings.TrimSpace(s))) {
	case "", ACLPrivate:
		return ACLPrivate, nil
	case ACLPublicRead:
		return ACLPublicRead, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidACL, s)
	}
}

// Driver names
const (
	DriverMinIO = "minio"
	DriverS3    = "s3"
)

// Config contains client configuration
type Config struct {
	Driver        string
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	Secure        bool
	PathStyle     bool
	PublicBaseURL string
	PartSize      uint64
}

// New creates the client selected by cfg.Driver
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Driver {
	case "", DriverMinIO:
		return NewMinIOClient(cfg)
	case DriverS3:
		return NewS3Client(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// joinURL joins a base URL and an object key with exactly one slash
func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// detectContentType sniffs the content type of a local file
func detectContentType(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil || mt == nil {
		return "application/octet-stream"
	}
	return mt.String()
}
