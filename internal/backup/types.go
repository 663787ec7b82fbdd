// Package backup takes periodic snapshots of the sample history database
// and optionally ships them to S3-compatible storage.
package backup

import (
	"context"
	"time"
)

// Config controls periodic history snapshots.
type Config struct {
	Enabled   bool
	Interval  time.Duration
	LocalDir  string
	KeepLast  int
	BucketURL string

	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
}

// Snapshotter copies a consistent view of the history database to a file.
type Snapshotter interface {
	Path() string
	SnapshotTo(dstPath string) error
}

// Uploader ships one snapshot file.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) error
}
