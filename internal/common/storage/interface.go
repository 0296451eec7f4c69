package storage

import (
	"context"
	"io"
)

// ObjectStorage is the object store surface used for test case sets and archived sources.
type ObjectStorage interface {
	// GetObject opens a reader for an object. Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error)

	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error

	// ListObjects streams every object below prefix. Errors are delivered in ObjectInfo.Err.
	ListObjects(ctx context.Context, bucket, prefix string) <-chan ObjectInfo
}

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key       string
	SizeBytes int64
	Err       error
}

// IsNotFound reports whether err means the object or bucket does not exist.
func IsNotFound(err error) bool {
	return isMinIONotFound(err)
}
