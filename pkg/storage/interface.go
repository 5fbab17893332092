package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// TransferBufferSize bounds the chunk size used when streaming a payload to the remote side.
const TransferBufferSize = 4 * 1024

// RemoteFileSystem is the set of remote operations the upload pipeline relies on.
// Implementations wrap exactly one connected session.
type RemoteFileSystem interface {
	GetBackendType() BackendType
	CheckFileExists(ctx context.Context, key string) (*FileMetadata, error)
	MakeDir(ctx context.Context, key string) error
	Remove(ctx context.Context, key string) error
	Rename(ctx context.Context, oldKey, newKey string) error
	UploadFromReader(ctx context.Context, reader io.Reader, key string) error
	Close() error
}

type FileMetadata struct {
	Exists       bool      `json:"exists"`
	IsDir        bool      `json:"is_dir"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

type BackendType string

const (
	BackendTypeSFTP BackendType = "sftp"
	BackendTypeS3   BackendType = "s3"
)

type StorageError struct {
	Type    ErrorType
	Message string
	Cause   error
}

type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeAccessDenied ErrorType = "access_denied"
	ErrorTypeNetworkError ErrorType = "network_error"
	ErrorTypeInternal     ErrorType = "internal_error"
	ErrorTypeInvalidInput ErrorType = "invalid_input"
)

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// IsRetryableError reports whether err may succeed when the task runs again. Only a
// StorageError that names a missing path, a denied permission or a rejected request is final;
// unclassified failures are retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		return false
	}

	switch storageErr.Type {
	case ErrorTypeNetworkError, ErrorTypeInternal:
		return true
	case ErrorTypeNotFound, ErrorTypeAccessDenied, ErrorTypeInvalidInput:
		return false
	default:
		return false
	}
}
