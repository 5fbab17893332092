package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// S3Backend maps the remote file system operations onto an object store. Directories do not
// exist as objects, so MakeDir is a no-op and Rename is a copy followed by a delete.
type S3Backend struct {
	client s3iface.S3API
	bucket string
	config *S3Config
}

type S3Config struct {
	Endpoint             string
	Region               string
	Bucket               string
	AccessKey            string
	SecretKey            string
	MaxRetries           int
	ReadTimeoutSeconds   int
	UploadTimeoutSeconds int
}

func NewS3Backend(client s3iface.S3API, config *S3Config) *S3Backend {
	return &S3Backend{
		client: client,
		bucket: config.Bucket,
		config: config,
	}
}

func objectKey(key string) string {
	return strings.TrimPrefix(key, "/")
}

// copySource is the URL-encoded "bucket/key" form CopyObject expects.
func (s *S3Backend) copySource(key string) string {
	return (&url.URL{Path: s.bucket + "/" + objectKey(key)}).EscapedPath()
}

func (s *S3Backend) GetBackendType() BackendType {
	return BackendTypeS3
}

func (s *S3Backend) Close() error {
	return nil
}

func (s *S3Backend) CheckFileExists(ctx context.Context, key string) (*FileMetadata, error) {
	headResp, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(key)),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) {
			switch aerr.Code() {
			case "NoSuchKey", "NotFound":
				return &FileMetadata{Exists: false}, nil
			}
		}
		return nil, s.convertS3Error("check object existence", err)
	}

	metadata := &FileMetadata{Exists: true}
	if headResp.ContentLength != nil {
		metadata.Size = *headResp.ContentLength
	}
	if headResp.LastModified != nil {
		metadata.LastModified = *headResp.LastModified
	}
	return metadata, nil
}

func (s *S3Backend) MakeDir(ctx context.Context, key string) error {
	return nil
}

func (s *S3Backend) Remove(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(key)),
	})
	if err != nil {
		return s.convertS3Error("delete object", err)
	}
	return nil
}

func (s *S3Backend) Rename(ctx context.Context, oldKey, newKey string) error {
	_, err := s.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(objectKey(newKey)),
		CopySource: aws.String(s.copySource(oldKey)),
	})
	if err != nil {
		return s.convertS3Error("copy object", err)
	}
	return s.Remove(ctx, oldKey)
}

func (s *S3Backend) UploadFromReader(ctx context.Context, reader io.Reader, key string) error {
	uploadCtx := ctx
	if s.config.UploadTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		uploadCtx, cancel = context.WithTimeout(ctx, time.Duration(s.config.UploadTimeoutSeconds)*time.Second)
		defer cancel()
	}

	var body io.ReadSeeker
	if readSeeker, ok := reader.(io.ReadSeeker); ok {
		body = readSeeker
	} else {
		data, err := io.ReadAll(reader)
		if err != nil {
			return &StorageError{
				Type:    ErrorTypeInternal,
				Message: "failed to read data",
				Cause:   err,
			}
		}
		body = bytes.NewReader(data)
	}

	_, err := s.client.PutObjectWithContext(uploadCtx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(key)),
		Body:   body,
	})
	if err != nil {
		return s.convertS3Error("put object", err)
	}
	return nil
}

func (s *S3Backend) convertS3Error(message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &StorageError{Type: ErrorTypeNetworkError, Message: message + ": timeout", Cause: err}
	}

	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case "NoSuchBucket", "NoSuchKey", "NotFound":
			return &StorageError{Type: ErrorTypeNotFound, Message: message, Cause: err}
		case "AccessDenied", "Forbidden":
			return &StorageError{Type: ErrorTypeAccessDenied, Message: message, Cause: err}
		case "InvalidObjectName", "KeyTooLongError", "InvalidArgument", "InvalidBucketName":
			return &StorageError{Type: ErrorTypeInvalidInput, Message: message, Cause: err}
		case "RequestTimeout", "ServiceUnavailable", "Throttling", "ThrottlingException":
			return &StorageError{Type: ErrorTypeNetworkError, Message: message, Cause: err}
		default:
			if strings.Contains(strings.ToLower(aerr.Message()), "timeout") {
				return &StorageError{Type: ErrorTypeNetworkError, Message: message, Cause: err}
			}
		}
	}

	return &StorageError{Type: ErrorTypeInternal, Message: message, Cause: err}
}
