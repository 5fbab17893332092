package storage

import (
	"context"
	"fmt"

	"sftpush/pkg/logger"
	"sftpush/pkg/s3"
)

type StorageFactory struct {
	logger *logger.Logger
}

func NewStorageFactory(log *logger.Logger) *StorageFactory {
	if log == nil {
		log = logger.NewDefault()
	}
	return &StorageFactory{logger: log}
}

// ConnectSFTP validates params and opens the session under policy.
func (f *StorageFactory) ConnectSFTP(ctx context.Context, params ConnectionParameters, policy RetryPolicy) (RemoteFileSystem, error) {
	backend, err := NewConnector(params, policy, f.logger).Connect(ctx)
	if err != nil {
		return nil, err
	}
	return backend, nil
}

func (f *StorageFactory) CreateS3Backend(config *S3Config) (RemoteFileSystem, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: s3 configuration is required", ErrConnectivityConfiguration)
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", ErrConnectivityConfiguration)
	}

	s3Client, err := s3.CreateS3Client(s3ClientConfig(config))
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	f.logger.Info("S3 backend initialized", map[string]any{
		"bucket":   config.Bucket,
		"endpoint": config.Endpoint,
	})
	return NewS3Backend(s3Client, config), nil
}

func s3ClientConfig(config *S3Config) *s3.Config {
	return &s3.Config{
		Endpoint:           config.Endpoint,
		Region:             config.Region,
		AccessKey:          config.AccessKey,
		SecretKey:          config.SecretKey,
		MaxRetries:         config.MaxRetries,
		ReadTimeoutSeconds: config.ReadTimeoutSeconds,
	}
}
