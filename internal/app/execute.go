package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sftpush/pkg/config"
	"sftpush/pkg/logger"
	"sftpush/pkg/storage"
	"sftpush/pkg/transfer"
)

var ErrDownloadNotImplemented = errors.New("download is not implemented")

// ConnectFunc opens the remote file system described by s.
type ConnectFunc func(ctx context.Context, s *config.Settings, log *logger.Logger) (storage.RemoteFileSystem, error)

// Connect opens the backend selected in the connectivity settings.
func Connect(ctx context.Context, s *config.Settings, log *logger.Logger) (storage.RemoteFileSystem, error) {
	factory := storage.NewStorageFactory(log)

	c := s.Connectivity
	switch c.Backend {
	case config.BackendS3:
		if c.S3 == nil {
			return nil, fmt.Errorf("%w: s3 settings are missing", storage.ErrConnectivityConfiguration)
		}
		return factory.CreateS3Backend(NewS3Config(c.S3))
	default:
		params := storage.ConnectionParameters{
			Host:           c.Host,
			Port:           c.Port,
			Username:       c.Username,
			Password:       c.Password,
			PrivateKeyPath: c.PrivateKeyPath,
			Timeout:        time.Duration(c.TimeoutSeconds) * time.Second,
		}
		policy := storage.DefaultRetryPolicy()
		policy.MaxRetries = s.Transfer.NumberOfRetries
		return factory.ConnectSFTP(ctx, params, policy)
	}
}

// Execute runs the transfer described by s over a single remote session.
func Execute(ctx context.Context, s *config.Settings, log *logger.Logger) error {
	return ExecuteWith(ctx, s, log, Connect)
}

func ExecuteWith(ctx context.Context, s *config.Settings, log *logger.Logger, connect ConnectFunc) error {
	if !s.IsUpload() {
		return ErrDownloadNotImplemented
	}

	fs, err := connect(ctx, s, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := fs.Close(); err != nil {
			log.Warn("failed to close remote session", map[string]any{"error": err.Error()})
		}
	}()

	req := NewTransferRequest(s)
	log.Info("starting upload", map[string]any{
		"local_path":  req.SourcePath,
		"remote_path": req.DestinationPath,
		"backend":     string(fs.GetBackendType()),
	})

	if err := transfer.NewUploader(fs, log).Upload(ctx, req); err != nil {
		return err
	}

	log.Info("upload finished", map[string]any{"local_path": req.SourcePath})
	return nil
}

// NewS3Config maps the object store settings onto the backend configuration.
func NewS3Config(s *config.S3Settings) *storage.S3Config {
	return &storage.S3Config{
		Endpoint:             s.Endpoint,
		Region:               s.Region,
		Bucket:               s.Bucket,
		AccessKey:            s.AccessKey,
		SecretKey:            s.SecretKey,
		MaxRetries:           s.MaxRetries,
		ReadTimeoutSeconds:   s.ReadTimeoutSeconds,
		UploadTimeoutSeconds: s.UploadTimeoutSeconds,
	}
}

// NewTransferRequest maps settings onto an upload request. A blank destination resolves to
// the user's home directory.
func NewTransferRequest(s *config.Settings) transfer.Request {
	dest := s.Transfer.DestinationPath
	if strings.TrimSpace(dest) == "" {
		dest = transfer.DefaultDestination(s.Connectivity.Username)
	}
	return transfer.Request{
		SourcePath:        s.Transfer.SourcePath,
		DestinationPath:   dest,
		Overwrite:         s.Transfer.Overwrite,
		UploadPrefix:      s.Transfer.UploadPrefix,
		ComputeSignature:  s.Transfer.ComputeChecksum,
		CompressDirectory: s.Transfer.CompressDirectory,
		RetryCount:        s.Transfer.NumberOfRetries,
	}
}
