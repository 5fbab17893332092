package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// sftpClient is the subset of *sftp.Client used by SFTPBackend.
type sftpClient interface {
	Stat(p string) (os.FileInfo, error)
	Mkdir(path string) error
	Remove(path string) error
	Rename(oldname, newname string) error
	Create(path string) (io.WriteCloser, error)
	Close() error
}

type sftpClientAdapter struct {
	*sftp.Client
}

func (a sftpClientAdapter) Create(path string) (io.WriteCloser, error) {
	return a.Client.Create(path)
}

type SFTPBackend struct {
	client  sftpClient
	sshConn *ssh.Client
}

// NewSFTPBackend wraps an established sftp session. sshConn may be nil when the
// session does not run over an ssh.Client owned by the backend.
func NewSFTPBackend(client *sftp.Client, sshConn *ssh.Client) *SFTPBackend {
	return &SFTPBackend{
		client:  sftpClientAdapter{client},
		sshConn: sshConn,
	}
}

func (s *SFTPBackend) GetBackendType() BackendType {
	return BackendTypeSFTP
}

func (s *SFTPBackend) Close() error {
	err := s.client.Close()
	if s.sshConn != nil {
		if sshErr := s.sshConn.Close(); err == nil {
			err = sshErr
		}
	}
	return err
}

func (s *SFTPBackend) CheckFileExists(ctx context.Context, key string) (*FileMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stat, err := s.client.Stat(path.Clean(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &FileMetadata{Exists: false}, nil
		}
		return nil, convertSFTPError("stat remote file", err)
	}

	return &FileMetadata{
		Exists:       true,
		IsDir:        stat.IsDir(),
		Size:         stat.Size(),
		LastModified: stat.ModTime(),
	}, nil
}

func (s *SFTPBackend) MakeDir(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.Mkdir(path.Clean(key)); err != nil {
		return convertSFTPError("create remote directory", err)
	}
	return nil
}

func (s *SFTPBackend) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.Remove(path.Clean(key)); err != nil {
		return convertSFTPError("remove remote file", err)
	}
	return nil
}

func (s *SFTPBackend) Rename(ctx context.Context, oldKey, newKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.Rename(path.Clean(oldKey), path.Clean(newKey)); err != nil {
		return convertSFTPError("rename remote file", err)
	}
	return nil
}

// UploadFromReader creates (or truncates) key and streams reader into it.
func (s *SFTPBackend) UploadFromReader(ctx context.Context, reader io.Reader, key string) error {
	remoteFile, err := s.client.Create(path.Clean(key))
	if err != nil {
		return convertSFTPError("create remote file", err)
	}

	_, copyErr := copyWithContext(ctx, remoteFile, reader)
	closeErr := remoteFile.Close()
	if copyErr != nil {
		return fmt.Errorf("copy file data: %w", copyErr)
	}
	if closeErr != nil {
		return convertSFTPError("close remote file", closeErr)
	}
	return nil
}

func convertSFTPError(message string, err error) error {
	errType := ErrorTypeInternal
	switch {
	case errors.Is(err, os.ErrNotExist):
		errType = ErrorTypeNotFound
	case errors.Is(err, os.ErrPermission):
		errType = ErrorTypeAccessDenied
	case errors.Is(err, sftp.ErrSSHFxConnectionLost), errors.Is(err, sftp.ErrSSHFxNoConnection),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), IsTransportError(err):
		errType = ErrorTypeNetworkError
	case hasStatus(err, sftp.ErrSSHFxConnectionLost, sftp.ErrSSHFxNoConnection):
		errType = ErrorTypeNetworkError
	case hasStatus(err, sftp.ErrSSHFxOpUnsupported, sftp.ErrSSHFxBadMessage):
		errType = ErrorTypeInvalidInput
	}
	return &StorageError{Type: errType, Message: message, Cause: err}
}

// hasStatus matches a status reply from the server against the given codes.
func hasStatus(err error, codes ...error) bool {
	var statusErr *sftp.StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	for _, code := range codes {
		if statusErr.FxCode() == code {
			return true
		}
	}
	return false
}

type readerFunc func(p []byte) (n int, err error)

func (rf readerFunc) Read(p []byte) (n int, err error) { return rf(p) }

// writerOnly hides io.ReaderFrom so the copy goes through the bounded buffer.
type writerOnly struct {
	io.Writer
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, TransferBufferSize)
	return io.CopyBuffer(writerOnly{dst}, readerFunc(func(p []byte) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
			return src.Read(p)
		}
	}), buf)
}
