package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sftpush/pkg/logger"
	"sftpush/pkg/storage"
)

// transferStage streams the local file to the current destination. The overwrite decision
// has already been made, so an existing remote object is always replaced.
type transferStage struct {
	passthrough
	fs     storage.RemoteFileSystem
	logger *logger.Logger
}

func newTransferStage(fs storage.RemoteFileSystem, log *logger.Logger) *transferStage {
	return &transferStage{fs: fs, logger: log}
}

func (s *transferStage) Name() string { return "transfer" }

func (s *transferStage) Transfer(ctx context.Context, uc UploadContext) (UploadContext, error) {
	file, err := os.Open(uc.LocalPath)
	if err != nil {
		return uc, fmt.Errorf("open local file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			s.logger.Error("failed to close file", err, map[string]any{
				"local_path": uc.LocalPath,
			})
		}
	}()

	if err := s.fs.UploadFromReader(ctx, file, uc.Destination); err != nil {
		return uc, fmt.Errorf("upload to %s: %w", uc.Destination, err)
	}
	return uc, nil
}

// stagedRenameStage makes inner stages write to "<prefix><name>" and moves the result onto
// the real name only after the payload is complete.
type stagedRenameStage struct {
	passthrough
	fs       storage.RemoteFileSystem
	prefix   string
	logger   *logger.Logger
	original string
	staged   string
}

func newStagedRenameStage(fs storage.RemoteFileSystem, prefix string, log *logger.Logger) *stagedRenameStage {
	return &stagedRenameStage{fs: fs, prefix: prefix, logger: log}
}

func (s *stagedRenameStage) Name() string { return "staged_rename" }

func stagedPath(destination, prefix string) string {
	return remoteDir(destination) + prefix + remoteBase(destination)
}

func (s *stagedRenameStage) PreUpload(_ context.Context, uc UploadContext) (UploadContext, error) {
	s.original = uc.Destination
	s.staged = stagedPath(uc.Destination, s.prefix)
	uc.Destination = s.staged
	return uc, nil
}

func (s *stagedRenameStage) PostUpload(ctx context.Context, uc UploadContext) (UploadContext, error) {
	existing, err := s.fs.CheckFileExists(ctx, s.original)
	if err != nil {
		return uc, fmt.Errorf("check original file: %w", err)
	}
	if existing.Exists {
		s.logger.Debug("removing previous version before rename", map[string]any{
			"remote_path": s.original,
		})
		if err := s.fs.Remove(ctx, s.original); err != nil {
			return uc, fmt.Errorf("remove previous version: %w", err)
		}
	}

	if err := s.fs.Rename(ctx, s.staged, s.original); err != nil {
		return uc, fmt.Errorf("rename %s to %s: %w", s.staged, s.original, err)
	}

	s.logger.Debug("renamed staged upload", map[string]any{
		"staged_path": s.staged,
		"remote_path": s.original,
	})
	uc.Destination = s.original
	return uc, nil
}

// signatureStage publishes a "<name>.sha256" sidecar holding the digest of the local file.
type signatureStage struct {
	passthrough
	fs       storage.RemoteFileSystem
	logger   *logger.Logger
	checksum string
}

func newSignatureStage(fs storage.RemoteFileSystem, log *logger.Logger) *signatureStage {
	return &signatureStage{fs: fs, logger: log}
}

func (s *signatureStage) Name() string { return "signature" }

func (s *signatureStage) PreUpload(_ context.Context, uc UploadContext) (UploadContext, error) {
	checksum, err := ComputeSHA256(uc.LocalPath)
	if err != nil {
		return uc, err
	}
	s.checksum = checksum
	return uc, nil
}

func (s *signatureStage) PostUpload(ctx context.Context, uc UploadContext) (UploadContext, error) {
	sidecar := signaturePath(uc.FinalDestination, uc.LocalPath)
	if err := s.fs.UploadFromReader(ctx, strings.NewReader(s.checksum), sidecar); err != nil {
		return uc, fmt.Errorf("upload checksum: %w", err)
	}

	s.logger.Info("uploaded checksum", map[string]any{
		"remote_path": sidecar,
		"sha256":      s.checksum,
	})
	return uc, nil
}

func signaturePath(destination, localPath string) string {
	return remoteDir(destination) + filepath.Base(localPath) + SignatureExtension
}
