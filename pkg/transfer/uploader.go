package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sftpush/pkg/archive"
	"sftpush/pkg/fsutil"
	"sftpush/pkg/logger"
	"sftpush/pkg/storage"
)

// Uploader walks local files and directories and pushes them through the upload pipeline,
// one file at a time over a single remote session.
type Uploader struct {
	fs      storage.RemoteFileSystem
	policy  *OverwritePolicy
	logger  *logger.Logger
	tempDir string
}

func NewUploader(fs storage.RemoteFileSystem, log *logger.Logger) *Uploader {
	return NewUploaderWithChecker(fs, fsutil.LockProbe{}, log)
}

func NewUploaderWithChecker(fs storage.RemoteFileSystem, checker fsutil.AvailabilityChecker, log *logger.Logger) *Uploader {
	if log == nil {
		log = logger.Discard()
	}
	return &Uploader{
		fs:      fs,
		policy:  NewOverwritePolicy(fs, checker, log),
		logger:  log,
		tempDir: os.TempDir(),
	}
}

// Upload sends req.SourcePath, a file or a directory, into req.DestinationPath.
func (u *Uploader) Upload(ctx context.Context, req Request) error {
	info, err := os.Stat(req.SourcePath)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	req.DestinationPath = strings.TrimRight(req.DestinationPath, "/")
	if err := u.EnsureRemoteDir(ctx, req.DestinationPath); err != nil {
		return err
	}

	if !info.IsDir() {
		_, err := u.UploadFile(ctx, req, req.SourcePath, req.DestinationPath)
		return err
	}

	if req.CompressDirectory {
		return u.uploadCompressed(ctx, req)
	}

	u.logger.Info("uploading directory", map[string]any{
		"local_path":  req.SourcePath,
		"remote_path": req.DestinationPath,
	})
	return u.UploadDirectory(ctx, req)
}

func (u *Uploader) uploadCompressed(ctx context.Context, req Request) error {
	staging, err := os.MkdirTemp(u.tempDir, "sftpush-zip-*")
	if err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			u.logger.Warn("failed to remove temporary archive", map[string]any{
				"archive_dir": staging,
				"error":       err.Error(),
			})
		}
	}()

	zipPath := filepath.Join(staging, filepath.Base(filepath.Clean(req.SourcePath))+".zip")
	u.logger.Info("compressing directory", map[string]any{
		"local_path": req.SourcePath,
		"archive":    zipPath,
	})
	if err := archive.ZipDirectory(req.SourcePath, zipPath); err != nil {
		return fmt.Errorf("compress directory: %w", err)
	}

	_, err = u.UploadFile(ctx, req, zipPath, req.DestinationPath)
	return err
}

// UploadFile uploads localPath into remoteDir when the overwrite policy allows it.
func (u *Uploader) UploadFile(ctx context.Context, req Request, localPath, remoteDir string) (Outcome, error) {
	remotePath := joinRemote(remoteDir, filepath.Base(localPath))

	outcome, err := u.policy.Evaluate(ctx, localPath, remotePath, req.Overwrite)
	if err != nil {
		return 0, err
	}
	if outcome != OutcomeUploaded {
		u.logger.Info("file skipped", map[string]any{
			"local_path":  localPath,
			"remote_path": remotePath,
			"outcome":     outcome.String(),
		})
		return outcome, nil
	}

	if err := BuildPipeline(u.fs, req, u.logger).Run(ctx, localPath, remotePath); err != nil {
		return 0, fmt.Errorf("upload %s: %w", localPath, err)
	}

	u.logger.Info("uploaded file", map[string]any{
		"local_path":  localPath,
		"remote_path": remotePath,
		"outcome":     OutcomeUploaded.String(),
	})
	return OutcomeUploaded, nil
}

// UploadDirectory uploads the files of req.SourcePath, then recurses into its
// subdirectories, mirroring them under req.DestinationPath.
func (u *Uploader) UploadDirectory(ctx context.Context, req Request) error {
	entries, err := os.ReadDir(req.SourcePath)
	if err != nil {
		return traversalError(req, fmt.Errorf("read local directory: %w", err))
	}

	var subdirs []string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return traversalError(req, err)
		}

		localPath := filepath.Join(req.SourcePath, entry.Name())
		if entry.IsDir() {
			subdirs = append(subdirs, entry.Name())
			continue
		}
		if !isRegularFile(entry, localPath) {
			u.logger.Debug("skipping non-regular entry", map[string]any{"local_path": localPath})
			continue
		}

		if _, err := u.UploadFile(ctx, req, localPath, req.DestinationPath); err != nil {
			return traversalError(req, err)
		}
	}

	for _, name := range subdirs {
		child := req.withPaths(filepath.Join(req.SourcePath, name), joinRemote(req.DestinationPath, name))
		if err := u.EnsureRemoteDir(ctx, child.DestinationPath); err != nil {
			return traversalError(child, err)
		}
		if err := u.UploadDirectory(ctx, child); err != nil {
			return traversalError(child, err)
		}
	}
	return nil
}

func isRegularFile(entry os.DirEntry, localPath string) bool {
	if entry.Type().IsRegular() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(localPath)
	return err == nil && info.Mode().IsRegular()
}

func traversalError(req Request, err error) error {
	var te *TraversalError
	if errors.As(err, &te) {
		return err
	}
	return &TraversalError{LocalPath: req.SourcePath, RemotePath: req.DestinationPath, Cause: err}
}

// EnsureRemoteDir creates remoteDir and any missing ancestors, shallowest first. Calling it
// for an existing directory does nothing.
func (u *Uploader) EnsureRemoteDir(ctx context.Context, remoteDir string) error {
	if strings.Trim(remoteDir, "/") == "" {
		return nil
	}

	existing, err := u.fs.CheckFileExists(ctx, remoteDir)
	if err != nil {
		return fmt.Errorf("check remote directory: %w", err)
	}
	if existing.Exists {
		u.logger.Debug("remote directory exists", map[string]any{"remote_path": remoteDir})
		return nil
	}

	segments := strings.Split(remoteDir, "/")
	for i := 1; i <= len(segments); i++ {
		if segments[i-1] == "" {
			continue
		}
		prefix := strings.Join(segments[:i], "/")

		existing, err := u.fs.CheckFileExists(ctx, prefix)
		if err != nil {
			return fmt.Errorf("check remote directory: %w", err)
		}
		if existing.Exists {
			continue
		}

		if err := u.fs.MakeDir(ctx, prefix); err != nil {
			return fmt.Errorf("create remote directory %s: %w", prefix, err)
		}
		u.logger.Info("created remote directory", map[string]any{"remote_path": prefix})
	}
	return nil
}
