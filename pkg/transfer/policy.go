package transfer

import (
	"context"
	"fmt"
	"os"
	"time"

	"sftpush/pkg/fsutil"
	"sftpush/pkg/logger"
	"sftpush/pkg/storage"
)

// timestampPrecision is the coarsest mtime resolution of the supported backends. SFTP v3
// carries whole seconds, so finer local timestamps are truncated before comparing.
const timestampPrecision = time.Second

// OverwritePolicy decides whether a local file has to be sent. Freshness is judged by size
// and modification time only; file content is never compared.
type OverwritePolicy struct {
	fs      storage.RemoteFileSystem
	checker fsutil.AvailabilityChecker
	logger  *logger.Logger
}

func NewOverwritePolicy(fs storage.RemoteFileSystem, checker fsutil.AvailabilityChecker, log *logger.Logger) *OverwritePolicy {
	if checker == nil {
		checker = fsutil.LockProbe{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &OverwritePolicy{fs: fs, checker: checker, logger: log}
}

// Evaluate returns the outcome for uploading localPath to remotePath. Local problems become
// a skip outcome; only remote failures are returned as errors.
func (p *OverwritePolicy) Evaluate(ctx context.Context, localPath, remotePath string, overwrite bool) (Outcome, error) {
	if availability := p.checker.Check(localPath); availability != fsutil.Readable {
		p.logger.Warn("skipping unreadable file", map[string]any{
			"local_path": localPath,
			"reason":     availability.String(),
		})
		return OutcomeSkippedUnreadable, nil
	}

	remote, err := p.fs.CheckFileExists(ctx, remotePath)
	if err != nil {
		return 0, fmt.Errorf("check remote file: %w", err)
	}
	if !remote.Exists {
		return OutcomeUploaded, nil
	}

	if !overwrite {
		p.logger.Info("remote file exists and overwrite is disabled, skipping", map[string]any{
			"local_path":  localPath,
			"remote_path": remotePath,
		})
		return OutcomeSkippedAlreadyCurrent, nil
	}

	info, err := os.Stat(localPath)
	if err != nil {
		p.logger.Warn("skipping unreadable file", map[string]any{
			"local_path": localPath,
			"reason":     err.Error(),
		})
		return OutcomeSkippedUnreadable, nil
	}

	localModified := info.ModTime().UTC().Truncate(timestampPrecision)
	remoteModified := remote.LastModified.UTC().Truncate(timestampPrecision)
	if info.Size() != remote.Size || localModified.After(remoteModified) {
		p.logger.Info("remote file differs, will overwrite", map[string]any{
			"remote_path":     remotePath,
			"local_size":      info.Size(),
			"remote_size":     remote.Size,
			"local_modified":  localModified.Format("2006-01-02T15:04:05Z"),
			"remote_modified": remoteModified.Format("2006-01-02T15:04:05Z"),
		})
		return OutcomeUploaded, nil
	}

	p.logger.Info("remote file is current, skipping", map[string]any{
		"local_path":  localPath,
		"remote_path": remotePath,
	})
	return OutcomeSkippedAlreadyCurrent, nil
}
