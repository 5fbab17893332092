package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"sftpush/pkg/config"
	"sftpush/pkg/lock"
	"sftpush/pkg/logger"
	"sftpush/pkg/storage"
	"sftpush/pkg/task"
	"sftpush/pkg/transfer"
)

// Executor runs one transfer described by settings.
type Executor func(ctx context.Context, s *config.Settings, log *logger.Logger) error

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*lock.Lock, error)
	Release(ctx context.Context, l *lock.Lock) error
}

type UploadHandler struct {
	execute Executor
	locker  Locker
	cipher  config.Cipher
	lockTTL time.Duration
	logger  *logger.Logger
}

func NewUploadHandler(execute Executor, locker Locker, cfg *config.DaemonConfig, log *logger.Logger) *UploadHandler {
	if log == nil {
		log = logger.NewDefault()
	}
	return &UploadHandler{
		execute: execute,
		locker:  locker,
		cipher:  config.AESCipher{},
		lockTTL: time.Duration(cfg.LockTTLMinutes) * time.Minute,
		logger:  log,
	}
}

// Handle runs an upload task. Broken payloads and settings are not retried; a busy
// destination and remote failures are.
func (h *UploadHandler) Handle(ctx context.Context, t *asynq.Task) error {
	payload, err := task.UnmarshalUploadPayload(t.Payload())
	if err != nil {
		h.logger.Error("failed to unmarshal payload", err, nil)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	settings, err := config.LoadSettingsFile(payload.SettingsFilePath, payload.SettingsKeyFilePath, h.cipher)
	if err != nil {
		h.logger.Error("failed to load settings file", err, map[string]any{
			"settings_file": payload.SettingsFilePath,
		})
		return err
	}
	if err := settings.Validate(); err != nil {
		h.logger.Error("invalid settings file", err, map[string]any{
			"settings_file": payload.SettingsFilePath,
		})
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	destination := settings.Transfer.DestinationPath
	if strings.TrimSpace(destination) == "" {
		destination = transfer.DefaultDestination(settings.Connectivity.Username)
	}

	l, err := h.locker.Acquire(ctx, lock.LockKey(settings.Connectivity.Host, destination), h.lockTTL)
	if err != nil {
		h.logger.Warn("destination busy, task will be retried", map[string]any{
			"settings_file":    payload.SettingsFilePath,
			"destination_path": destination,
			"error":            err.Error(),
		})
		return err
	}
	defer func() {
		if err := h.locker.Release(context.WithoutCancel(ctx), l); err != nil {
			h.logger.Error("failed to release lock", err, map[string]any{"lock_key": l.Key})
		}
	}()

	h.logger.Info("starting upload task", map[string]any{
		"settings_file":    payload.SettingsFilePath,
		"local_path":       settings.Transfer.SourcePath,
		"destination_path": destination,
	})

	start := time.Now()
	if err := h.execute(ctx, settings, h.logger); err != nil {
		h.logger.Error("upload task failed", err, map[string]any{"settings_file": payload.SettingsFilePath})
		if isPermanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	result := task.UploadResult{
		SettingsFilePath: payload.SettingsFilePath,
		SourcePath:       settings.Transfer.SourcePath,
		DestinationPath:  destination,
		Duration:         time.Since(start).String(),
	}
	h.writeResult(t, result)

	h.logger.Info("upload task completed", map[string]any{
		"settings_file": payload.SettingsFilePath,
		"duration":      result.Duration,
	})
	return nil
}

// isPermanent reports failures that another attempt cannot fix: broken connection settings
// and remote errors classified as final.
func isPermanent(err error) bool {
	if errors.Is(err, storage.ErrConnectivityConfiguration) || errors.Is(err, storage.ErrUnsupportedKeyFormat) {
		return true
	}
	var storageErr *storage.StorageError
	return errors.As(err, &storageErr) && !storage.IsRetryableError(err)
}

func (h *UploadHandler) writeResult(t *asynq.Task, result task.UploadResult) {
	w := t.ResultWriter()
	if w == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		h.logger.Error("failed to marshal task result", err, nil)
		return
	}
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("failed to write task result", map[string]any{"error": err.Error()})
	}
}
