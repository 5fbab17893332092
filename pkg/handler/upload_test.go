package handler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sftpush/pkg/config"
	"sftpush/pkg/lock"
	"sftpush/pkg/logger"
	"sftpush/pkg/storage"
	"sftpush/pkg/task"
	"sftpush/pkg/transfer"
)

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*lock.Lock, error) {
	args := m.Called(key, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lock.Lock), args.Error(1)
}

func (m *mockLocker) Release(ctx context.Context, l *lock.Lock) error {
	return m.Called(l).Error(0)
}

// writeSettings stores a valid upload settings file and returns its path.
func writeSettings(t *testing.T, mutate func(s *config.Settings)) string {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "payload.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	s := config.DefaultSettings()
	s.Transfer.SourcePath = src
	s.Transfer.DestinationPath = "/inbox"
	s.Connectivity.Host = "sftp.example.com"
	s.Connectivity.Username = "deploy"
	s.Connectivity.Password = "secret"
	s.Application.SettingsFilePath = filepath.Join(dir, "job.json")
	if mutate != nil {
		mutate(s)
	}
	require.NoError(t, config.SaveSettingsFile(s, config.AESCipher{}))
	return s.Application.SettingsFilePath
}

func newTask(t *testing.T, settingsPath string) *asynq.Task {
	t.Helper()
	payload, err := task.UploadPayload{SettingsFilePath: settingsPath}.Marshal()
	require.NoError(t, err)
	return asynq.NewTask(task.TaskTypeUpload, payload)
}

func newHandler(execute Executor, locker Locker) *UploadHandler {
	return NewUploadHandler(execute, locker, &config.DaemonConfig{LockTTLMinutes: 5}, logger.Discard())
}

func TestUploadHandlerRunsUnderLock(t *testing.T) {
	settingsPath := writeSettings(t, nil)
	held := &lock.Lock{Key: lock.LockKey("sftp.example.com", "/inbox")}

	locker := new(mockLocker)
	locker.On("Acquire", held.Key, 5*time.Minute).Return(held, nil).Once()
	locker.On("Release", held).Return(nil).Once()

	var got *config.Settings
	execute := func(_ context.Context, s *config.Settings, _ *logger.Logger) error {
		got = s
		return nil
	}

	require.NoError(t, newHandler(execute, locker).Handle(context.Background(), newTask(t, settingsPath)))

	require.NotNil(t, got)
	assert.Equal(t, "/inbox", got.Transfer.DestinationPath)
	locker.AssertExpectations(t)
}

func TestUploadHandlerDefaultDestinationLock(t *testing.T) {
	settingsPath := writeSettings(t, func(s *config.Settings) { s.Transfer.DestinationPath = "" })
	key := lock.LockKey("sftp.example.com", "/home/deploy")

	locker := new(mockLocker)
	locker.On("Acquire", key, 5*time.Minute).Return(&lock.Lock{Key: key}, nil)
	locker.On("Release", mock.Anything).Return(nil)

	execute := func(context.Context, *config.Settings, *logger.Logger) error { return nil }
	require.NoError(t, newHandler(execute, locker).Handle(context.Background(), newTask(t, settingsPath)))
	locker.AssertExpectations(t)
}

func TestUploadHandlerDestinationBusy(t *testing.T) {
	settingsPath := writeSettings(t, nil)

	locker := new(mockLocker)
	locker.On("Acquire", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("%w: key", lock.ErrLockHeld))

	executed := false
	execute := func(context.Context, *config.Settings, *logger.Logger) error {
		executed = true
		return nil
	}

	err := newHandler(execute, locker).Handle(context.Background(), newTask(t, settingsPath))

	assert.ErrorIs(t, err, lock.ErrLockHeld)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.False(t, executed)
	locker.AssertNotCalled(t, "Release", mock.Anything)
}

func TestUploadHandlerFailures(t *testing.T) {
	tests := []struct {
		name      string
		task      func(t *testing.T) *asynq.Task
		execErr   error
		skipRetry bool
		locks     bool
	}{
		{
			name:      "bad payload",
			task:      func(*testing.T) *asynq.Task { return asynq.NewTask(task.TaskTypeUpload, []byte("{")) },
			skipRetry: true,
		},
		{
			name: "missing settings file",
			task: func(t *testing.T) *asynq.Task {
				return newTask(t, filepath.Join(t.TempDir(), "missing.json"))
			},
		},
		{
			name: "invalid settings",
			task: func(t *testing.T) *asynq.Task {
				return newTask(t, writeSettings(t, func(s *config.Settings) { s.Connectivity.Port = 0 }))
			},
			skipRetry: true,
		},
		{
			name:    "transport failure is retried",
			task:    func(t *testing.T) *asynq.Task { return newTask(t, writeSettings(t, nil)) },
			execErr: &storage.ConnectionError{Host: "h", Port: 22, Cause: errors.New("connection refused")},
			locks:   true,
		},
		{
			name:      "configuration failure is final",
			task:      func(t *testing.T) *asynq.Task { return newTask(t, writeSettings(t, nil)) },
			execErr:   fmt.Errorf("%w: missing password", storage.ErrConnectivityConfiguration),
			skipRetry: true,
			locks:     true,
		},
		{
			name: "denied remote directory is final",
			task: func(t *testing.T) *asynq.Task { return newTask(t, writeSettings(t, nil)) },
			execErr: &transfer.TraversalError{
				LocalPath:  "/data",
				RemotePath: "/inbox",
				Cause:      &storage.StorageError{Type: storage.ErrorTypeAccessDenied, Message: "create directory"},
			},
			skipRetry: true,
			locks:     true,
		},
		{
			name:      "rejected remote path is final",
			task:      func(t *testing.T) *asynq.Task { return newTask(t, writeSettings(t, nil)) },
			execErr:   fmt.Errorf("upload: %w", &storage.StorageError{Type: storage.ErrorTypeInvalidInput, Message: "rename"}),
			skipRetry: true,
			locks:     true,
		},
		{
			name:    "dropped session is retried",
			task:    func(t *testing.T) *asynq.Task { return newTask(t, writeSettings(t, nil)) },
			execErr: &storage.StorageError{Type: storage.ErrorTypeNetworkError, Message: "write remote file"},
			locks:   true,
		},
		{
			name:    "unclassified remote failure is retried",
			task:    func(t *testing.T) *asynq.Task { return newTask(t, writeSettings(t, nil)) },
			execErr: &storage.StorageError{Type: storage.ErrorTypeInternal, Message: "write remote file"},
			locks:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locker := new(mockLocker)
			locker.On("Acquire", mock.Anything, mock.Anything).Return(&lock.Lock{Key: "k"}, nil)
			locker.On("Release", mock.Anything).Return(nil)

			execute := func(context.Context, *config.Settings, *logger.Logger) error { return tt.execErr }

			err := newHandler(execute, locker).Handle(context.Background(), tt.task(t))

			require.Error(t, err)
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
			if tt.locks {
				locker.AssertCalled(t, "Release", mock.Anything)
			} else {
				locker.AssertNotCalled(t, "Acquire", mock.Anything, mock.Anything)
			}
		})
	}
}
