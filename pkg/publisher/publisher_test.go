package publisher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sftpush/pkg/config"
	"sftpush/pkg/logger"
	"sftpush/pkg/task"
)

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) Enqueue(t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(t, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

func (m *mockEnqueuer) Close() error {
	return m.Called().Error(0)
}

func testConfig() *config.Config {
	return &config.Config{Publish: config.PublishConfig{MaxRetry: 4, TimeoutMinutes: 30}}
}

func writeFile(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("{}"), 0o600))
	return p
}

func TestPublishUploadTask(t *testing.T) {
	settingsPath := writeFile(t, "job.json")
	keyPath := writeFile(t, "job.key")

	client := new(mockEnqueuer)
	client.On("Enqueue", mock.MatchedBy(func(tk *asynq.Task) bool {
		payload, err := task.UnmarshalUploadPayload(tk.Payload())
		return err == nil &&
			tk.Type() == task.TaskTypeUpload &&
			payload.SettingsFilePath == settingsPath &&
			payload.SettingsKeyFilePath == keyPath
	}), mock.MatchedBy(func(opts []asynq.Option) bool {
		values := map[asynq.OptionType]any{}
		for _, o := range opts {
			values[o.Type()] = o.Value()
		}
		return values[asynq.MaxRetryOpt] == 4 && values[asynq.TimeoutOpt] == 30*time.Minute
	})).Return(&asynq.TaskInfo{ID: "task-1", Queue: "default"}, nil)

	p := newPublisher(client, testConfig(), logger.Discard())
	info, err := p.PublishUploadTask(settingsPath, keyPath)

	require.NoError(t, err)
	assert.Equal(t, "task-1", info.ID)
	client.AssertExpectations(t)
}

func TestPublishUploadTaskRejectsMissingFiles(t *testing.T) {
	settingsPath := writeFile(t, "job.json")
	missing := filepath.Join(t.TempDir(), "missing")

	tests := []struct {
		name     string
		settings string
		key      string
		wantErr  string
	}{
		{name: "empty settings path", wantErr: "settings file path is required"},
		{name: "missing settings file", settings: missing, wantErr: "settings file not found"},
		{name: "missing key file", settings: settingsPath, key: missing, wantErr: "settings key file not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mockEnqueuer)
			p := newPublisher(client, testConfig(), logger.Discard())

			_, err := p.PublishUploadTask(tt.settings, tt.key)

			assert.ErrorContains(t, err, tt.wantErr)
			client.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
		})
	}
}

func TestPublishUploadTaskEnqueueFailure(t *testing.T) {
	client := new(mockEnqueuer)
	client.On("Enqueue", mock.Anything, mock.Anything).Return(nil, errors.New("redis down"))

	_, err := newPublisher(client, testConfig(), logger.Discard()).PublishUploadTask(writeFile(t, "job.json"), "")

	assert.ErrorContains(t, err, "enqueue task: redis down")
}
