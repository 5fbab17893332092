package publisher

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"sftpush/pkg/config"
	"sftpush/pkg/logger"
	"sftpush/pkg/task"
)

type enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type Publisher struct {
	client enqueuer
	config *config.Config
	logger *logger.Logger
}

func NewPublisher(config *config.Config, log *logger.Logger) (*Publisher, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	}

	return newPublisher(asynq.NewClient(redisOpt), config, log), nil
}

func newPublisher(client enqueuer, config *config.Config, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Publisher{
		client: client,
		config: config,
		logger: log,
	}
}

func (p *Publisher) Close() {
	_ = p.client.Close()
}

// PublishUploadTask queues one run of the settings file at settingsPath.
func (p *Publisher) PublishUploadTask(settingsPath, keyPath string) (*asynq.TaskInfo, error) {
	if settingsPath == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if _, err := os.Stat(settingsPath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("settings file not found: %s", settingsPath)
	}
	if keyPath != "" {
		if _, err := os.Stat(keyPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("settings key file not found: %s", keyPath)
		}
	}

	payload, err := task.UploadPayload{
		SettingsFilePath:    settingsPath,
		SettingsKeyFilePath: keyPath,
	}.Marshal()
	if err != nil {
		return nil, err
	}

	info, err := p.client.Enqueue(
		asynq.NewTask(task.TaskTypeUpload, payload),
		asynq.MaxRetry(p.config.Publish.MaxRetry),
		asynq.Timeout(time.Duration(p.config.Publish.TimeoutMinutes)*time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue task: %w", err)
	}

	p.logger.Info("task enqueued successfully", map[string]any{
		"task_id":       info.ID,
		"queue":         info.Queue,
		"settings_file": settingsPath,
	})
	return info, nil
}
