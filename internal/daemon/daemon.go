package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"sftpush/internal/app"
	"sftpush/pkg/config"
	"sftpush/pkg/handler"
	httpHandler "sftpush/pkg/http"
	"sftpush/pkg/lock"
	"sftpush/pkg/logger"
	"sftpush/pkg/publisher"
	"sftpush/pkg/task"
)

// DaemonService consumes upload tasks from the queue and accepts new ones over HTTP.
type DaemonService struct {
	server        *asynq.Server
	httpServer    *http.Server
	uploadHandler *handler.UploadHandler
	publisher     *publisher.Publisher
	redisClient   *redis.Client
	config        *config.Config
	logger        *logger.Logger
}

func NewDaemonService(config *config.Config, log *logger.Logger) (*DaemonService, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	}

	level, err := logger.ParseLevel(config.Daemon.LogLevel)
	if err != nil {
		return nil, err
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: config.Daemon.Concurrency,
		Queues: map[string]int{
			"default": 6,
		},
		Logger:   newAsynqLogger(log),
		LogLevel: asynqLevel(level),
	})

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	pub, err := publisher.NewPublisher(config, log)
	if err != nil {
		return nil, fmt.Errorf("create publisher: %w", err)
	}

	uploadHandler := handler.NewUploadHandler(
		app.Execute,
		lock.NewRedisLocker(redisClient, log),
		&config.Daemon,
		log,
	)

	mux := http.NewServeMux()
	httpHandler.NewHTTPHandler(pub, log).Register(mux)

	return &DaemonService{
		server:        server,
		httpServer:    &http.Server{Addr: config.HTTP.Addr, Handler: mux},
		uploadHandler: uploadHandler,
		publisher:     pub,
		redisClient:   redisClient,
		config:        config,
		logger:        log,
	}, nil
}

// Start runs the queue workers and blocks serving HTTP until Shutdown.
func (d *DaemonService) Start() error {
	d.logger.Info("starting Asynq server", map[string]any{
		"concurrency": d.config.Daemon.Concurrency,
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(task.TaskTypeUpload, d.uploadHandler.Handle)
	if err := d.server.Start(mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}

	d.logger.Info("starting HTTP server", map[string]any{
		"addr": d.config.HTTP.Addr,
	})
	if err := d.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (d *DaemonService) Shutdown(ctx context.Context) error {
	d.logger.Info("initiating graceful shutdown", nil)

	if err := d.httpServer.Shutdown(ctx); err != nil {
		d.logger.Error("HTTP server shutdown failed", err, nil)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.server.Shutdown()
	}()

	defer func() {
		d.publisher.Close()
		_ = d.redisClient.Close()
	}()

	select {
	case <-done:
		d.logger.Info("all tasks completed, shutdown successful", nil)
		return nil
	case <-ctx.Done():
		d.logger.Warn("shutdown timeout, forcing exit", nil)
		return ctx.Err()
	}
}
