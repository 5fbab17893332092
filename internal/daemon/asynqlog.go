package daemon

import (
	"fmt"

	"github.com/hibiken/asynq"

	"sftpush/pkg/logger"
)

// asynqLogger routes asynq's internal logging into the daemon logger.
type asynqLogger struct {
	logger *logger.Logger
}

func newAsynqLogger(log *logger.Logger) asynqLogger {
	return asynqLogger{logger: log}
}

func (a asynqLogger) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...), map[string]any{"component": "asynq"})
}

func (a asynqLogger) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...), map[string]any{"component": "asynq"})
}

func (a asynqLogger) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...), map[string]any{"component": "asynq"})
}

func (a asynqLogger) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...), nil, map[string]any{"component": "asynq"})
}

func (a asynqLogger) Fatal(args ...interface{}) {
	a.logger.Fatal(fmt.Sprint(args...), map[string]any{"component": "asynq"})
}

func asynqLevel(level logger.Level) asynq.LogLevel {
	switch level {
	case logger.LevelDebug:
		return asynq.DebugLevel
	case logger.LevelWarn:
		return asynq.WarnLevel
	case logger.LevelError:
		return asynq.ErrorLevel
	case logger.LevelFatal:
		return asynq.FatalLevel
	default:
		return asynq.InfoLevel
	}
}
