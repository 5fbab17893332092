package daemon

import (
	"bytes"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"

	"sftpush/pkg/logger"
)

func TestAsynqLoggerWritesComponentField(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf)

	a := newAsynqLogger(log)
	a.Info("processing ", 3, " tasks")
	a.Error("lost connection")

	out := buf.String()
	assert.Contains(t, out, `msg="processing 3 tasks"`)
	assert.Contains(t, out, "component=asynq")
	assert.Contains(t, out, `level=error msg="lost connection"`)
}

func TestAsynqLevel(t *testing.T) {
	tests := []struct {
		in   logger.Level
		want asynq.LogLevel
	}{
		{logger.LevelDebug, asynq.DebugLevel},
		{logger.LevelInfo, asynq.InfoLevel},
		{logger.LevelWarn, asynq.WarnLevel},
		{logger.LevelError, asynq.ErrorLevel},
		{logger.LevelFatal, asynq.FatalLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, asynqLevel(tt.in))
		})
	}
}
