package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"mqtt-dispatcher/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LogConfig
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: &config.LogConfig{
				Level:      "info",
				OutputPath: "stdout",
				Encoding:   "json",
			},
			wantErr: false,
		},
		{
			name:    "nil config",
			cfg:     nil,
			wantErr: true,
		},
		{
			name: "invalid level",
			cfg: &config.LogConfig{
				Level:      "invalid",
				OutputPath: "stdout",
				Encoding:   "json",
			},
			wantErr: false, // defaults to info level
		},
		{
			name: "console encoding",
			cfg: &config.LogConfig{
				Level:      "debug",
				OutputPath: "stderr",
				Encoding:   "console",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, logger)
			}
		})
	}
}

func TestLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatcher.log")
	logger, err := NewLogger(&config.LogConfig{
		Level:      "debug",
		OutputPath: path,
		Encoding:   "json",
	})
	require.NoError(t, err)

	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"info message"`)
	assert.Contains(t, string(data), `"key":"value"`)
}

func TestLoggerKeyValues(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := &Logger{Logger: zap.New(core)}

	logger.With("session", "s1").Info("received message", "topic", "a/info")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "received message", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "s1", fields["session"])
	assert.Equal(t, "a/info", fields["topic"])
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.Info("ignored")
		_ = logger.Sync()
	})
	NewNop().Error("ignored", "error", assert.AnError)
}
