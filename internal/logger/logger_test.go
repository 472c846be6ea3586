package logger_test

import (
	"testing"

	"spacesync/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
		want   zapcore.Level
	}{
		{"InfoJSON", "info", "json", zapcore.InfoLevel},
		{"DebugConsole", "debug", "console", zapcore.DebugLevel},
		{"WarnConsole", "warn", "console", zapcore.WarnLevel},
		{"Error", "error", "", zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := logger.New(tt.level, tt.format)
			require.NoError(t, err)
			require.NotNil(t, l)
			assert.True(t, l.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := logger.New("loud", "json")
	assert.Error(t, err)
}
