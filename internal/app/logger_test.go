package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		level string
		debug bool
		info  bool
	}{
		{"development default", "development", "", true, true},
		{"production default", "production", "", false, true},
		{"production override", "production", "debug", true, true},
		{"development override", "development", "warn", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.env, tt.level, "skill_market")
			require.NoError(t, err)

			assert.Equal(t, tt.debug, logger.Core().Enabled(zapcore.DebugLevel))
			assert.Equal(t, tt.info, logger.Core().Enabled(zapcore.InfoLevel))
		})
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger("production", "loud", "skill_market")
	assert.ErrorContains(t, err, "parse log level")
}
