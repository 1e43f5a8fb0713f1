package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		t.Run(format, func(t *testing.T) {
			logger, err := NewLogger(Config{Level: "warn", Format: format})
			require.NoError(t, err)
			assert.False(t, logger.Core().Enabled(zap.InfoLevel))
			assert.True(t, logger.Core().Enabled(zap.WarnLevel))
		})
	}
}

func TestParseLevel_RoundTrip(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.Equal(t, level, LevelString(ParseLevel(level)))
	}
	assert.Equal(t, zap.InfoLevel, ParseLevel("verbose"))
	assert.Equal(t, "info", DefaultConfig().Level)
}
