package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hla-matching-engine/internal/domain"
)

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"WARN", logrus.WarnLevel},
		{"", logrus.InfoLevel},
		{"verbose", logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, closer, err := NewLogger(domain.LoggingConfig{Level: tt.level})
			require.NoError(t, err)
			defer closer()
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestNewLogger_Formatters(t *testing.T) {
	logger, closer, err := NewLogger(domain.LoggingConfig{Format: "text"})
	require.NoError(t, err)
	defer closer()
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	logger, closer, err = NewLogger(domain.LoggingConfig{Format: "json", Output: "stdout"})
	require.NoError(t, err)
	defer closer()
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
	assert.Equal(t, os.Stdout, logger.Out)
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "engine.log")

	logger, closer, err := NewLogger(domain.LoggingConfig{Level: "info", Format: "json", Output: "file", Filename: path})
	require.NoError(t, err)
	logger.WithField("version", "3330").Info("Activated nomenclature version")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "Activated nomenclature version", entry["message"])
	assert.Equal(t, "3330", entry["version"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewLogger_InvalidOutput(t *testing.T) {
	_, _, err := NewLogger(domain.LoggingConfig{Output: "syslog"})
	assert.Error(t, err)

	_, _, err = NewLogger(domain.LoggingConfig{Output: "file"})
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("dropped")
	assert.NotNil(t, logger)
}
