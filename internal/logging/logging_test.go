package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"signoff/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferLogger(level logrus.Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(level)
	l.SetFormatter(&logrus.JSONFormatter{})
	return New(l), &buf
}

func TestLoggerFields(t *testing.T) {
	logger, buf := bufferLogger(logrus.DebugLevel)

	logger.With("component", "approval").Info("step action applied",
		"workflow_id", "wf-1", "error", errors.New("boom"), "dangling")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "step action applied", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "approval", entry["component"])
	assert.Equal(t, "wf-1", entry["workflow_id"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "dangling", entry["extra"])
}

func TestLoggerLevel(t *testing.T) {
	logger, buf := bufferLogger(logrus.InfoLevel)
	logger.Debug("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("visible")
	assert.Contains(t, buf.String(), `"level":"warning"`)
}

func TestNewLogger(t *testing.T) {
	_, err := NewLogger(config.LogConfig{Level: "debug", Format: "text", Output: "stdout"})
	assert.NoError(t, err)

	_, err = NewLogger(config.LogConfig{Level: "info", Format: "json", Output: "file",
		FilePath: filepath.Join(t.TempDir(), "signoff.log"), MaxSize: 1})
	assert.NoError(t, err)

	_, err = NewLogger(config.LogConfig{Format: "xml"})
	assert.Error(t, err)

	_, err = NewLogger(config.LogConfig{Output: "syslog"})
	assert.Error(t, err)
}
