package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"avatarmail/internal/config"
)

func TestNewWritesConsoleAndFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "avatarmail.log")
	var console bytes.Buffer
	logger, closer, err := New(config.LogConfig{
		Level:      "info",
		ToFile:     true,
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	}, &console)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("recording saved", zap.String("file", "a.wav"))
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "recording saved")
	assert.NotContains(t, console.String(), "hidden")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "recording saved", entry["msg"])
	assert.Equal(t, "a.wav", entry["file"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewConsoleOnly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var console bytes.Buffer
	logger, closer, err := New(config.LogConfig{
		Level:  "debug",
		ToFile: false,
		File:   filepath.Join(dir, "unused.log"),
	}, &console)
	require.NoError(t, err)

	logger.Debug("debug line")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "debug line")
	_, statErr := os.Stat(filepath.Join(dir, "unused.log"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "debug", parseLevel("debug").String())
	assert.Equal(t, "warn", parseLevel("warn").String())
	assert.Equal(t, "error", parseLevel("error").String())
	assert.Equal(t, "info", parseLevel("").String())
}
