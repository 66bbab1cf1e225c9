package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/serial_imu/internal/config"
)

func TestNew_JSON(t *testing.T) {
	cfg := config.Default()
	cfg.LogFormat = "json"

	var buf bytes.Buffer
	logger := newWithWriter(&buf, cfg, "imu_publisher")
	logger.Info("port opened", "device", "/dev/ttyACM1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "port opened", rec["msg"])
	assert.Equal(t, "imu_publisher", rec["app"])
	assert.Equal(t, "/dev/ttyACM1", rec["device"])
}

func TestNew_TextRespectsLevel(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = slog.LevelWarn

	var buf bytes.Buffer
	logger := newWithWriter(&buf, cfg, "imu_publisher")
	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}
