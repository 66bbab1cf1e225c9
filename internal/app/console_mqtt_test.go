package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/serial_imu/internal/imu"
)

func TestFormatIMU(t *testing.T) {
	r := imu.Reading{
		Stamp:              time.Date(2026, 10, 16, 9, 15, 30, 250_000_000, time.UTC),
		LinearAcceleration: imu.Vector3{X: 1.25},
		AngularVelocity:    imu.Vector3{Z: -0.5},
	}
	line := formatIMU(r)
	assert.Contains(t, line, "[IMU] 09:15:30.250")
	assert.Contains(t, line, "ax=  1.2500")
	assert.Contains(t, line, "gz= -0.5000")
}

func TestFormatMag(t *testing.T) {
	line := formatMag(imu.MagneticReading{MagneticField: imu.Vector3{X: 3, Y: 4}})
	assert.Contains(t, line, "mx=    3.00")
	assert.Contains(t, line, "|B|=    5.00")
}

func TestConsolePrinter(t *testing.T) {
	var out bytes.Buffer
	p := &consolePrinter{out: &out, logger: slog.New(slog.DiscardHandler)}

	payload, err := json.Marshal(imu.MagneticReading{MagneticField: imu.Vector3{Z: 1200}})
	require.NoError(t, err)
	p.handleMag("mag/data_raw", payload)
	assert.Contains(t, out.String(), "mz= 1200.00")

	out.Reset()
	p.handleIMU("imu/data_raw", []byte("{not json"))
	assert.Zero(t, out.Len())
}
