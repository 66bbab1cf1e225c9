package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/relabs-tech/serial_imu/internal/config"
	"github.com/relabs-tech/serial_imu/internal/imu"
	"github.com/relabs-tech/serial_imu/internal/mqtt"
)

// consolePrinter turns published payloads into one console line each.
type consolePrinter struct {
	out    io.Writer
	logger *slog.Logger
}

func (c *consolePrinter) handleIMU(_ string, payload []byte) {
	var r imu.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		c.logger.Warn("imu unmarshal error", "err", err)
		return
	}
	fmt.Fprintln(c.out, formatIMU(r))
}

func (c *consolePrinter) handleMag(_ string, payload []byte) {
	var m imu.MagneticReading
	if err := json.Unmarshal(payload, &m); err != nil {
		c.logger.Warn("mag unmarshal error", "err", err)
		return
	}
	fmt.Fprintln(c.out, formatMag(m))
}

func formatIMU(r imu.Reading) string {
	a, g := r.LinearAcceleration, r.AngularVelocity
	return fmt.Sprintf(
		"[IMU] %s  ax=%8.4f ay=%8.4f az=%8.4f m/s²  gx=%8.4f gy=%8.4f gz=%8.4f rad/s",
		r.Stamp.Format("15:04:05.000"), a.X, a.Y, a.Z, g.X, g.Y, g.Z,
	)
}

func formatMag(m imu.MagneticReading) string {
	f := m.MagneticField
	return fmt.Sprintf(
		"[MAG] mx=%8.2f my=%8.2f mz=%8.2f  |B|=%8.2f",
		f.X, f.Y, f.Z, math.Sqrt(f.X*f.X+f.Y*f.Y+f.Z*f.Z),
	)
}

// RunConsoleMQTT prints every reading published on the IMU and mag topics
// until ctx ends.
func RunConsoleMQTT(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.RequireBroker(); err != nil {
		return err
	}

	client := mqtt.NewClient(cfg.MQTTBroker, cfg.MQTTClientIDConsole, logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()

	printer := &consolePrinter{out: os.Stdout, logger: logger}
	if err := client.Subscribe(cfg.TopicIMU, cfg.MQTTQoS, printer.handleIMU); err != nil {
		return err
	}
	if err := client.Subscribe(cfg.TopicMag, cfg.MQTTQoS, printer.handleMag); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("console: shutting down")
	return nil
}
