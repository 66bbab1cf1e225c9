// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/relabs-tech/serial_imu/internal/config"
	"github.com/relabs-tech/serial_imu/internal/mqtt"
	"github.com/relabs-tech/serial_imu/internal/poller"
	"github.com/relabs-tech/serial_imu/internal/serialport"
)

// openPort returns the configured sensor port: the simulator when
// IMU_SIMULATE is set, the serial device otherwise.
func openPort(cfg *config.Config) (serialport.Port, error) {
	if cfg.IMUSimulate {
		return serialport.NewSimulator(), nil
	}
	return serialport.Open(serialport.Options{
		PortName:    cfg.IMUSerialPort,
		BaudRate:    cfg.IMUBaudRate,
		ReadTimeout: cfg.IMUReadTimeout,
	})
}

func closePort(port io.Closer, logger *slog.Logger) {
	if err := port.Close(); err != nil {
		logger.Warn("imu port close error", "err", err)
	}
	logger.Info("imu port closed")
}

// connectSink connects to the broker and returns the publish sink with
// its release func. A variable so tests can run without a broker.
var connectSink = func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (poller.Sink, func(), error) {
	client := mqtt.NewClient(cfg.MQTTBroker, cfg.MQTTClientIDPublisher, logger)
	if err := client.Connect(ctx); err != nil {
		return nil, nil, err
	}
	pub := mqtt.NewPublisher(client, mqtt.Topics{IMU: cfg.TopicIMU, Mag: cfg.TopicMag}, cfg.MQTTQoS, logger)
	release := func() {
		pub.Close()
		logger.Info("publisher stopped", "sent", pub.Sent(), "failures", pub.Failures(), "dropped", pub.Dropped())
		client.Disconnect()
	}
	return pub, release, nil
}

// RunIMUPublisher opens the sensor port, then polls it every
// IMU_POLL_INTERVAL_US and publishes the decoded readings until ctx ends.
// A port that fails to open is fatal: no cycle runs and the error is returned.
func RunIMUPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.RequireBroker(); err != nil {
		return err
	}

	port, err := openPort(cfg)
	if err != nil {
		return fmt.Errorf("open imu port: %w", err)
	}
	defer closePort(port, logger)
	logger.Info("imu port opened",
		"device", cfg.IMUSerialPort,
		"baud", cfg.IMUBaudRate,
		"simulated", cfg.IMUSimulate,
	)

	sink, release, err := connectSink(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect sink: %w", err)
	}
	defer release()

	p, err := poller.New(poller.Config{
		Interval:      cfg.IMUPollInterval,
		StatsInterval: cfg.IMUStatsInterval,
	}, port, sink, logger.With("component", "poller"))
	if err != nil {
		return err
	}

	logger.Info("publishing",
		"topic_imu", cfg.TopicIMU,
		"topic_mag", cfg.TopicMag,
		"interval", cfg.IMUPollInterval,
	)
	p.Run(ctx)
	return nil
}
