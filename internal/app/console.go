// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/relabs-tech/serial_imu/internal/config"
	"github.com/relabs-tech/serial_imu/internal/imu"
	"github.com/relabs-tech/serial_imu/internal/poller"
)

const consoleRefresh = 100 * time.Millisecond

// latestSink keeps only the most recent readings; the console prints
// them at its own pace instead of once per cycle.
type latestSink struct {
	mu      sync.Mutex
	reading imu.Reading
	mag     imu.MagneticReading
	fresh   bool
}

func (s *latestSink) PublishIMU(r imu.Reading) {
	s.mu.Lock()
	s.reading = r
	s.mu.Unlock()
}

func (s *latestSink) PublishMag(m imu.MagneticReading) {
	s.mu.Lock()
	s.mag = m
	s.fresh = true
	s.mu.Unlock()
}

// take returns the latest pair if anything arrived since the last call.
func (s *latestSink) take() (imu.Reading, imu.MagneticReading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := s.fresh
	s.fresh = false
	return s.reading, s.mag, fresh
}

func printLatest(out io.Writer, sink *latestSink) {
	r, m, ok := sink.take()
	if !ok {
		fmt.Fprintln(out, "[---] no reading")
		return
	}
	fmt.Fprintln(out, formatIMU(r))
	fmt.Fprintln(out, formatMag(m))
}

// RunConsole polls the sensor directly and prints the latest readings
// every 100ms, without a broker. Useful on the bench.
func RunConsole(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	port, err := openPort(cfg)
	if err != nil {
		return fmt.Errorf("open imu port: %w", err)
	}
	defer closePort(port, logger)

	sink := &latestSink{}
	p, err := poller.New(poller.Config{
		Interval:      cfg.IMUPollInterval,
		StatsInterval: cfg.IMUStatsInterval,
	}, port, sink, logger.With("component", "poller"))
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()

	ticker := time.NewTicker(consoleRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
			printLatest(os.Stdout, sink)
		}
	}
}
