// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package serialport

import (
	"bytes"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/serial_imu/internal/imu"
)

var (
	// ErrNoRequest is returned by Simulator.Read when no command is pending.
	ErrNoRequest = errors.New("simulator: read without pending command")
	// ErrUnknownCommand is returned by Simulator.Write for anything but the command frame.
	ErrUnknownCommand = errors.New("simulator: unknown command")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("simulator: port closed")
)

// Simulator is an in-memory Port that answers the sample command with a
// smoothly changing frame: a slow tilt on the accelerometer, a gentle
// rotation on the gyro and a rotating horizontal field on the magnetometer.
type Simulator struct {
	mu      sync.Mutex
	start   time.Time
	now     func() time.Time
	pending bytes.Buffer
	closed  bool
}

// NewSimulator creates a simulated sensor port.
func NewSimulator() *Simulator {
	return &Simulator{start: time.Now(), now: time.Now}
}

// Write accepts only the command frame and queues one response frame.
func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if !bytes.Equal(p, imu.CommandFrame()) {
		return 0, ErrUnknownCommand
	}

	s.pending.Reset()
	s.pending.Write(s.sample().Bytes())
	return len(p), nil
}

// Read drains the queued response.
func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	if s.pending.Len() == 0 {
		return 0, ErrNoRequest
	}
	return s.pending.Read(p)
}

// Close marks the port closed. A second Close reports ErrClosed.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return nil
}

func (s *Simulator) sample() imu.IMURaw {
	elapsed := s.now().Sub(s.start).Seconds()

	roll := 0.35 * math.Sin(elapsed)
	pitch := 0.25 * math.Cos(elapsed*0.7)
	heading := math.Mod(elapsed*0.5, 2*math.Pi)

	// 1g split across axes by the simulated tilt, in ±2g counts.
	ax := -math.Sin(pitch) * imu.AccelLSBPerG
	ay := math.Sin(roll) * math.Cos(pitch) * imu.AccelLSBPerG
	az := math.Cos(roll) * math.Cos(pitch) * imu.AccelLSBPerG

	// Derivatives of the tilt above, in ±250°/s counts.
	gx := 0.35 * math.Cos(elapsed) * 180 / math.Pi * imu.GyroLSBPerDegS
	gy := -0.175 * math.Sin(elapsed*0.7) * 180 / math.Pi * imu.GyroLSBPerDegS
	gz := 0.5 * 180 / math.Pi * imu.GyroLSBPerDegS

	const field = 400.0 // counts
	return imu.IMURaw{
		Ax: int16(ax), Ay: int16(ay), Az: int16(az),
		Gx: int16(gx), Gy: int16(gy), Gz: int16(gz),
		Mx: int16(field * math.Cos(heading)),
		My: int16(-field * math.Sin(heading)),
		Mz: int16(-field / 2),
	}
}
