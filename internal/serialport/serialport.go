// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package serialport opens the IMU's serial link.
package serialport

import (
	"fmt"
	"io"
	"time"

	serial "github.com/jacobsa/go-serial/serial"
)

// Port is an open serial connection. The owner closes it exactly once.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
}

// Options selects the device and line speed. Framing is always 8N1.
type Options struct {
	PortName    string
	BaudRate    int
	ReadTimeout time.Duration
}

// Open opens a serial device. It's a variable so tests can replace it.
var Open = func(opts Options) (Port, error) {
	if opts.PortName == "" {
		return nil, fmt.Errorf("serial port name is empty")
	}
	if opts.BaudRate <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", opts.BaudRate)
	}

	serialOpts := serial.OpenOptions{
		PortName:   opts.PortName,
		BaudRate:   uint(opts.BaudRate),
		DataBits:   8,
		StopBits:   1,
		ParityMode: serial.PARITY_NONE,

		// Non-blocking read with an inter-character timeout, so a silent
		// sensor fails the read instead of hanging the cycle.
		MinimumReadSize:       0,
		InterCharacterTimeout: interCharTimeout(opts.ReadTimeout),
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return nil, fmt.Errorf("open %s at %d baud: %w", opts.PortName, opts.BaudRate, err)
	}
	return port, nil
}

// interCharTimeout converts to the driver's unit (ms, rounded up to 100ms on linux).
func interCharTimeout(d time.Duration) uint {
	ms := d.Milliseconds()
	if ms <= 0 {
		return 100
	}
	if rem := ms % 100; rem != 0 {
		ms += 100 - rem
	}
	return uint(ms)
}
