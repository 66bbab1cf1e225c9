// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FrameSize is the length of the sensor's reply to CommandFrame.
const FrameSize = 18

// commandFrame asks the sensor for one accel+gyro+mag sample.
var commandFrame = [4]byte{0x03, 0x3B, 0x43, 0x03}

// ErrFrameSize is returned when a response frame is not exactly FrameSize bytes.
var ErrFrameSize = errors.New("imu: response frame must be 18 bytes")

// CommandFrame returns the request sent to the sensor on every cycle.
// A fresh slice is returned so callers cannot alter the constant.
func CommandFrame() []byte {
	b := commandFrame
	return b[:]
}

// IMURaw represents a single raw IMU+mag sample, in sensor counts.
type IMURaw struct {
	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`

	Mx int16 `json:"mx"` // magnetometer
	My int16 `json:"my"`
	Mz int16 `json:"mz"`
}

// ParseFrame splits a response frame into nine big-endian signed fields.
// Field order on the wire: accel x,y,z; gyro x,y,z; mag x,y,z.
func ParseFrame(frame []byte) (IMURaw, error) {
	if len(frame) != FrameSize {
		return IMURaw{}, fmt.Errorf("%w: got %d", ErrFrameSize, len(frame))
	}

	var v [9]int16
	for i := range v {
		v[i] = int16(binary.BigEndian.Uint16(frame[2*i:]))
	}

	return IMURaw{
		Ax: v[0], Ay: v[1], Az: v[2],
		Gx: v[3], Gy: v[4], Gz: v[5],
		Mx: v[6], My: v[7], Mz: v[8],
	}, nil
}

// Bytes encodes the sample back into wire order. Used by the simulated port.
func (r IMURaw) Bytes() []byte {
	out := make([]byte, FrameSize)
	for i, v := range []int16{r.Ax, r.Ay, r.Az, r.Gx, r.Gy, r.Gz, r.Mx, r.My, r.Mz} {
		binary.BigEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}
